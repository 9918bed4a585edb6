package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCreatedEvent публикуется после коммита транзакции создания заказа.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID
	CustomerID   uint64
	Total        decimal.Decimal
	DeliveryDate time.Time
	ItemsCount   int
}

func (e OrderCreatedEvent) Name() string {
	return "order.created"
}

// AgreementReachedEvent публикуется, когда обе стороны подтвердили цену.
type AgreementReachedEvent struct {
	OrderID    uuid.UUID
	FinalPrice decimal.Decimal
	AgreedAt   time.Time
}

func (e AgreementReachedEvent) Name() string {
	return "order.agreement.reached"
}
