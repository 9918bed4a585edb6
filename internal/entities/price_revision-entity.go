package entities

import (
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceRevision - одна запись в журнале переговоров о цене.
// Записи только добавляются, никогда не меняются и не удаляются.
type PriceRevision struct {
	ID          uint64              `json:"id"`
	OrderID     uuid.UUID           `json:"order_id"`
	OldPrice    decimal.Decimal     `json:"old_price"`
	NewPrice    decimal.Decimal     `json:"new_price"`
	DeliveryFee decimal.NullDecimal `json:"delivery_fee"`
	ActorID     uint64              `json:"actor_id"`
	Reason      null.String         `json:"reason"`
	CreatedAt   time.Time           `json:"created_at"`
}
