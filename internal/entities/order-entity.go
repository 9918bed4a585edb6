package entities

import (
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cake-order-system/pkg/constants"
	apperrors "cake-order-system/pkg/errors"
	"cake-order-system/pkg/types"
)

type OrderItem struct {
	ID        uint64          `json:"id"`
	ProductID uint64          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order - агрегат заказа. Все мутации (пересмотр цены, подтверждение согласия,
// смена статуса) идут только через его методы: инварианты проверяются здесь,
// а не в обработчиках. Сервис сохраняет результат в одной транзакции.
type Order struct {
	ID               uuid.UUID             `json:"id"`
	CustomerID       uint64                `json:"customer_id"`
	Status           constants.OrderStatus `json:"status"`
	OriginalPrice    decimal.Decimal       `json:"original_price"`
	NegotiatedPrice  decimal.NullDecimal   `json:"negotiated_price"`
	DeliveryFee      decimal.NullDecimal   `json:"delivery_fee"`
	AgreedByCustomer bool                  `json:"agreed_by_customer"`
	AgreedByAdmin    bool                  `json:"agreed_by_admin"`
	AgreedAt         null.Time             `json:"agreed_at"`
	DeliveryAddress  string                `json:"delivery_address"`
	DeliveryDate     time.Time             `json:"delivery_date"`
	DeliveryTime     null.String           `json:"delivery_time"`
	Observations     null.String           `json:"observations"`
	Items            []OrderItem           `json:"items"`
	PriceHistory     []PriceRevision       `json:"price_history"`

	types.BaseEntity
}

// NewOrder создает заказ из финализированной корзины: статус PENDING,
// negotiated_price пустой, original_price = сумма позиций.
func NewOrder(customerID uint64, items []OrderItem, deliveryAddress string, deliveryDate time.Time, deliveryTime, observations null.String, now time.Time) (*Order, error) {
	if customerID == 0 {
		return nil, apperrors.NewInvalidArgumentError("ID клиента обязателен")
	}
	if len(items) == 0 {
		return nil, apperrors.NewInvalidArgumentError("заказ должен содержать хотя бы одну позицию")
	}
	if deliveryAddress == "" {
		return nil, apperrors.NewInvalidArgumentError("адрес доставки обязателен")
	}
	// Дата доставки не может быть в прошлом (сегодня - допустимо).
	if deliveryDate.Before(now.Truncate(24 * time.Hour)) {
		return nil, apperrors.NewInvalidArgumentError("дата доставки не может быть в прошлом")
	}

	total := decimal.Zero
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return nil, apperrors.NewInvalidArgumentError("позиция заказа должна содержать товар и количество больше нуля")
		}
		if item.UnitPrice.IsNegative() {
			return nil, apperrors.NewInvalidArgumentError("цена позиции не может быть отрицательной")
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return &Order{
		ID:              uuid.New(),
		CustomerID:      customerID,
		Status:          constants.StatusPending,
		OriginalPrice:   total,
		DeliveryAddress: deliveryAddress,
		DeliveryDate:    deliveryDate,
		DeliveryTime:    deliveryTime,
		Observations:    observations,
		Items:           items,
		BaseEntity:      types.BaseEntity{CreatedAt: &now, UpdatedAt: &now},
	}, nil
}

// CurrentPrice - согласованная цена, если она уже была установлена,
// иначе исходная цена корзины.
func (o *Order) CurrentPrice() decimal.Decimal {
	if o.NegotiatedPrice.Valid {
		return o.NegotiatedPrice.Decimal
	}
	return o.OriginalPrice
}

func (o *Order) CurrentDeliveryFee() decimal.Decimal {
	if o.DeliveryFee.Valid {
		return o.DeliveryFee.Decimal
	}
	return decimal.Zero
}

func (o *Order) IsTerminal() bool {
	return constants.IsFinalStatus(o.Status)
}

// RevisionOutcome - что именно изменил пересмотр цены. Сервис по нему
// пишет записи аудита.
type RevisionOutcome struct {
	Revision      *PriceRevision
	OldStatus     constants.OrderStatus
	StatusChanged bool
}

// ReviseProposedPrice фиксирует новую согласуемую цену и/или стоимость доставки.
// Любой пересмотр сбрасывает оба флага согласия и agreed_at: смена цены всегда
// аннулирует ранее данное согласие.
func (o *Order) ReviseProposedPrice(actorID uint64, newPrice, newFee decimal.NullDecimal, reason null.String, now time.Time) (*RevisionOutcome, error) {
	if o.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("заказ в финальном статусе %s, цена больше не пересматривается", o.Status)
	}
	if !newPrice.Valid && !newFee.Valid {
		return nil, apperrors.NewInvalidArgumentError("нужно передать новую цену и/или стоимость доставки")
	}
	if newPrice.Valid && newPrice.Decimal.IsNegative() {
		return nil, apperrors.NewInvalidArgumentError("согласуемая цена не может быть отрицательной")
	}
	if newFee.Valid && newFee.Decimal.IsNegative() {
		return nil, apperrors.NewInvalidArgumentError("стоимость доставки не может быть отрицательной")
	}

	oldPrice := o.CurrentPrice()

	fee := o.DeliveryFee
	if newFee.Valid {
		fee = newFee
	}

	var negotiated decimal.Decimal
	if newPrice.Valid {
		negotiated = newPrice.Decimal
	} else {
		// Передана только доставка: итог пересчитывается, чтобы журнал всегда
		// отражал полную сумму к оплате.
		negotiated = oldPrice.Sub(o.CurrentDeliveryFee()).Add(newFee.Decimal)
	}
	if negotiated.IsNegative() {
		return nil, apperrors.NewInvalidArgumentError("итоговая цена после пересчета не может быть отрицательной")
	}

	revision := &PriceRevision{
		OrderID:     o.ID,
		OldPrice:    oldPrice,
		NewPrice:    negotiated,
		DeliveryFee: fee,
		ActorID:     actorID,
		Reason:      reason,
		CreatedAt:   now,
	}

	outcome := &RevisionOutcome{Revision: revision, OldStatus: o.Status}

	o.NegotiatedPrice = decimal.NewNullDecimal(negotiated)
	o.DeliveryFee = fee
	o.PriceHistory = append(o.PriceHistory, *revision)
	o.AgreedByCustomer = false
	o.AgreedByAdmin = false
	o.AgreedAt = null.Time{}
	o.UpdatedAt = &now

	// PENDING и AWAITING_PAYMENT переходят в NEGOTIATING, из NEGOTIATING
	// пересмотр не меняет статус.
	if constants.CanTransition(o.Status, constants.StatusNegotiating, constants.TriggerPriceRevised) {
		o.Status = constants.StatusNegotiating
		outcome.StatusChanged = true
	}

	return outcome, nil
}

// AgreementOutcome - результат подтверждения согласия одной из сторон.
type AgreementOutcome struct {
	BothAgreed    bool
	FlagChanged   bool
	OldStatus     constants.OrderStatus
	StatusChanged bool
	FinalPrice    decimal.Decimal
}

// ConfirmAgreement взводит флаг согласия указанной роли. Повторный вызов той же
// ролью - no-op. Когда согласились обе стороны, ставится agreed_at и заказ
// переходит в AWAITING_PAYMENT - это единственный легальный выход из NEGOTIATING вперед.
func (o *Order) ConfirmAgreement(role constants.AuditActor, now time.Time) (*AgreementOutcome, error) {
	if o.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("заказ в финальном статусе %s, согласие больше не принимается", o.Status)
	}
	if !o.NegotiatedPrice.Valid {
		return nil, apperrors.NewInvalidTransitionError("по заказу еще нет согласуемой цены, подтверждать нечего")
	}

	outcome := &AgreementOutcome{OldStatus: o.Status, FinalPrice: o.NegotiatedPrice.Decimal}

	switch role {
	case constants.ActorCustomer:
		if !o.AgreedByCustomer {
			o.AgreedByCustomer = true
			outcome.FlagChanged = true
		}
	case constants.ActorAdmin:
		if !o.AgreedByAdmin {
			o.AgreedByAdmin = true
			outcome.FlagChanged = true
		}
	default:
		return nil, apperrors.NewInvalidArgumentError("роль %s не может подтверждать согласие", role)
	}

	if outcome.FlagChanged && o.AgreedByCustomer && o.AgreedByAdmin && !o.AgreedAt.Valid {
		o.AgreedAt = null.TimeFrom(now)
		outcome.BothAgreed = true
		if constants.CanTransition(o.Status, constants.StatusAwaitingPayment, constants.TriggerMutualAgreement) {
			o.Status = constants.StatusAwaitingPayment
			outcome.StatusChanged = true
		}
	}

	if outcome.FlagChanged {
		o.UpdatedAt = &now
	}

	return outcome, nil
}

// ChangeStatus - ручной переход (подтверждение оплаты, завершение, отмена).
// Автоматические переходы таким способом выполнить нельзя.
func (o *Order) ChangeStatus(newStatus constants.OrderStatus, now time.Time) (constants.OrderStatus, error) {
	if !constants.IsValidStatus(newStatus) {
		return "", apperrors.NewInvalidArgumentError("неизвестный статус %s", newStatus)
	}
	if !constants.CanTransition(o.Status, newStatus, constants.TriggerManual) {
		return "", apperrors.NewInvalidTransitionError("переход %s -> %s запрещен", o.Status, newStatus)
	}

	oldStatus := o.Status
	o.Status = newStatus
	o.UpdatedAt = &now
	return oldStatus, nil
}
