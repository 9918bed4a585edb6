package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"cake-order-system/internal/entities"
)

type CreateOrderItemDTO struct {
	ProductID uint64          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"decimal_gt_zero"`
}

type CreateOrderDTO struct {
	Items           []CreateOrderItemDTO `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress string               `json:"delivery_address" validate:"required"`
	DeliveryDate    time.Time            `json:"delivery_date" validate:"required,future_date"`
	DeliveryTime    *string              `json:"delivery_time"`
	Observations    *string              `json:"observations"`
}

type RevisePriceDTO struct {
	NegotiatedPrice *decimal.Decimal `json:"negotiated_price"`
	DeliveryFee     *decimal.Decimal `json:"delivery_fee"`
	Reason          *string          `json:"reason"`
}

type SetStatusDTO struct {
	Status string `json:"status" validate:"required"`
}

type RecordMessageDTO struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type OrderItemDTO struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type PriceRevisionDTO struct {
	OldPrice    string  `json:"old_price"`
	NewPrice    string  `json:"new_price"`
	DeliveryFee *string `json:"delivery_fee"`
	ActorID     uint64  `json:"actor_id"`
	Reason      *string `json:"reason"`
	CreatedAt   string  `json:"created_at"`
}

type OrderDTO struct {
	ID               string             `json:"id"`
	CustomerID       uint64             `json:"customer_id"`
	Status           string             `json:"status"`
	OriginalPrice    string             `json:"original_price"`
	NegotiatedPrice  *string            `json:"negotiated_price"`
	DeliveryFee      *string            `json:"delivery_fee"`
	AgreedByCustomer bool               `json:"agreed_by_customer"`
	AgreedByAdmin    bool               `json:"agreed_by_admin"`
	AgreedAt         *string            `json:"agreed_at"`
	DeliveryAddress  string             `json:"delivery_address"`
	DeliveryDate     string             `json:"delivery_date"`
	DeliveryTime     *string            `json:"delivery_time"`
	Observations     *string            `json:"observations"`
	Items            []OrderItemDTO     `json:"items"`
	PriceHistory     []PriceRevisionDTO `json:"price_history"`
	CreatedAt        string             `json:"created_at"`
}

// ConfirmAgreementResultDTO - ответ на подтверждение согласия: снапшот заказа
// плюс признак того, что именно этот вызов завершил обоюдное согласие.
type ConfirmAgreementResultDTO struct {
	Order      OrderDTO `json:"order"`
	BothAgreed bool     `json:"both_agreed"`
}

const dtoTimeLayout = "2006-01-02 15:04:05"

func NewOrderDTO(order *entities.Order) OrderDTO {
	d := OrderDTO{
		ID:               order.ID.String(),
		CustomerID:       order.CustomerID,
		Status:           string(order.Status),
		OriginalPrice:    order.OriginalPrice.StringFixed(2),
		AgreedByCustomer: order.AgreedByCustomer,
		AgreedByAdmin:    order.AgreedByAdmin,
		DeliveryAddress:  order.DeliveryAddress,
		DeliveryDate:     order.DeliveryDate.Format("2006-01-02"),
		Items:            make([]OrderItemDTO, 0, len(order.Items)),
		PriceHistory:     make([]PriceRevisionDTO, 0, len(order.PriceHistory)),
	}

	if order.NegotiatedPrice.Valid {
		s := order.NegotiatedPrice.Decimal.StringFixed(2)
		d.NegotiatedPrice = &s
	}
	if order.DeliveryFee.Valid {
		s := order.DeliveryFee.Decimal.StringFixed(2)
		d.DeliveryFee = &s
	}
	if order.AgreedAt.Valid {
		s := order.AgreedAt.Time.Local().Format(dtoTimeLayout)
		d.AgreedAt = &s
	}
	if order.DeliveryTime.Valid {
		s := order.DeliveryTime.String
		d.DeliveryTime = &s
	}
	if order.Observations.Valid {
		s := order.Observations.String
		d.Observations = &s
	}
	if order.CreatedAt != nil {
		d.CreatedAt = order.CreatedAt.Local().Format(dtoTimeLayout)
	}

	for _, item := range order.Items {
		d.Items = append(d.Items, OrderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}

	for _, rev := range order.PriceHistory {
		revDTO := PriceRevisionDTO{
			OldPrice:  rev.OldPrice.StringFixed(2),
			NewPrice:  rev.NewPrice.StringFixed(2),
			ActorID:   rev.ActorID,
			CreatedAt: rev.CreatedAt.Local().Format(dtoTimeLayout),
		}
		if rev.DeliveryFee.Valid {
			s := rev.DeliveryFee.Decimal.StringFixed(2)
			revDTO.DeliveryFee = &s
		}
		if rev.Reason.Valid {
			s := rev.Reason.String
			revDTO.Reason = &s
		}
		d.PriceHistory = append(d.PriceHistory, revDTO)
	}

	return d
}
