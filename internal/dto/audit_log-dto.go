package dto

import "cake-order-system/internal/entities"

type AuditLogDTO struct {
	ID        uint64                 `json:"id"`
	OrderID   string                 `json:"order_id"`
	Type      string                 `json:"type"`
	Actor     string                 `json:"actor"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"created_at"`
}

// OrderSnapshotDTO - текущее состояние заказа плюс хвост аудита.
// Поверх этого снапшота клиент волен строить любой транспорт: polling, push.
type OrderSnapshotDTO struct {
	Order     OrderDTO      `json:"order"`
	AuditTail []AuditLogDTO `json:"audit_tail"`
}

func NewAuditLogDTO(entry entities.AuditLogEntry) AuditLogDTO {
	return AuditLogDTO{
		ID:        entry.ID,
		OrderID:   entry.OrderID.String(),
		Type:      string(entry.Type),
		Actor:     string(entry.Actor),
		Content:   entry.Content,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt.Local().Format(dtoTimeLayout),
	}
}
