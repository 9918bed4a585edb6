package entities

import (
	"time"

	"github.com/google/uuid"

	"cake-order-system/pkg/constants"
)

// AuditLogEntry - неизменяемая запись журнала аудита. Ссылается на заказ
// по order_id, но живет независимо от него (переживает архивирование заказа).
type AuditLogEntry struct {
	ID        uint64                 `json:"id"`
	OrderID   uuid.UUID              `json:"order_id"`
	Type      constants.AuditLogType `json:"type"`
	Actor     constants.AuditActor   `json:"actor"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
