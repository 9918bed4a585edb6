package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cake-order-system/pkg/config"
	"cake-order-system/pkg/constants"
	apperrors "cake-order-system/pkg/errors"
)

func TestRecordMessage(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)
	orderID := uuid.MustParse(order.ID)

	svc := NewAuditLogService(f.audit, f.orders, zap.NewNop())

	err := svc.RecordMessage(ctxWithActor(42, constants.ActorCustomer), order.ID, "Можно без орехов?")
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	assert.Equal(t, constants.AuditMessageSent, last.Type)
	assert.Equal(t, constants.ActorCustomer, last.Actor)
	assert.Equal(t, orderID, last.OrderID)
	assert.Contains(t, last.Content, "Можно без орехов?")
}

// Длинные сообщения обрезаются до 100 рун, полная длина уходит в метаданные.
func TestRecordMessage_LongContentTruncated(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)

	svc := NewAuditLogService(f.audit, f.orders, zap.NewNop())

	long := strings.Repeat("я", 250)
	err := svc.RecordMessage(ctxWithActor(42, constants.ActorCustomer), order.ID, long)
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	assert.Contains(t, last.Content, strings.Repeat("я", 100)+"...")
	assert.NotContains(t, last.Content, strings.Repeat("я", 101))
	assert.Equal(t, 250, last.Metadata["message_length"])
}

func TestRecordMessage_StrangerGetsNotFound(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)

	svc := NewAuditLogService(f.audit, f.orders, zap.NewNop())

	err := svc.RecordMessage(ctxWithActor(99, constants.ActorCustomer), order.ID, "привет")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestWebhookNotificationService_DisabledWithoutURL(t *testing.T) {
	svc := NewWebhookNotificationService(config.NotificationConfig{}, zap.NewNop())
	assert.False(t, svc.Enabled())
}
