package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cake-order-system/internal/entities"
	"cake-order-system/internal/repositories"
	"cake-order-system/pkg/constants"
	apperrors "cake-order-system/pkg/errors"
)

type AuditLogServiceInterface interface {
	RecordMessage(ctx context.Context, orderID string, content string) error
}

// AuditLogService - точка входа для чат-подсистемы: она фиксирует факт
// отправки сообщения в аудите, не трогая цену и статус заказа.
type AuditLogService struct {
	auditRepo repositories.AuditLogRepositoryInterface
	orderRepo repositories.OrderRepositoryInterface
	logger    *zap.Logger
}

func NewAuditLogService(
	auditRepo repositories.AuditLogRepositoryInterface,
	orderRepo repositories.OrderRepositoryInterface,
	logger *zap.Logger,
) AuditLogServiceInterface {
	return &AuditLogService{auditRepo: auditRepo, orderRepo: orderRepo, logger: logger}
}

const messageSummaryLimit = 100

func (s *AuditLogService) RecordMessage(ctx context.Context, orderID string, content string) error {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return err
	}

	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}

	order, err := s.orderRepo.FindOrder(ctx, id)
	if err != nil {
		return err
	}
	if role == constants.ActorCustomer && order.CustomerID != actorID {
		return apperrors.NewNotFoundError("заказ %s не найден", orderID)
	}

	summary := content
	if len([]rune(summary)) > messageSummaryLimit {
		summary = string([]rune(summary)[:messageSummaryLimit]) + "..."
	}

	return s.auditRepo.Create(ctx, &entities.AuditLogEntry{
		OrderID: id,
		Type:    constants.AuditMessageSent,
		Actor:   role,
		Content: fmt.Sprintf("Отправлено сообщение: %q", summary),
		Metadata: map[string]interface{}{
			"actor_id":       actorID,
			"message_length": len([]rune(content)),
		},
		CreatedAt: time.Now(),
	})
}
