package listeners

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cake-order-system/internal/entities"
	"cake-order-system/internal/events"
	"cake-order-system/internal/repositories"
	"cake-order-system/internal/services"
	"cake-order-system/pkg/constants"
	"cake-order-system/pkg/eventbus"
)

// NotificationListener доставляет уведомления внешнему шлюзу после коммита
// транзакции заказа. Исход каждой попытки (успех или сбой) фиксируется в
// аудите как NOTIFICATION_SENT, сбои дальше не распространяются.
type NotificationListener struct {
	notificationService services.NotificationServiceInterface
	auditRepo           repositories.AuditLogRepositoryInterface
	logger              *zap.Logger
}

func NewNotificationListener(
	notificationService services.NotificationServiceInterface,
	auditRepo repositories.AuditLogRepositoryInterface,
	logger *zap.Logger,
) *NotificationListener {
	return &NotificationListener{
		notificationService: notificationService,
		auditRepo:           auditRepo,
		logger:              logger,
	}
}

func (l *NotificationListener) Register(bus *eventbus.Bus) {
	bus.Subscribe("order.created", l.handleOrderCreated)
	bus.Subscribe("order.agreement.reached", l.handleAgreementReached)
	l.logger.Info("NotificationListener подписан на события заказа")
}

func (l *NotificationListener) handleOrderCreated(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderCreatedEvent)
	if !ok {
		return nil
	}

	summary := fmt.Sprintf("Новый заказ: %d позиций на сумму %s, доставка %s",
		e.ItemsCount, e.Total.StringFixed(2), e.DeliveryDate.Format("2006-01-02"))
	l.deliver(ctx, e.OrderID, summary)
	return nil
}

func (l *NotificationListener) handleAgreementReached(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.AgreementReachedEvent)
	if !ok {
		return nil
	}

	summary := fmt.Sprintf("Стороны согласовали цену %s, заказ ожидает оплаты", e.FinalPrice.StringFixed(2))
	l.deliver(ctx, e.OrderID, summary)
	return nil
}

func (l *NotificationListener) deliver(ctx context.Context, orderID uuid.UUID, summary string) {
	if !l.notificationService.Enabled() {
		l.logger.Debug("Шлюз уведомлений не настроен, доставка пропущена",
			zap.String("orderID", orderID.String()))
		return
	}

	sendErr := l.notificationService.Send(ctx, orderID, summary)

	entry := &entities.AuditLogEntry{
		OrderID:   orderID,
		Type:      constants.AuditNotificationSent,
		Actor:     constants.ActorSystem,
		CreatedAt: time.Now(),
	}
	if sendErr != nil {
		l.logger.Error("Не удалось доставить уведомление",
			zap.String("orderID", orderID.String()), zap.Error(sendErr))
		entry.Content = fmt.Sprintf("Сбой доставки уведомления: %v", sendErr)
		entry.Metadata = map[string]interface{}{"success": false, "error": sendErr.Error()}
	} else {
		entry.Content = "Уведомление доставлено"
		entry.Metadata = map[string]interface{}{"success": true}
	}

	if err := l.auditRepo.Create(ctx, entry); err != nil {
		l.logger.Error("Не удалось записать NOTIFICATION_SENT в аудит",
			zap.String("orderID", orderID.String()), zap.Error(err))
	}
}
