package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cake-order-system/internal/dto"
	"cake-order-system/internal/entities"
	"cake-order-system/internal/events"
	"cake-order-system/internal/repositories"
	"cake-order-system/pkg/config"
	"cake-order-system/pkg/constants"
	"cake-order-system/pkg/contextkeys"
	apperrors "cake-order-system/pkg/errors"
	"cake-order-system/pkg/eventbus"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, orderData dto.CreateOrderDTO) (*dto.OrderDTO, error)
	GetOrders(ctx context.Context, status string, limit, offset uint64) ([]dto.OrderDTO, uint64, error)
	FindOrder(ctx context.Context, orderID string) (*dto.OrderSnapshotDTO, error)
	ReviseProposedPrice(ctx context.Context, orderID string, priceData dto.RevisePriceDTO) (*dto.OrderDTO, error)
	ConfirmAgreement(ctx context.Context, orderID string) (*dto.ConfirmAgreementResultDTO, error)
	SetStatus(ctx context.Context, orderID string, statusData dto.SetStatusDTO) (*dto.OrderDTO, error)
	GetAuditTrail(ctx context.Context, orderID string, typeFilter string, limit uint64) ([]dto.AuditLogDTO, error)
}

// OrderService - граница консистентности агрегата заказа. Каждая мутация -
// одна SERIALIZABLE-транзакция на строку заказа: чтение под FOR UPDATE,
// применение доменных правил, запись состояния и записи аудита последним шагом.
type OrderService struct {
	txManager    repositories.TxManagerInterface
	orderRepo    repositories.OrderRepositoryInterface
	revisionRepo repositories.PriceRevisionRepositoryInterface
	auditRepo    repositories.AuditLogRepositoryInterface
	cacheRepo    repositories.CacheRepositoryInterface
	bus          *eventbus.Bus
	auditCfg     config.AuditConfig
	logger       *zap.Logger
}

func NewOrderService(
	txManager repositories.TxManagerInterface,
	orderRepo repositories.OrderRepositoryInterface,
	revisionRepo repositories.PriceRevisionRepositoryInterface,
	auditRepo repositories.AuditLogRepositoryInterface,
	cacheRepo repositories.CacheRepositoryInterface,
	bus *eventbus.Bus,
	auditCfg config.AuditConfig,
	logger *zap.Logger,
) OrderServiceInterface {
	return &OrderService{
		txManager:    txManager,
		orderRepo:    orderRepo,
		revisionRepo: revisionRepo,
		auditRepo:    auditRepo,
		cacheRepo:    cacheRepo,
		bus:          bus,
		auditCfg:     auditCfg,
		logger:       logger,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, orderData dto.CreateOrderDTO) (*dto.OrderDTO, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]entities.OrderItem, 0, len(orderData.Items))
	for _, item := range orderData.Items {
		items = append(items, entities.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	now := time.Now()
	order, err := entities.NewOrder(
		actorID, items, orderData.DeliveryAddress, orderData.DeliveryDate,
		null.StringFromPtr(orderData.DeliveryTime), null.StringFromPtr(orderData.Observations), now,
	)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.orderRepo.CreateOrderInTx(ctx, tx, order); err != nil {
			return err
		}

		itemsMeta := make([]map[string]interface{}, 0, len(order.Items))
		for _, item := range order.Items {
			itemsMeta = append(itemsMeta, map[string]interface{}{
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
				"unit_price": item.UnitPrice.StringFixed(2),
			})
		}

		return s.auditRepo.CreateInTx(ctx, tx, &entities.AuditLogEntry{
			OrderID: order.ID,
			Type:    constants.AuditOrderCreated,
			Actor:   role,
			Content: fmt.Sprintf("Заказ создан. Сумма: %s", order.OriginalPrice.StringFixed(2)),
			Metadata: map[string]interface{}{
				"actor_id":      actorID,
				"items":         itemsMeta,
				"total_price":   order.OriginalPrice.StringFixed(2),
				"delivery_date": order.DeliveryDate.Format("2006-01-02"),
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, s.mapTxError(err)
	}

	// Уведомление продавцу - строго после коммита, асинхронно.
	s.bus.Publish(ctx, events.OrderCreatedEvent{
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		Total:        order.OriginalPrice,
		DeliveryDate: order.DeliveryDate,
		ItemsCount:   len(order.Items),
	})

	result := dto.NewOrderDTO(order)
	return &result, nil
}

func (s *OrderService) ReviseProposedPrice(ctx context.Context, orderID string, priceData dto.RevisePriceDTO) (*dto.OrderDTO, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var order *entities.Order

	err = s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		order, err = s.orderRepo.FindOrderForUpdateInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if role == constants.ActorCustomer && order.CustomerID != actorID {
			return apperrors.NewNotFoundError("заказ %s не найден", orderID)
		}

		outcome, err := order.ReviseProposedPrice(
			actorID,
			nullDecimalFromPtr(priceData.NegotiatedPrice),
			nullDecimalFromPtr(priceData.DeliveryFee),
			null.StringFromPtr(priceData.Reason),
			now,
		)
		if err != nil {
			return err
		}

		if err := s.revisionRepo.CreateInTx(ctx, tx, outcome.Revision); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateNegotiationStateInTx(ctx, tx, order); err != nil {
			return err
		}

		if outcome.StatusChanged {
			if err := s.auditStatusChange(ctx, tx, order.ID, outcome.OldStatus, order.Status, constants.ActorSystem, actorID, now); err != nil {
				return err
			}
		}

		content := fmt.Sprintf("Цена изменена с %s на %s",
			outcome.Revision.OldPrice.StringFixed(2), outcome.Revision.NewPrice.StringFixed(2))
		if outcome.Revision.Reason.Valid {
			content += fmt.Sprintf(". Причина: %s", outcome.Revision.Reason.String)
		}

		metadata := map[string]interface{}{
			"old_price": outcome.Revision.OldPrice.StringFixed(2),
			"new_price": outcome.Revision.NewPrice.StringFixed(2),
			"actor_id":  actorID,
		}
		if outcome.Revision.DeliveryFee.Valid {
			metadata["delivery_fee"] = outcome.Revision.DeliveryFee.Decimal.StringFixed(2)
		}
		if outcome.Revision.Reason.Valid {
			metadata["reason"] = outcome.Revision.Reason.String
		}

		return s.auditRepo.CreateInTx(ctx, tx, &entities.AuditLogEntry{
			OrderID:   order.ID,
			Type:      constants.AuditPriceUpdated,
			Actor:     role,
			Content:   content,
			Metadata:  metadata,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, s.mapTxError(err)
	}

	s.invalidateSnapshot(ctx, id)
	return s.buildOrderDTO(ctx, id)
}

func (s *OrderService) ConfirmAgreement(ctx context.Context, orderID string) (*dto.ConfirmAgreementResultDTO, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var order *entities.Order
	var outcome *entities.AgreementOutcome

	err = s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		order, err = s.orderRepo.FindOrderForUpdateInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if role == constants.ActorCustomer && order.CustomerID != actorID {
			return apperrors.NewNotFoundError("заказ %s не найден", orderID)
		}

		outcome, err = order.ConfirmAgreement(role, now)
		if err != nil {
			return err
		}
		if !outcome.FlagChanged {
			// Повторное подтверждение той же роли: ни записи состояния, ни аудита.
			return nil
		}

		if err := s.orderRepo.UpdateNegotiationStateInTx(ctx, tx, order); err != nil {
			return err
		}

		if outcome.BothAgreed {
			if outcome.StatusChanged {
				if err := s.auditStatusChange(ctx, tx, order.ID, outcome.OldStatus, order.Status, constants.ActorSystem, actorID, now); err != nil {
					return err
				}
			}
			return s.auditRepo.CreateInTx(ctx, tx, &entities.AuditLogEntry{
				OrderID: order.ID,
				Type:    constants.AuditAgreementConfirmed,
				Actor:   role,
				Content: fmt.Sprintf("Обоюдное согласие достигнуто. Итоговая цена: %s", outcome.FinalPrice.StringFixed(2)),
				Metadata: map[string]interface{}{
					"actor_id":    actorID,
					"final_price": outcome.FinalPrice.StringFixed(2),
					"both_agreed": true,
				},
				CreatedAt: now,
			})
		}

		// Одиночное подтверждение логируется только при включенной опции
		// комплаенса: кто согласился первым.
		if s.auditCfg.IndividualAgreements {
			return s.auditRepo.CreateInTx(ctx, tx, &entities.AuditLogEntry{
				OrderID: order.ID,
				Type:    constants.AuditAgreementConfirmed,
				Actor:   role,
				Content: fmt.Sprintf("Сторона %s подтвердила цену %s, ожидается вторая сторона", role, outcome.FinalPrice.StringFixed(2)),
				Metadata: map[string]interface{}{
					"actor_id":    actorID,
					"final_price": outcome.FinalPrice.StringFixed(2),
					"both_agreed": false,
				},
				CreatedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.mapTxError(err)
	}

	if outcome.FlagChanged {
		s.invalidateSnapshot(ctx, id)
	}
	if outcome.BothAgreed {
		s.bus.Publish(ctx, events.AgreementReachedEvent{
			OrderID:    order.ID,
			FinalPrice: outcome.FinalPrice,
			AgreedAt:   now,
		})
	}

	orderDTO, err := s.buildOrderDTO(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ConfirmAgreementResultDTO{Order: *orderDTO, BothAgreed: outcome.BothAgreed}, nil
}

func (s *OrderService) SetStatus(ctx context.Context, orderID string, statusData dto.SetStatusDTO) (*dto.OrderDTO, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	newStatus := constants.OrderStatus(statusData.Status)
	// Клиент вправе только отменить собственный заказ; подтверждение оплаты
	// и завершение - операции администратора.
	if role == constants.ActorCustomer && newStatus != constants.StatusCancelled {
		return nil, apperrors.NewInvalidTransitionError("клиенту доступна только отмена заказа")
	}

	now := time.Now()

	err = s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdateInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if role == constants.ActorCustomer && order.CustomerID != actorID {
			return apperrors.NewNotFoundError("заказ %s не найден", orderID)
		}

		oldStatus, err := order.ChangeStatus(newStatus, now)
		if err != nil {
			return err
		}

		if err := s.orderRepo.UpdateStatusInTx(ctx, tx, id, order.Status, now); err != nil {
			return err
		}
		return s.auditStatusChange(ctx, tx, id, oldStatus, order.Status, role, actorID, now)
	})
	if err != nil {
		return nil, s.mapTxError(err)
	}

	s.invalidateSnapshot(ctx, id)
	return s.buildOrderDTO(ctx, id)
}

func (s *OrderService) GetOrders(ctx context.Context, status string, limit, offset uint64) ([]dto.OrderDTO, uint64, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, 0, err
	}

	if limit == 0 || limit > 200 {
		limit = 200
	}

	// Клиент видит только собственные заказы, администратор - все.
	var customerID *uint64
	if role == constants.ActorCustomer {
		customerID = &actorID
	}

	orders, total, err := s.orderRepo.GetOrders(ctx, customerID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	result := make([]dto.OrderDTO, 0, len(orders))
	for i := range orders {
		result = append(result, dto.NewOrderDTO(&orders[i]))
	}
	return result, total, nil
}

const snapshotAuditTail = 20

// FindOrder возвращает снапшот заказа с хвостом аудита. Снапшот кешируется с
// коротким TTL под polling-клиентов и сбрасывается каждой мутацией.
func (s *OrderService) FindOrder(ctx context.Context, orderID string) (*dto.OrderSnapshotDTO, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	if cached, err := s.cacheRepo.Get(ctx, snapshotCacheKey(id)); err == nil && cached != "" {
		var snapshot dto.OrderSnapshotDTO
		if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
			if role == constants.ActorCustomer && snapshot.Order.CustomerID != actorID {
				return nil, apperrors.NewNotFoundError("заказ %s не найден", orderID)
			}
			return &snapshot, nil
		}
	}

	orderDTO, err := s.buildOrderDTO(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.auditRepo.FindByOrderID(ctx, id, "", snapshotAuditTail)
	if err != nil {
		return nil, err
	}
	tail := make([]dto.AuditLogDTO, 0, len(entries))
	for _, entry := range entries {
		tail = append(tail, dto.NewAuditLogDTO(entry))
	}

	snapshot := &dto.OrderSnapshotDTO{Order: *orderDTO, AuditTail: tail}

	if encoded, err := json.Marshal(snapshot); err == nil {
		if err := s.cacheRepo.Set(ctx, snapshotCacheKey(id), string(encoded), s.auditCfg.SnapshotTTL); err != nil {
			s.logger.Warn("Не удалось закешировать снапшот заказа", zap.Error(err))
		}
	}

	if role == constants.ActorCustomer && snapshot.Order.CustomerID != actorID {
		return nil, apperrors.NewNotFoundError("заказ %s не найден", orderID)
	}
	return snapshot, nil
}

func (s *OrderService) GetAuditTrail(ctx context.Context, orderID string, typeFilter string, limit uint64) ([]dto.AuditLogDTO, error) {
	actorID, role, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	if typeFilter != "" && !constants.IsValidAuditType(constants.AuditLogType(typeFilter)) {
		return nil, apperrors.NewInvalidArgumentError("неизвестный тип записи аудита %s", typeFilter)
	}

	order, err := s.orderRepo.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == constants.ActorCustomer && order.CustomerID != actorID {
		return nil, apperrors.NewNotFoundError("заказ %s не найден", orderID)
	}

	entries, err := s.auditRepo.FindByOrderID(ctx, id, typeFilter, limit)
	if err != nil {
		return nil, err
	}

	// Репозиторий отдает новые записи первыми; журнал читается хронологически.
	result := make([]dto.AuditLogDTO, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		result = append(result, dto.NewAuditLogDTO(entries[i]))
	}
	return result, nil
}

// --- внутренние хелперы ---

func (s *OrderService) auditStatusChange(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, oldStatus, newStatus constants.OrderStatus, actor constants.AuditActor, actorID uint64, now time.Time) error {
	return s.auditRepo.CreateInTx(ctx, tx, &entities.AuditLogEntry{
		OrderID: orderID,
		Type:    constants.AuditStatusChanged,
		Actor:   actor,
		Content: fmt.Sprintf("Статус изменен с %s на %s", oldStatus, newStatus),
		Metadata: map[string]interface{}{
			"old_status": string(oldStatus),
			"new_status": string(newStatus),
			"changed_by": actorID,
		},
		CreatedAt: now,
	})
}

func (s *OrderService) buildOrderDTO(ctx context.Context, id uuid.UUID) (*dto.OrderDTO, error) {
	order, err := s.orderRepo.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PriceHistory, err = s.revisionRepo.FindByOrderID(ctx, id); err != nil {
		return nil, err
	}
	result := dto.NewOrderDTO(order)
	return &result, nil
}

func (s *OrderService) invalidateSnapshot(ctx context.Context, id uuid.UUID) {
	if err := s.cacheRepo.Del(ctx, snapshotCacheKey(id)); err != nil {
		s.logger.Warn("Не удалось сбросить кеш снапшота", zap.String("orderID", id.String()), zap.Error(err))
	}
}

// mapTxError переводит сбои сериализации в ConcurrencyConflict; доменные
// HttpError проходят без изменений.
func (s *OrderService) mapTxError(err error) error {
	var httpErr *apperrors.HttpError
	if errors.As(err, &httpErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 - serialization_failure, 40P01 - deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return apperrors.NewConcurrencyConflictError(err)
		}
	}

	s.logger.Error("Ошибка транзакции заказа", zap.Error(err))
	return err
}

func snapshotCacheKey(id uuid.UUID) string {
	return "order:snapshot:" + id.String()
}

func parseOrderID(orderID string) (uuid.UUID, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return uuid.Nil, apperrors.NewInvalidArgumentError("некорректный ID заказа %q", orderID)
	}
	return id, nil
}

func actorFromCtx(ctx context.Context) (uint64, constants.AuditActor, error) {
	actorID, ok := ctx.Value(contextkeys.ActorIDKey).(uint64)
	if !ok || actorID == 0 {
		return 0, "", apperrors.ErrActorNotFoundInContext
	}
	role, ok := ctx.Value(contextkeys.ActorRoleKey).(constants.AuditActor)
	if !ok || (role != constants.ActorCustomer && role != constants.ActorAdmin) {
		return 0, "", apperrors.ErrInvalidActorRole
	}
	return actorID, role, nil
}

func nullDecimalFromPtr(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
