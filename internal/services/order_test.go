package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cake-order-system/internal/dto"
	"cake-order-system/internal/entities"
	"cake-order-system/internal/repositories"
	"cake-order-system/pkg/config"
	"cake-order-system/pkg/constants"
	"cake-order-system/pkg/contextkeys"
	apperrors "cake-order-system/pkg/errors"
	"cake-order-system/pkg/eventbus"
)

// --- фейки репозиториев ---

type fakeOrderRepo struct {
	orders  map[uuid.UUID]entities.Order
	findErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]entities.Order)}
}

func (r *fakeOrderRepo) CreateOrderInTx(_ context.Context, _ pgx.Tx, order *entities.Order) error {
	r.orders[order.ID] = *order
	return nil
}

func (r *fakeOrderRepo) FindOrderForUpdateInTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*entities.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	order, ok := r.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("заказ %s не найден", id)
	}
	return &order, nil
}

func (r *fakeOrderRepo) UpdateNegotiationStateInTx(_ context.Context, _ pgx.Tx, order *entities.Order) error {
	r.orders[order.ID] = *order
	return nil
}

func (r *fakeOrderRepo) UpdateStatusInTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status constants.OrderStatus, updatedAt time.Time) error {
	order := r.orders[id]
	order.Status = status
	order.UpdatedAt = &updatedAt
	r.orders[id] = order
	return nil
}

func (r *fakeOrderRepo) FindOrder(_ context.Context, id uuid.UUID) (*entities.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("заказ %s не найден", id)
	}
	return &order, nil
}

func (r *fakeOrderRepo) GetOrders(_ context.Context, customerID *uint64, status string, limit, offset uint64) ([]entities.Order, uint64, error) {
	var result []entities.Order
	for _, order := range r.orders {
		if customerID != nil && order.CustomerID != *customerID {
			continue
		}
		if status != "" && string(order.Status) != status {
			continue
		}
		result = append(result, order)
	}
	return result, uint64(len(result)), nil
}

type fakeRevisionRepo struct {
	revisions []entities.PriceRevision
}

func (r *fakeRevisionRepo) CreateInTx(_ context.Context, _ pgx.Tx, revision *entities.PriceRevision) error {
	revision.ID = uint64(len(r.revisions) + 1)
	r.revisions = append(r.revisions, *revision)
	return nil
}

func (r *fakeRevisionRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]entities.PriceRevision, error) {
	var result []entities.PriceRevision
	for _, rev := range r.revisions {
		if rev.OrderID == orderID {
			result = append(result, rev)
		}
	}
	return result, nil
}

type fakeAuditRepo struct {
	entries   []entities.AuditLogEntry
	createErr error
}

func (r *fakeAuditRepo) CreateInTx(_ context.Context, _ pgx.Tx, entry *entities.AuditLogEntry) error {
	if r.createErr != nil {
		return r.createErr
	}
	entry.ID = uint64(len(r.entries) + 1)
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *entities.AuditLogEntry) error {
	return r.CreateInTx(ctx, nil, entry)
}

func (r *fakeAuditRepo) FindByOrderID(_ context.Context, orderID uuid.UUID, typeFilter string, limit uint64) ([]entities.AuditLogEntry, error) {
	var result []entities.AuditLogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if entry.OrderID != orderID {
			continue
		}
		if typeFilter != "" && string(entry.Type) != typeFilter {
			continue
		}
		result = append(result, entry)
		if limit > 0 && uint64(len(result)) >= limit {
			break
		}
	}
	return result, nil
}

// типов по заказу, без фильтра
func (r *fakeAuditRepo) typesFor(orderID uuid.UUID) []constants.AuditLogType {
	var types []constants.AuditLogType
	for _, entry := range r.entries {
		if entry.OrderID == orderID {
			types = append(types, entry.Type)
		}
	}
	return types
}

type fakeCacheRepo struct {
	store map[string]string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{store: make(map[string]string)}
}

func (c *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.store[key] = fmt.Sprintf("%v", value)
	return nil
}

func (c *fakeCacheRepo) Get(_ context.Context, key string) (string, error) {
	return c.store[key], nil
}

func (c *fakeCacheRepo) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.store, key)
	}
	return nil
}

// fakeTxManager воспроизводит откат: при ошибке fn состояние фейковых
// хранилищ восстанавливается из снимка, сделанного перед вызовом.
type fakeTxManager struct {
	orders    *fakeOrderRepo
	revisions *fakeRevisionRepo
	audit     *fakeAuditRepo
}

func (m *fakeTxManager) RunInTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	ordersSnapshot := make(map[uuid.UUID]entities.Order, len(m.orders.orders))
	for id, order := range m.orders.orders {
		ordersSnapshot[id] = order
	}
	revisionsSnapshot := len(m.revisions.revisions)
	auditSnapshot := len(m.audit.entries)

	if err := fn(nil); err != nil {
		m.orders.orders = ordersSnapshot
		m.revisions.revisions = m.revisions.revisions[:revisionsSnapshot]
		m.audit.entries = m.audit.entries[:auditSnapshot]
		return err
	}
	return nil
}

type serviceFixture struct {
	svc       OrderServiceInterface
	orders    *fakeOrderRepo
	revisions *fakeRevisionRepo
	audit     *fakeAuditRepo
	cache     *fakeCacheRepo
	tx        *fakeTxManager
}

func newFixture(t *testing.T, auditCfg config.AuditConfig) *serviceFixture {
	t.Helper()
	orders := newFakeOrderRepo()
	revisions := &fakeRevisionRepo{}
	audit := &fakeAuditRepo{}
	cache := newFakeCacheRepo()
	tx := &fakeTxManager{orders: orders, revisions: revisions, audit: audit}

	svc := NewOrderService(
		tx, orders, revisions, audit, cache,
		eventbus.New(zap.NewNop()), auditCfg, zap.NewNop(),
	)
	return &serviceFixture{svc: svc, orders: orders, revisions: revisions, audit: audit, cache: cache, tx: tx}
}

var _ repositories.OrderRepositoryInterface = (*fakeOrderRepo)(nil)
var _ repositories.PriceRevisionRepositoryInterface = (*fakeRevisionRepo)(nil)
var _ repositories.AuditLogRepositoryInterface = (*fakeAuditRepo)(nil)
var _ repositories.CacheRepositoryInterface = (*fakeCacheRepo)(nil)
var _ repositories.TxManagerInterface = (*fakeTxManager)(nil)

func ctxWithActor(actorID uint64, role constants.AuditActor) context.Context {
	ctx := context.WithValue(context.Background(), contextkeys.ActorIDKey, actorID)
	return context.WithValue(ctx, contextkeys.ActorRoleKey, role)
}

func createTestOrder(t *testing.T, f *serviceFixture, customerID uint64) *dto.OrderDTO {
	t.Helper()
	order, err := f.svc.CreateOrder(ctxWithActor(customerID, constants.ActorCustomer), dto.CreateOrderDTO{
		Items: []dto.CreateOrderItemDTO{
			{ProductID: 7, Quantity: 2, UnitPrice: decimal.RequireFromString("50.00")},
		},
		DeliveryAddress: "ул. Тестовая, 1",
		DeliveryDate:    time.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	return order
}

func ptrDecimal(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ptrString(s string) *string { return &s }

// --- тесты ---

func TestCreateOrder_WritesAuditEntry(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})

	order := createTestOrder(t, f, 42)

	assert.Equal(t, string(constants.StatusPending), order.Status)
	assert.Equal(t, "100.00", order.OriginalPrice)

	orderID := uuid.MustParse(order.ID)
	types := f.audit.typesFor(orderID)
	require.Len(t, types, 1)
	assert.Equal(t, constants.AuditOrderCreated, types[0])
	assert.Equal(t, constants.ActorCustomer, f.audit.entries[0].Actor)
}

// Каждая мутация оставляет след: полный цикл переговоров порождает
// ровно те записи аудита и именно в таком порядке.
func TestNegotiationAuditCompleteness(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)
	orderID := uuid.MustParse(order.ID)

	adminCtx := ctxWithActor(1, constants.ActorAdmin)
	customerCtx := ctxWithActor(42, constants.ActorCustomer)

	revised, err := f.svc.ReviseProposedPrice(adminCtx, order.ID, dto.RevisePriceDTO{
		NegotiatedPrice: ptrDecimal("120.00"),
		Reason:          ptrString("кастомный топпер"),
	})
	require.NoError(t, err)
	assert.Equal(t, string(constants.StatusNegotiating), revised.Status)
	require.NotNil(t, revised.NegotiatedPrice)
	assert.Equal(t, "120.00", *revised.NegotiatedPrice)
	require.Len(t, revised.PriceHistory, 1)

	first, err := f.svc.ConfirmAgreement(adminCtx, order.ID)
	require.NoError(t, err)
	assert.False(t, first.BothAgreed)
	assert.True(t, first.Order.AgreedByAdmin)

	second, err := f.svc.ConfirmAgreement(customerCtx, order.ID)
	require.NoError(t, err)
	assert.True(t, second.BothAgreed)
	assert.Equal(t, string(constants.StatusAwaitingPayment), second.Order.Status)
	assert.NotNil(t, second.Order.AgreedAt)

	assert.Equal(t, []constants.AuditLogType{
		constants.AuditOrderCreated,
		constants.AuditStatusChanged,      // PENDING -> NEGOTIATING
		constants.AuditPriceUpdated,       // 100.00 -> 120.00
		constants.AuditStatusChanged,      // NEGOTIATING -> AWAITING_PAYMENT
		constants.AuditAgreementConfirmed, // обоюдное
	}, f.audit.typesFor(orderID))

	// Автоматические переходы фиксируются от имени системы.
	assert.Equal(t, constants.ActorSystem, f.audit.entries[1].Actor)
	assert.Equal(t, true, f.audit.entries[4].Metadata["both_agreed"])
}

// По умолчанию одиночное согласие аудита не порождает; с включенной опцией
// комплаенса появляется запись с both_agreed=false.
func TestIndividualAgreementAuditToggle(t *testing.T) {
	f := newFixture(t, config.AuditConfig{IndividualAgreements: true})
	order := createTestOrder(t, f, 42)
	orderID := uuid.MustParse(order.ID)

	_, err := f.svc.ReviseProposedPrice(ctxWithActor(1, constants.ActorAdmin), order.ID, dto.RevisePriceDTO{
		NegotiatedPrice: ptrDecimal("120.00"),
	})
	require.NoError(t, err)

	result, err := f.svc.ConfirmAgreement(ctxWithActor(1, constants.ActorAdmin), order.ID)
	require.NoError(t, err)
	assert.False(t, result.BothAgreed)

	types := f.audit.typesFor(orderID)
	require.Equal(t, constants.AuditAgreementConfirmed, types[len(types)-1])
	last := f.audit.entries[len(f.audit.entries)-1]
	assert.Equal(t, false, last.Metadata["both_agreed"])
}

// Повторное согласие той же роли не пишет ни состояния, ни аудита.
func TestConfirmAgreement_RepeatIsNoop(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)

	adminCtx := ctxWithActor(1, constants.ActorAdmin)
	_, err := f.svc.ReviseProposedPrice(adminCtx, order.ID, dto.RevisePriceDTO{NegotiatedPrice: ptrDecimal("120.00")})
	require.NoError(t, err)

	_, err = f.svc.ConfirmAgreement(adminCtx, order.ID)
	require.NoError(t, err)
	auditBefore := len(f.audit.entries)

	result, err := f.svc.ConfirmAgreement(adminCtx, order.ID)
	require.NoError(t, err)
	assert.False(t, result.BothAgreed)
	assert.Len(t, f.audit.entries, auditBefore)
}

// Сбой записи аудита откатывает всю мутацию: статус и цена не меняются.
func TestAuditFailureRollsBackMutation(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)
	orderID := uuid.MustParse(order.ID)

	f.audit.createErr = apperrors.NewAuditPersistenceError(errors.New("disk full"))

	_, err := f.svc.ReviseProposedPrice(ctxWithActor(1, constants.ActorAdmin), order.ID, dto.RevisePriceDTO{
		NegotiatedPrice: ptrDecimal("120.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuditPersistenceFailure)

	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 503, httpErr.Code)

	stored := f.orders.orders[orderID]
	assert.Equal(t, constants.StatusPending, stored.Status)
	assert.False(t, stored.NegotiatedPrice.Valid)
	assert.Empty(t, f.revisions.revisions)
}

// Сбои сериализации превращаются в ConcurrencyConflict (409, retryable).
func TestSerializationFailureMapsToConcurrencyConflict(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)

	f.orders.findErr = &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

	_, err := f.svc.ReviseProposedPrice(ctxWithActor(1, constants.ActorAdmin), order.ID, dto.RevisePriceDTO{
		NegotiatedPrice: ptrDecimal("120.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 409, httpErr.Code)
}

// Чужой заказ для клиента неотличим от несуществующего.
func TestCustomerScoping(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)

	strangerCtx := ctxWithActor(99, constants.ActorCustomer)

	_, err := f.svc.ReviseProposedPrice(strangerCtx, order.ID, dto.RevisePriceDTO{NegotiatedPrice: ptrDecimal("120.00")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.ConfirmAgreement(strangerCtx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.GetAuditTrail(strangerCtx, order.ID, "", 50)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Список заказов чужого клиента пуст, администратор видит все.
	list, total, err := f.svc.GetOrders(strangerCtx, "", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	list, total, err = f.svc.GetOrders(ctxWithActor(1, constants.ActorAdmin), "", 50, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.EqualValues(t, 1, total)
}

func TestSetStatus_CustomerCanOnlyCancel(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)
	customerCtx := ctxWithActor(42, constants.ActorCustomer)

	_, err := f.svc.SetStatus(customerCtx, order.ID, dto.SetStatusDTO{Status: string(constants.StatusPaid)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	cancelled, err := f.svc.SetStatus(customerCtx, order.ID, dto.SetStatusDTO{Status: string(constants.StatusCancelled)})
	require.NoError(t, err)
	assert.Equal(t, string(constants.StatusCancelled), cancelled.Status)

	orderID := uuid.MustParse(order.ID)
	types := f.audit.typesFor(orderID)
	assert.Equal(t, constants.AuditStatusChanged, types[len(types)-1])
	assert.Equal(t, constants.ActorCustomer, f.audit.entries[len(f.audit.entries)-1].Actor)
}

func TestSetStatus_ManualCannotPerformAutomaticEdge(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)
	adminCtx := ctxWithActor(1, constants.ActorAdmin)

	_, err := f.svc.ReviseProposedPrice(adminCtx, order.ID, dto.RevisePriceDTO{NegotiatedPrice: ptrDecimal("120.00")})
	require.NoError(t, err)

	// AWAITING_PAYMENT достижим только через обоюдное согласие.
	_, err = f.svc.SetStatus(adminCtx, order.ID, dto.SetStatusDTO{Status: string(constants.StatusAwaitingPayment)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestFindOrder_SnapshotCachedAndInvalidated(t *testing.T) {
	f := newFixture(t, config.AuditConfig{SnapshotTTL: 3 * time.Second})
	order := createTestOrder(t, f, 42)
	adminCtx := ctxWithActor(1, constants.ActorAdmin)

	snapshot, err := f.svc.FindOrder(adminCtx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, snapshot.Order.ID)
	require.NotEmpty(t, snapshot.AuditTail)
	assert.Contains(t, f.cache.store, "order:snapshot:"+order.ID)

	// Мутация сбрасывает кеш.
	_, err = f.svc.ReviseProposedPrice(adminCtx, order.ID, dto.RevisePriceDTO{NegotiatedPrice: ptrDecimal("120.00")})
	require.NoError(t, err)
	assert.NotContains(t, f.cache.store, "order:snapshot:"+order.ID)
}

func TestGetAuditTrail_TypeFilter(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})
	order := createTestOrder(t, f, 42)
	adminCtx := ctxWithActor(1, constants.ActorAdmin)

	_, err := f.svc.ReviseProposedPrice(adminCtx, order.ID, dto.RevisePriceDTO{NegotiatedPrice: ptrDecimal("120.00")})
	require.NoError(t, err)

	entries, err := f.svc.GetAuditTrail(adminCtx, order.ID, string(constants.AuditPriceUpdated), 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(constants.AuditPriceUpdated), entries[0].Type)

	_, err = f.svc.GetAuditTrail(adminCtx, order.ID, "BOGUS_TYPE", 50)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestInvalidOrderID(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})

	_, err := f.svc.FindOrder(ctxWithActor(1, constants.ActorAdmin), "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestMissingActorContext(t *testing.T) {
	f := newFixture(t, config.AuditConfig{})

	_, err := f.svc.FindOrder(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrActorNotFoundInContext)
}
