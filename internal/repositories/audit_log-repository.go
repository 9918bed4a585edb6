package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cake-order-system/internal/entities"
	"cake-order-system/pkg/constants"
	apperrors "cake-order-system/pkg/errors"
)

// AuditLogRepository - append-only приемник записей аудита.
// CreateInTx всегда последний шаг мутирующей транзакции: если запись аудита
// не зафиксировалась, откатывается и парное изменение состояния.
type AuditLogRepositoryInterface interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, entry *entities.AuditLogEntry) error
	Create(ctx context.Context, entry *entities.AuditLogEntry) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID, typeFilter string, limit uint64) ([]entities.AuditLogEntry, error)
}

type AuditLogRepository struct {
	storage *pgxpool.Pool
}

func NewAuditLogRepository(storage *pgxpool.Pool) AuditLogRepositoryInterface {
	return &AuditLogRepository{storage: storage}
}

const insertAuditQuery = `
	INSERT INTO audit_log (order_id, type, actor, content, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`

func (r *AuditLogRepository) CreateInTx(ctx context.Context, tx pgx.Tx, entry *entities.AuditLogEntry) error {
	return r.insert(ctx, tx, entry)
}

// Create пишет запись вне транзакции заказа - для MESSAGE_SENT и
// NOTIFICATION_SENT, которые не трогают состояние заказа.
func (r *AuditLogRepository) Create(ctx context.Context, entry *entities.AuditLogEntry) error {
	return r.insert(ctx, r.storage, entry)
}

func (r *AuditLogRepository) insert(ctx context.Context, q querier, entry *entities.AuditLogEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return apperrors.NewAuditPersistenceError(fmt.Errorf("сериализация metadata: %w", err))
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err := q.QueryRow(ctx, insertAuditQuery,
		entry.OrderID, string(entry.Type), string(entry.Actor), entry.Content, metadata, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return apperrors.NewAuditPersistenceError(err)
	}
	return nil
}

func (r *AuditLogRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID, typeFilter string, limit uint64) ([]entities.AuditLogEntry, error) {
	// Новые записи первыми: с limit это хвост журнала для снапшота.
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "order_id", "type", "actor", "content", "metadata", "created_at").
		From("audit_log").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id DESC")

	if typeFilter != "" {
		builder = builder.Where(sq.Eq{"type": typeFilter})
	}
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	entries := make([]entities.AuditLogEntry, 0)
	for rows.Next() {
		var entry entities.AuditLogEntry
		var entryType, actor string
		var metadata []byte
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entryType, &actor, &entry.Content, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		entry.Type = constants.AuditLogType(entryType)
		entry.Actor = constants.AuditActor(actor)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("некорректный metadata записи аудита: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
