package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cake-order-system/internal/entities"
)

// Журнал переговоров о цене. Только INSERT и чтение в порядке добавления -
// UPDATE/DELETE по этой таблице не существует.
type PriceRevisionRepositoryInterface interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, revision *entities.PriceRevision) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]entities.PriceRevision, error)
}

type PriceRevisionRepository struct {
	storage *pgxpool.Pool
}

func NewPriceRevisionRepository(storage *pgxpool.Pool) PriceRevisionRepositoryInterface {
	return &PriceRevisionRepository{storage: storage}
}

func (r *PriceRevisionRepository) CreateInTx(ctx context.Context, tx pgx.Tx, revision *entities.PriceRevision) error {
	query := `
		INSERT INTO price_revisions (order_id, old_price, new_price, delivery_fee, actor_id, reason, created_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6, $7)
		RETURNING id`

	err := tx.QueryRow(ctx, query,
		revision.OrderID, revision.OldPrice.String(), revision.NewPrice.String(),
		nullDecimalToText(revision.DeliveryFee), revision.ActorID, revision.Reason, revision.CreatedAt,
	).Scan(&revision.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи ревизии цены: %w", err)
	}
	return nil
}

func (r *PriceRevisionRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]entities.PriceRevision, error) {
	query := `
		SELECT id, order_id, old_price::text, new_price::text, delivery_fee::text, actor_id, reason, created_at
		FROM price_revisions
		WHERE order_id = $1
		ORDER BY id ASC`

	rows, err := r.storage.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории цен: %w", err)
	}
	defer rows.Close()

	revisions := make([]entities.PriceRevision, 0)
	for rows.Next() {
		var rev entities.PriceRevision
		var oldPrice, newPrice string
		var fee sql.NullString
		if err := rows.Scan(&rev.ID, &rev.OrderID, &oldPrice, &newPrice, &fee, &rev.ActorID, &rev.Reason, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ревизии цены: %w", err)
		}
		if rev.OldPrice, err = decimal.NewFromString(oldPrice); err != nil {
			return nil, err
		}
		if rev.NewPrice, err = decimal.NewFromString(newPrice); err != nil {
			return nil, err
		}
		if rev.DeliveryFee, err = nullDecimalFromText(fee); err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}
