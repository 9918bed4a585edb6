package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cake-order-system/internal/entities"
	"cake-order-system/pkg/constants"
	apperrors "cake-order-system/pkg/errors"
)

type OrderRepositoryInterface interface {
	CreateOrderInTx(ctx context.Context, tx pgx.Tx, order *entities.Order) error
	FindOrderForUpdateInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*entities.Order, error)
	UpdateNegotiationStateInTx(ctx context.Context, tx pgx.Tx, order *entities.Order) error
	UpdateStatusInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status constants.OrderStatus, updatedAt time.Time) error
	FindOrder(ctx context.Context, id uuid.UUID) (*entities.Order, error)
	GetOrders(ctx context.Context, customerID *uint64, status string, limit, offset uint64) ([]entities.Order, uint64, error)
}

type OrderRepository struct {
	storage *pgxpool.Pool
}

func NewOrderRepository(storage *pgxpool.Pool) OrderRepositoryInterface {
	return &OrderRepository{storage: storage}
}

const orderColumns = `
	id, customer_id, status,
	original_price::text, negotiated_price::text, delivery_fee::text,
	agreed_by_customer, agreed_by_admin, agreed_at,
	delivery_address, delivery_date, delivery_time, observations,
	created_at, updated_at`

func (r *OrderRepository) CreateOrderInTx(ctx context.Context, tx pgx.Tx, order *entities.Order) error {
	query := `
		INSERT INTO orders (
			id, customer_id, status, original_price,
			delivery_address, delivery_date, delivery_time, observations,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		order.ID, order.CustomerID, string(order.Status), order.OriginalPrice.String(),
		order.DeliveryAddress, order.DeliveryDate, order.DeliveryTime, order.Observations,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка создания заказа: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4::numeric)`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery, order.ID, item.ProductID, item.Quantity, item.UnitPrice.String()); err != nil {
			return fmt.Errorf("ошибка создания позиции заказа: %w", err)
		}
	}

	return nil
}

// FindOrderForUpdateInTx читает строку заказа с блокировкой FOR UPDATE.
// Позиции и история подгружаются отдельно - для мутации достаточно строки.
func (r *OrderRepository) FindOrderForUpdateInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*entities.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrderRow(tx.QueryRow(ctx, query, id))
}

// UpdateNegotiationStateInTx сохраняет результат работы агрегата: цену,
// доставку, флаги согласия, agreed_at и статус одним UPDATE.
func (r *OrderRepository) UpdateNegotiationStateInTx(ctx context.Context, tx pgx.Tx, order *entities.Order) error {
	query := `
		UPDATE orders SET
			status = $2,
			negotiated_price = $3::numeric,
			delivery_fee = $4::numeric,
			agreed_by_customer = $5,
			agreed_by_admin = $6,
			agreed_at = $7,
			updated_at = $8
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		order.ID, string(order.Status),
		nullDecimalToText(order.NegotiatedPrice), nullDecimalToText(order.DeliveryFee),
		order.AgreedByCustomer, order.AgreedByAdmin, order.AgreedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления заказа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("заказ %s не найден", order.ID)
	}
	return nil
}

func (r *OrderRepository) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status constants.OrderStatus, updatedAt time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса заказа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("заказ %s не найден", id)
	}
	return nil
}

// FindOrder возвращает заказ вместе с позициями. Историю цен сервис
// докладывает из репозитория ревизий.
func (r *OrderRepository) FindOrder(ctx context.Context, id uuid.UUID) (*entities.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrderRow(r.storage.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx,
		`SELECT id, product_id, quantity, unit_price::text FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения позиций заказа: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entities.OrderItem
		var unitPrice string
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &unitPrice); err != nil {
			return nil, fmt.Errorf("ошибка сканирования позиции заказа: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("некорректная цена позиции в БД: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (r *OrderRepository) GetOrders(ctx context.Context, customerID *uint64, status string, limit, offset uint64) ([]entities.Order, uint64, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	countBuilder := psql.Select("COUNT(*)").From("orders")
	listBuilder := psql.Select(
		"id", "customer_id", "status",
		"original_price::text", "negotiated_price::text", "delivery_fee::text",
		"agreed_by_customer", "agreed_by_admin", "agreed_at",
		"delivery_address", "delivery_date", "delivery_time", "observations",
		"created_at", "updated_at",
	).From("orders")

	if customerID != nil {
		countBuilder = countBuilder.Where(sq.Eq{"customer_id": *customerID})
		listBuilder = listBuilder.Where(sq.Eq{"customer_id": *customerID})
	}
	if status != "" {
		countBuilder = countBuilder.Where(sq.Eq{"status": status})
		listBuilder = listBuilder.Where(sq.Eq{"status": status})
	}

	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета заказов: %w", err)
	}

	listQuery, listArgs, err := listBuilder.
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.storage.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка заказов: %w", err)
	}
	defer rows.Close()

	orders := make([]entities.Order, 0)
	for rows.Next() {
		order, err := scanOrderFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *order)
	}
	return orders, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderRow(row pgx.Row) (*entities.Order, error) {
	order, err := scanOrderFromRows(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("заказ не найден")
		}
		return nil, err
	}
	return order, nil
}

func scanOrderFromRows(row rowScanner) (*entities.Order, error) {
	var order entities.Order
	var status string
	var originalPrice string
	var negotiatedPrice, deliveryFee sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&order.ID, &order.CustomerID, &status,
		&originalPrice, &negotiatedPrice, &deliveryFee,
		&order.AgreedByCustomer, &order.AgreedByAdmin, &order.AgreedAt,
		&order.DeliveryAddress, &order.DeliveryDate, &order.DeliveryTime, &order.Observations,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка сканирования заказа: %w", err)
	}

	order.Status = constants.OrderStatus(status)
	if order.OriginalPrice, err = decimal.NewFromString(originalPrice); err != nil {
		return nil, fmt.Errorf("некорректная исходная цена в БД: %w", err)
	}
	if order.NegotiatedPrice, err = nullDecimalFromText(negotiatedPrice); err != nil {
		return nil, fmt.Errorf("некорректная согласуемая цена в БД: %w", err)
	}
	if order.DeliveryFee, err = nullDecimalFromText(deliveryFee); err != nil {
		return nil, fmt.Errorf("некорректная стоимость доставки в БД: %w", err)
	}
	order.CreatedAt = &createdAt
	order.UpdatedAt = &updatedAt

	return &order, nil
}

func nullDecimalToText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func nullDecimalFromText(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
