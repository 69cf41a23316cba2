package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

type orderRepository struct {
	db dbtx
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if order.Version <= 0 {
		order.Version = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, amount_minor, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.CustomerID, order.AmountMinor, order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.LineItems) == 0 {
		return nil
	}

	// Все позиции вставляются одним multi-row INSERT.
	placeholders := make([]string, 0, len(order.LineItems))
	args := make([]any, 0, len(order.LineItems)*6)
	for i, item := range order.LineItems {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, item.ID, order.ID, item.ProductID, item.Qty, item.PriceMinor, item.CreatedAt)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, qty, price_minor, created_at)
		VALUES `+strings.Join(placeholders, ","), args...); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var order domain.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, amount_minor, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, &order.AmountMinor,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.LineItems = items

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, customer_id, amount_minor, version, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.CustomerID, &order.AmountMinor,
			&order.Version, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].LineItems = items
	}

	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0)
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
