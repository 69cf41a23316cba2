package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

type productRepository struct {
	db dbtx
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if product.Version <= 0 {
		product.Version = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, price_minor, quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		product.ID, product.SKU, product.Name, product.PriceMinor,
		product.Quantity, product.Version, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sku, name, price_minor, quantity, version, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.SKU, &product.Name, &product.PriceMinor,
		&product.Quantity, &product.Version, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

// FindByIDs возвращает только найденные товары; отсутствующие идентификаторы
// просто не попадают в результат.
func (r *productRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, sku, name, price_minor, quantity, version, created_at, updated_at
		FROM products
		WHERE id IN (%s)
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("find products by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.SKU, &product.Name, &product.PriceMinor,
			&product.Quantity, &product.Version, &product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		byID[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	// Результат в порядке запрошенных идентификаторов, дубликаты схлопываются.
	result := make([]domain.Product, 0, len(byID))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := byID[id]; ok {
			result = append(result, product)
		}
	}

	return result, nil
}

// UpdateQuantities применяет изменения остатков с проверкой версий.
// Вне транзакции TxManager каждая строка проверяется независимо, поэтому
// атомарность всего набора гарантируется только при вызове внутри WithinTx.
func (r *productRepository) UpdateQuantities(ctx context.Context, updates []domain.StockUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	for _, update := range updates {
		res, err := r.db.ExecContext(ctx, `
			UPDATE products
			SET quantity = $1,
			    version = version + 1,
			    updated_at = $2
			WHERE id = $3
			  AND version = $4
		`, update.NewQuantity, now, update.ProductID, update.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("update product quantity: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := r.productExists(ctx, update.ProductID)
			if err != nil {
				return err
			}
			if !exists {
				return &domain.ProductNotFoundError{ProductID: update.ProductID}
			}
			return domain.ErrStockConflict
		}
	}

	return nil
}

func (r *productRepository) productExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var _ domain.ProductRepository = (*productRepository)(nil)
