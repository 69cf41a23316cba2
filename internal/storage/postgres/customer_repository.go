package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

type customerRepository struct {
	db dbtx
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`, customer.ID, customer.Name, strings.ToLower(strings.TrimSpace(customer.Email)), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Уникальны и PK, и LOWER(email); конфликт по email существенно вероятнее.
			if exists, checkErr := r.existsByID(ctx, customer.ID); checkErr == nil && exists {
				return domain.ErrCustomerExists
			}
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert customer: %w", err)
	}

	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		WHERE id = $1
	`, id))
}

func (r *customerRepository) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		WHERE LOWER(email) = LOWER($1)
	`, strings.TrimSpace(email)))
}

func (r *customerRepository) List(ctx context.Context, limit int) ([]domain.Customer, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, email, created_at
		FROM customers
		ORDER BY created_at ASC, id ASC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Email, &customer.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer row: %w", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer rows: %w", err)
	}

	return customers, nil
}

func (r *customerRepository) scanOne(row *sql.Row) (domain.Customer, error) {
	var customer domain.Customer
	err := row.Scan(&customer.ID, &customer.Name, &customer.Email, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) existsByID(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check customer exists: %w", err)
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
