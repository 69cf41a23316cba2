package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

type idempotencyRepository struct {
	db dbtx
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, key, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt, now)
	if err == nil {
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}
	if !isUniqueViolation(err) {
		return domain.IdempotencyRecord{}, fmt.Errorf("insert idempotency key: %w", err)
	}

	// Ключ занят конкурентным или прошлым запросом: отдаём существующую запись.
	existing, getErr := r.Get(ctx, key)
	if getErr != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load existing idempotency key: %w", getErr)
	}
	return existing, domain.ErrIdempotencyKeyExists
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		record  domain.IdempotencyRecord
		orderID sql.NullString
		status  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT key, request_hash, order_id, failure_reason, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(
		&record.Key, &record.RequestHash, &orderID, &record.FailureReason,
		&status, &record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("select idempotency key: %w", err)
	}

	record.Status = domain.IdempotencyStatus(status)
	if orderID.Valid {
		record.OrderID = orderID.String
	}

	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key, orderID string) error {
	return r.mark(ctx, `
		UPDATE idempotency_keys
		SET status = $1, order_id = $2, failure_reason = '', updated_at = NOW()
		WHERE key = $3
	`, string(domain.IdempotencyStatusDone), orderID, key)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key, reason string) error {
	return r.mark(ctx, `
		UPDATE idempotency_keys
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE key = $3
	`, string(domain.IdempotencyStatusFailed), reason, key)
}

func (r *idempotencyRepository) mark(ctx context.Context, query string, args ...any) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update idempotency key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyNotFound
	}

	return nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key
			FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at ASC
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
