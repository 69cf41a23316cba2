package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// idempotencyRepositoryInMemory — in-memory хранилище idempotency ключей.
type idempotencyRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return newIdempotencyRepository()
}

func newIdempotencyRepository() *idempotencyRepositoryInMemory {
	return &idempotencyRepositoryInMemory{records: make(map[string]domain.IdempotencyRecord)}
}

// CreateProcessing регистрирует ключ. Если ключ уже занят, возвращает
// существующую запись и ErrIdempotencyKeyExists.
func (r *idempotencyRepositoryInMemory) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok {
		return existing, domain.ErrIdempotencyKeyExists
	}

	now := time.Now().UTC()
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = record
	return record, nil
}

// Get возвращает запись по ключу или ErrIdempotencyNotFound.
func (r *idempotencyRepositoryInMemory) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyNotFound
	}
	return record, nil
}

// MarkDone фиксирует успешное завершение обработки и созданный заказ.
func (r *idempotencyRepositoryInMemory) MarkDone(ctx context.Context, key, orderID string) error {
	return r.mark(ctx, key, func(record *domain.IdempotencyRecord) {
		record.Status = domain.IdempotencyStatusDone
		record.OrderID = orderID
		record.FailureReason = ""
	})
}

// MarkFailed фиксирует ошибку обработки.
func (r *idempotencyRepositoryInMemory) MarkFailed(ctx context.Context, key, reason string) error {
	return r.mark(ctx, key, func(record *domain.IdempotencyRecord) {
		record.Status = domain.IdempotencyStatusFailed
		record.FailureReason = reason
	})
}

func (r *idempotencyRepositoryInMemory) mark(ctx context.Context, key string, apply func(*domain.IdempotencyRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyNotFound
	}
	apply(&record)
	record.UpdatedAt = time.Now().UTC()
	r.records[key] = record
	return nil
}

// DeleteExpired удаляет до limit записей с истёкшим TTL и возвращает их количество.
func (r *idempotencyRepositoryInMemory) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	for key, record := range r.records {
		if record.TTLAt.After(before) {
			continue
		}
		delete(r.records, key)
		deleted++
		if deleted >= limit {
			break
		}
	}
	return deleted, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
