package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// customerRepositoryInMemory — простая in-memory реализация CustomerRepository.
type customerRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.Customer
	byEmail map[string]string
}

// NewCustomerRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewCustomerRepository() domain.CustomerRepository {
	return newCustomerRepository()
}

func newCustomerRepository() *customerRepositoryInMemory {
	return &customerRepositoryInMemory{
		items:   make(map[string]domain.Customer),
		byEmail: make(map[string]string),
	}
}

// Create сохраняет нового покупателя, если ID и email ещё не заняты.
func (r *customerRepositoryInMemory) Create(ctx context.Context, customer domain.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[customer.ID]; exists {
		return domain.ErrCustomerExists
	}
	email := normalizeEmail(customer.Email)
	if _, exists := r.byEmail[email]; exists {
		return domain.ErrEmailTaken
	}

	r.items[customer.ID] = customer
	r.byEmail[email] = customer.ID
	return nil
}

// GetByID возвращает покупателя или ErrCustomerNotFound, если его нет.
func (r *customerRepositoryInMemory) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// GetByEmail возвращает покупателя по email или ErrCustomerNotFound.
func (r *customerRepositoryInMemory) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return r.items[id], nil
}

// List возвращает покупателей, ограничивая выборку limit (если >0).
func (r *customerRepositoryInMemory) List(ctx context.Context, limit int) ([]domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Customer, 0, len(r.items))
	for _, customer := range r.items {
		result = append(result, customer)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
