package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository
// с optimistic locking по полю Version.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return newProductRepository()
}

func newProductRepository() *productRepositoryInMemory {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepositoryInMemory) Create(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductExists
	}
	r.items[product.ID] = product
	return nil
}

// GetByID возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepositoryInMemory) GetByID(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	return product, nil
}

// FindByIDs возвращает только найденные товары; порядок соответствует порядку ids.
func (r *productRepositoryInMemory) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := r.items[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

// UpdateQuantities применяет изменения остатков по принципу "всё или ничего":
// сначала проверяются версии всех строк, затем применяются все изменения.
func (r *productRepositoryInMemory) UpdateQuantities(ctx context.Context, updates []domain.StockUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, update := range updates {
		current, ok := r.items[update.ProductID]
		if !ok {
			return &domain.ProductNotFoundError{ProductID: update.ProductID}
		}
		if current.Version != update.ExpectedVersion {
			return domain.ErrStockConflict
		}
		if update.NewQuantity < 0 {
			return domain.ErrQuantityNegative
		}
	}

	now := time.Now().UTC()
	for _, update := range updates {
		product := r.items[update.ProductID]
		product.Quantity = update.NewQuantity
		product.Version++
		product.UpdatedAt = now
		r.items[update.ProductID] = product
	}

	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
