package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// Store объединяет in-memory репозитории и обеспечивает атомарный коммит
// заказа, остатков и outbox-события: при ошибке fn все изменения
// откатываются к снимку, снятому перед началом.
type Store struct {
	commitMu sync.Mutex

	customers   *customerRepositoryInMemory
	products    *productRepositoryInMemory
	orders      *orderRepositoryInMemory
	outbox      *outboxRepositoryInMemory
	idempotency *idempotencyRepositoryInMemory
}

// NewStore создаёт полный набор in-memory репозиториев.
func NewStore() *Store {
	return &Store{
		customers:   newCustomerRepository(),
		products:    newProductRepository(),
		orders:      newOrderRepository(),
		outbox:      newOutboxRepository(),
		idempotency: newIdempotencyRepository(),
	}
}

// Customers возвращает репозиторий покупателей.
func (s *Store) Customers() domain.CustomerRepository { return s.customers }

// Products возвращает репозиторий товаров.
func (s *Store) Products() domain.ProductRepository { return s.products }

// Orders возвращает репозиторий заказов.
func (s *Store) Orders() domain.OrderRepository { return s.orders }

// Outbox возвращает репозиторий transactional outbox.
func (s *Store) Outbox() domain.OutboxRepository { return s.outbox }

// Idempotency возвращает репозиторий idempotency ключей.
func (s *Store) Idempotency() domain.IdempotencyRepository { return s.idempotency }

// WithinTx выполняет fn над репозиториями стора. Коммиты сериализуются;
// при ошибке состояние заказов, товаров и outbox восстанавливается из снимка.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.TxRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	ordersSnap := s.orders.snapshot()
	productsSnap := s.products.snapshot()
	outboxSnap := s.outbox.snapshot()

	if err := fn(ctx, txRepositories{store: s}); err != nil {
		s.orders.restore(ordersSnap)
		s.products.restore(productsSnap)
		s.outbox.restore(outboxSnap)
		return err
	}
	return nil
}

// txRepositories — представление стора внутри одного коммита.
type txRepositories struct {
	store *Store
}

func (t txRepositories) Orders() domain.OrderRepository     { return t.store.orders }
func (t txRepositories) Products() domain.ProductRepository { return t.store.products }
func (t txRepositories) Outbox() domain.OutboxRepository    { return t.store.outbox }

func (r *orderRepositoryInMemory) snapshot() map[string]domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]domain.Order, len(r.items))
	for id, order := range r.items {
		order.LineItems = append([]domain.OrderLineItem(nil), order.LineItems...)
		snap[id] = order
	}
	return snap
}

func (r *orderRepositoryInMemory) restore(snap map[string]domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = snap
}

func (r *productRepositoryInMemory) snapshot() map[string]domain.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]domain.Product, len(r.items))
	for id, product := range r.items {
		snap[id] = product
	}
	return snap
}

func (r *productRepositoryInMemory) restore(snap map[string]domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = snap
}

func (r *outboxRepositoryInMemory) snapshot() map[string]*outboxRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]*outboxRecord, len(r.records))
	for id, rec := range r.records {
		clone := *rec
		snap[id] = &clone
	}
	return snap
}

func (r *outboxRepositoryInMemory) restore(snap map[string]*outboxRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = snap
}

var _ domain.TxManager = (*Store)(nil)
var _ domain.TxRepositories = txRepositories{}
