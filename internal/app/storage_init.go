package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
	"github.com/vladislavdragonenkov/ops/internal/storage/postgres"
)

// storageSet объединяет репозитории и менеджер транзакций одного драйвера.
type storageSet struct {
	driver string

	customers   domain.CustomerRepository
	products    domain.ProductRepository
	orders      domain.OrderRepository
	outbox      domain.OutboxRepository
	idempotency domain.IdempotencyRepository
	tx          domain.TxManager

	ping  func(ctx context.Context) error
	close func() error
}

// initStorage выбирает и инициализирует storage по конфигурации.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageSet, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &storageSet{
			driver:      StorageDriverMemory,
			customers:   store.Customers(),
			products:    store.Products(),
			orders:      store.Orders(),
			outbox:      store.Outbox(),
			idempotency: store.Idempotency(),
			tx:          store,
			ping:        func(context.Context) error { return nil },
			close:       func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return &storageSet{
			driver:      StorageDriverPostgres,
			customers:   postgres.NewCustomerRepository(store),
			products:    postgres.NewProductRepository(store),
			orders:      postgres.NewOrderRepository(store),
			outbox:      postgres.NewOutboxRepository(store),
			idempotency: postgres.NewIdempotencyRepository(store),
			tx:          postgres.NewTxManager(store),
			ping:        store.Ping,
			close:       store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
