package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// TxManager выполняет функцию в рамках одной SQL-транзакции: все записи через
// переданные репозитории коммитятся вместе либо откатываются вместе.
type TxManager struct {
	db *sql.DB
}

// NewTxManager создаёт менеджер транзакций поверх подключения Store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{db: store.DB()}
}

// WithinTx открывает транзакцию, передаёт tx-привязанные репозитории в fn и
// коммитит при успехе. Любая ошибка fn откатывает все изменения.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.TxRepositories) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	repos := &txRepositories{
		orders:   &orderRepository{db: sqlTx},
		products: &productRepository{db: sqlTx},
		outbox:   &outboxRepository{db: sqlTx},
	}

	if err := fn(ctx, repos); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback tx after %w: %v", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txRepositories struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	outbox   domain.OutboxRepository
}

func (r *txRepositories) Orders() domain.OrderRepository     { return r.orders }
func (r *txRepositories) Products() domain.ProductRepository { return r.products }
func (r *txRepositories) Outbox() domain.OutboxRepository    { return r.outbox }

var (
	_ domain.TxManager      = (*TxManager)(nil)
	_ domain.TxRepositories = (*txRepositories)(nil)
)
