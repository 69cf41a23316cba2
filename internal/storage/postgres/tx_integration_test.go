package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

func sampleCustomer(email string) domain.Customer {
	return domain.Customer{
		ID:        uuid.NewString(),
		Name:      "customer " + email,
		Email:     email,
		CreatedAt: time.Now().UTC().Round(time.Microsecond),
	}
}

func sampleOrderFor(customerID, productID string, qty int32, priceMinor int64) domain.Order {
	now := time.Now().UTC().Round(time.Microsecond)
	return domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		LineItems: []domain.OrderLineItem{{
			ID:         uuid.NewString(),
			ProductID:  productID,
			Qty:        qty,
			PriceMinor: priceMinor,
			CreatedAt:  now,
		}},
		AmountMinor: int64(qty) * priceMinor,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestTxManager_PostgresCommitsOrderStockAndOutboxTogether(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	customers := NewCustomerRepository(store)
	products := NewProductRepository(store)
	orders := NewOrderRepository(store)
	outbox := NewOutboxRepository(store)
	tx := NewTxManager(store)

	customer := sampleCustomer("tx-commit@example.com")
	if err := customers.Create(ctx, customer); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	product := sampleProduct("SKU-TX-1", 10, 500)
	if err := products.Create(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}

	order := sampleOrderFor(customer.ID, product.ID, 3, product.PriceMinor)
	err := tx.WithinTx(ctx, func(ctx context.Context, repos domain.TxRepositories) error {
		if err := repos.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := repos.Products().UpdateQuantities(ctx, []domain.StockUpdate{{
			ProductID:       product.ID,
			NewQuantity:     7,
			ExpectedVersion: product.Version,
		}}); err != nil {
			return err
		}
		_, err := repos.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.created",
			Payload:       []byte(`{"order_id":"` + order.ID + `"}`),
		})
		return err
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	stored, err := orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(stored.LineItems) != 1 || stored.LineItems[0].ProductID != product.ID {
		t.Fatalf("unexpected order items: %+v", stored.LineItems)
	}

	updated, err := products.GetByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if updated.Quantity != 7 {
		t.Fatalf("unexpected quantity: %d", updated.Quantity)
	}

	stats, err := outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending outbox message, got %d", stats.PendingCount)
	}
}

func TestTxManager_PostgresRollsBackEverythingOnConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	customers := NewCustomerRepository(store)
	products := NewProductRepository(store)
	orders := NewOrderRepository(store)
	outbox := NewOutboxRepository(store)
	tx := NewTxManager(store)

	customer := sampleCustomer("tx-rollback@example.com")
	if err := customers.Create(ctx, customer); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	product := sampleProduct("SKU-TX-2", 10, 500)
	if err := products.Create(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}

	order := sampleOrderFor(customer.ID, product.ID, 3, product.PriceMinor)
	err := tx.WithinTx(ctx, func(ctx context.Context, repos domain.TxRepositories) error {
		if err := repos.Orders().Create(ctx, order); err != nil {
			return err
		}
		if _, err := repos.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.created",
			Payload:       []byte(`{}`),
		}); err != nil {
			return err
		}
		// Устаревшая версия провоцирует конфликт и откат всей транзакции.
		return repos.Products().UpdateQuantities(ctx, []domain.StockUpdate{{
			ProductID:       product.ID,
			NewQuantity:     7,
			ExpectedVersion: product.Version + 100,
		}})
	})
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	if _, err := orders.GetByID(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("order must not survive rollback, got %v", err)
	}

	untouched, err := products.GetByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if untouched.Quantity != 10 || untouched.Version != product.Version {
		t.Fatalf("product must stay unchanged: %+v", untouched)
	}

	stats, err := outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("outbox must stay empty, got %d pending", stats.PendingCount)
	}
}
