package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

func seedProduct(t *testing.T, store *Store, id string, qty int32, price int64) domain.Product {
	t.Helper()

	now := time.Now().UTC()
	product := domain.Product{
		ID:         id,
		SKU:        "sku-" + id,
		Name:       "product " + id,
		PriceMinor: price,
		Quantity:   qty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.Products().Create(context.Background(), product); err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
	return product
}

func TestStore_WithinTx_Commit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	product := seedProduct(t, store, "p1", 10, 500)

	order := domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		LineItems: []domain.OrderLineItem{
			{ID: "line-1", ProductID: product.ID, Qty: 3, PriceMinor: 500},
		},
		AmountMinor: 1500,
		CreatedAt:   time.Now().UTC(),
	}

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.TxRepositories) error {
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := tx.Products().UpdateQuantities(ctx, []domain.StockUpdate{
			{ProductID: product.ID, NewQuantity: 7, ExpectedVersion: product.Version},
		}); err != nil {
			return err
		}
		_, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.created",
		})
		return err
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	stored, err := store.Orders().GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if len(stored.LineItems) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(stored.LineItems))
	}

	updated, err := store.Products().GetByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("product lookup: %v", err)
	}
	if updated.Quantity != 7 {
		t.Errorf("expected quantity 7, got %d", updated.Quantity)
	}
	if updated.Version != product.Version+1 {
		t.Errorf("expected version bump, got %d", updated.Version)
	}

	stats, err := store.Outbox().Stats(ctx)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Errorf("expected 1 pending outbox message, got %d", stats.PendingCount)
	}
}

func TestStore_WithinTx_RollbackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	product := seedProduct(t, store, "p1", 10, 500)

	bang := errors.New("bang")
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.TxRepositories) error {
		if err := tx.Orders().Create(ctx, domain.Order{ID: "order-1", CustomerID: "c1"}); err != nil {
			return err
		}
		if err := tx.Products().UpdateQuantities(ctx, []domain.StockUpdate{
			{ProductID: product.ID, NewQuantity: 1, ExpectedVersion: product.Version},
		}); err != nil {
			return err
		}
		return bang
	})
	if !errors.Is(err, bang) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	if _, err := store.Orders().GetByID(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("order should have been rolled back, got %v", err)
	}

	restored, err := store.Products().GetByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("product lookup: %v", err)
	}
	if restored.Quantity != 10 || restored.Version != product.Version {
		t.Errorf("product should have been rolled back, got qty=%d version=%d", restored.Quantity, restored.Version)
	}

	stats, err := store.Outbox().Stats(ctx)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Errorf("outbox should be empty after rollback, got %d", stats.PendingCount)
	}
}

func TestProductRepository_UpdateQuantities_VersionConflict(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	product := seedProduct(t, store, "p1", 5, 100)
	other := seedProduct(t, store, "p2", 5, 100)

	err := store.Products().UpdateQuantities(ctx, []domain.StockUpdate{
		{ProductID: other.ID, NewQuantity: 4, ExpectedVersion: other.Version},
		{ProductID: product.ID, NewQuantity: 4, ExpectedVersion: product.Version + 1},
	})
	if !domain.IsStockConflict(err) {
		t.Fatalf("expected stock conflict, got %v", err)
	}

	// Ни одно изменение не должно было примениться.
	unchanged, err := store.Products().GetByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("product lookup: %v", err)
	}
	if unchanged.Quantity != 5 {
		t.Errorf("expected other product untouched, got qty=%d", unchanged.Quantity)
	}
}

func TestProductRepository_FindByIDs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedProduct(t, store, "p1", 5, 100)
	seedProduct(t, store, "p2", 3, 200)

	found, err := store.Products().FindByIDs(ctx, []string{"p2", "p1", "p9", "p1"})
	if err != nil {
		t.Fatalf("find by ids: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 products, got %d", len(found))
	}
	if found[0].ID != "p2" || found[1].ID != "p1" {
		t.Errorf("expected request order preserved, got %s, %s", found[0].ID, found[1].ID)
	}
}

func TestCustomerRepository_EmailUnique(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := domain.Customer{ID: "c1", Name: "Alice", Email: "alice@example.com"}
	if err := store.Customers().Create(ctx, first); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	dup := domain.Customer{ID: "c2", Name: "Mallory", Email: "ALICE@example.com"}
	if err := store.Customers().Create(ctx, dup); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	byEmail, err := store.Customers().GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != "c1" {
		t.Errorf("expected customer c1, got %s", byEmail.ID)
	}
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	repo := store.Idempotency()

	ttl := time.Now().UTC().Add(time.Hour)
	if _, err := repo.CreateProcessing(ctx, "key-1", "hash-1", ttl); err != nil {
		t.Fatalf("create processing: %v", err)
	}

	existing, err := repo.CreateProcessing(ctx, "key-1", "hash-1", ttl)
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		t.Fatalf("expected ErrIdempotencyKeyExists, got %v", err)
	}
	if existing.Status != domain.IdempotencyStatusProcessing {
		t.Errorf("expected processing status, got %s", existing.Status)
	}

	if err := repo.MarkDone(ctx, "key-1", "order-1"); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	record, err := repo.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.IdempotencyStatusDone || record.OrderID != "order-1" {
		t.Errorf("unexpected record after done: %+v", record)
	}

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := repo.CreateProcessing(ctx, "key-2", "hash-2", expired); err != nil {
		t.Fatalf("create processing: %v", err)
	}
	deleted, err := repo.DeleteExpired(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted record, got %d", deleted)
	}
	if _, err := repo.Get(ctx, "key-2"); !errors.Is(err, domain.ErrIdempotencyNotFound) {
		t.Errorf("expected key-2 to be removed, got %v", err)
	}
}
