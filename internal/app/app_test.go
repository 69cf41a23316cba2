package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/service/orders"
)

func buildMemoryApp(t *testing.T) *Application {
	t.Helper()

	cfg := DefaultConfig()
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestBuild_MemoryDriverEndToEnd(t *testing.T) {
	app := buildMemoryApp(t)
	ctx := context.Background()

	customer, err := app.Customers.Register(ctx, "Alice", "alice@example.com")
	require.NoError(t, err)

	product := domain.Product{
		ID:         "11111111-1111-1111-1111-111111111111",
		SKU:        "SKU-APP-1",
		Name:       "widget",
		PriceMinor: 500,
		Quantity:   10,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, app.storage.products.Create(ctx, product))

	order, err := app.Workflow.CreateOrder(ctx, orders.CreateOrderRequest{
		CustomerID: customer.ID,
		Items: []orders.RequestedItem{
			{ProductID: product.ID, Qty: 3},
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1500, order.AmountMinor)

	stored, err := app.Workflow.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, customer.ID, stored.CustomerID)
}

func TestBuild_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestHealthEndpointHealthyForMemoryStorage(t *testing.T) {
	app := buildMemoryApp(t)

	rec := httptest.NewRecorder()
	app.Health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
