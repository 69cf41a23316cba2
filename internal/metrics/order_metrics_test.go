package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewOrderMetrics(t *testing.T) {
	metrics := NewOrderMetrics()

	if metrics == nil {
		t.Fatal("NewOrderMetrics should not return nil")
	}
	if metrics.ordersCreated == nil {
		t.Error("ordersCreated counter should not be nil")
	}
	if metrics.ordersRejected == nil {
		t.Error("ordersRejected counter vec should not be nil")
	}
	if metrics.stockConflicts == nil {
		t.Error("stockConflicts counter should not be nil")
	}
	if metrics.commitRetries == nil {
		t.Error("commitRetries counter should not be nil")
	}
	if metrics.createDuration == nil {
		t.Error("createDuration histogram should not be nil")
	}
	if metrics.lineItems == nil {
		t.Error("lineItems histogram should not be nil")
	}
	if metrics.inFlight == nil {
		t.Error("inFlight gauge should not be nil")
	}
}

func TestNewOrderMetrics_DoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newOrderMetricsWithRegisterer(registry)
	second := newOrderMetricsWithRegisterer(registry)

	// Повторная регистрация должна вернуть уже существующие коллекторы.
	first.RecordOrderCreated(1)
	second.RecordOrderCreated(2)

	if got := counterValue(t, registry, "ops_orders_created_total"); got != 2 {
		t.Fatalf("expected orders created counter 2, got %v", got)
	}
}

func TestOrderMetrics_Recorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newOrderMetricsWithRegisterer(registry)

	metrics.RecordOrderCreated(3)
	metrics.RecordOrderRejected(ReasonInsufficientStock)
	metrics.RecordOrderRejected(ReasonInsufficientStock)
	metrics.RecordStockConflict()
	metrics.RecordCommitRetry()
	metrics.RecordCreateDuration(25 * time.Millisecond)
	metrics.RecordInFlightStarted()
	metrics.RecordInFlightFinished()

	if got := counterValue(t, registry, "ops_orders_created_total"); got != 1 {
		t.Errorf("expected 1 created order, got %v", got)
	}
	if got := counterVecValue(t, registry, "ops_orders_rejected_total", "reason", ReasonInsufficientStock); got != 2 {
		t.Errorf("expected 2 rejections, got %v", got)
	}
	if got := counterValue(t, registry, "ops_stock_conflicts_total"); got != 1 {
		t.Errorf("expected 1 stock conflict, got %v", got)
	}
	if got := counterValue(t, registry, "ops_order_commit_retries_total"); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	family := metricFamily(t, registry, name)
	if family == nil || len(family.Metric) == 0 {
		t.Fatalf("metric %s not found", name)
	}
	return family.Metric[0].GetCounter().GetValue()
}

func counterVecValue(t *testing.T, registry *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	family := metricFamily(t, registry, name)
	if family == nil {
		t.Fatalf("metric %s not found", name)
	}
	for _, metric := range family.Metric {
		for _, pair := range metric.Label {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func metricFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}
