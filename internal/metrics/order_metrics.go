package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отклонения заказа для label `reason`.
const (
	ReasonInvalidRequest    = "invalid_request"
	ReasonCustomerNotFound  = "customer_not_found"
	ReasonProductNotFound   = "product_not_found"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonStockConflict     = "stock_conflict"
	ReasonTimeout           = "timeout"
	ReasonPersistence       = "persistence"
)

// OrderMetrics содержит метрики для сценария создания заказа.
type OrderMetrics struct {
	// Счётчики исходов
	ordersCreated  prometheus.Counter
	ordersRejected *prometheus.CounterVec

	// Конкурентные конфликты остатков и повторные попытки
	stockConflicts prometheus.Counter
	commitRetries  prometheus.Counter

	// Гистограммы длительности и размера заказа
	createDuration prometheus.Histogram
	lineItems      prometheus.Histogram

	// Gauge для заказов в обработке
	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт новый экземпляр метрик создания заказа.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_orders_created_total",
			Help: "Total number of orders created successfully",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ops_orders_rejected_total",
			Help: "Total number of rejected order requests grouped by reason",
		}, []string{"reason"}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_stock_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts on stock rows",
		}),
		commitRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_order_commit_retries_total",
			Help: "Total number of workflow retries after a stock conflict",
		}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ops_order_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lineItems: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ops_order_line_items",
			Help:    "Number of line items per created order",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ops_orders_in_flight",
			Help: "Number of order creation requests currently being processed",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов и фиксирует размер заказа.
func (m *OrderMetrics) RecordOrderCreated(lineItems int) {
	m.ordersCreated.Inc()
	m.lineItems.Observe(float64(lineItems))
}

// RecordOrderRejected увеличивает счётчик отклонённых запросов по причине.
func (m *OrderMetrics) RecordOrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordStockConflict увеличивает счётчик конфликтов версий остатков.
func (m *OrderMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordCommitRetry увеличивает счётчик повторных попыток коммита.
func (m *OrderMetrics) RecordCommitRetry() {
	m.commitRetries.Inc()
}

// RecordCreateDuration записывает длительность обработки запроса.
func (m *OrderMetrics) RecordCreateDuration(duration time.Duration) {
	m.createDuration.Observe(duration.Seconds())
}

// RecordInFlightStarted увеличивает количество запросов в обработке.
func (m *OrderMetrics) RecordInFlightStarted() {
	m.inFlight.Inc()
}

// RecordInFlightFinished уменьшает количество запросов в обработке.
func (m *OrderMetrics) RecordInFlightFinished() {
	m.inFlight.Dec()
}
