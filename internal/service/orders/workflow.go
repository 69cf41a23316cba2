package orders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ops/internal/metrics"
)

const (
	defaultMaxCommitRetries = 3
	defaultRetryBaseDelay   = 10 * time.Millisecond
	defaultIdempotencyTTL   = 24 * time.Hour
)

// RequestedItem — одна строка запроса на создание заказа.
type RequestedItem struct {
	ProductID string
	Qty       int32
}

// CreateOrderRequest описывает запрос на создание заказа.
// IdempotencyKey опционален: при повторе с тем же ключом возвращается
// ранее созданный заказ вместо повторного резервирования.
type CreateOrderRequest struct {
	CustomerID     string
	Items          []RequestedItem
	IdempotencyKey string
}

// Workflow реализует сценарий создания заказа: проверка покупателя и товаров,
// последовательное резервирование остатков, фиксация цен и атомарный коммит
// заказа вместе со списанием остатков и outbox-событием.
type Workflow struct {
	customers   domain.CustomerRepository
	products    domain.ProductRepository
	orders      domain.OrderRepository
	tx          domain.TxManager
	idempotency domain.IdempotencyRepository

	logger  *log.Entry
	metrics *metrics.OrderMetrics

	maxCommitRetries int
	retryBaseDelay   time.Duration
	idempotencyTTL   time.Duration
}

// Options задаёт параметры Workflow.
type Options struct {
	Logger           *log.Entry
	Metrics          *metrics.OrderMetrics
	DisableMetrics   bool
	Idempotency      domain.IdempotencyRepository
	IdempotencyTTL   time.Duration
	MaxCommitRetries int
	RetryBaseDelay   time.Duration
}

// Option настраивает Workflow.
type Option func(*Options)

// WithLogger задаёт logger для workflow.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт заранее созданный набор метрик.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithoutMetrics отключает метрики (для тестов).
func WithoutMetrics() Option {
	return func(opts *Options) {
		opts.DisableMetrics = true
	}
}

// WithIdempotency включает поддержку idempotency-key с заданным TTL записей.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(opts *Options) {
		opts.Idempotency = repo
		opts.IdempotencyTTL = ttl
	}
}

// WithCommitRetries задаёт число повторов коммита при конфликте версий остатков.
func WithCommitRetries(maxRetries int, baseDelay time.Duration) Option {
	return func(opts *Options) {
		opts.MaxCommitRetries = maxRetries
		opts.RetryBaseDelay = baseDelay
	}
}

// NewWorkflow создаёт рабочий экземпляр сценария создания заказа.
func NewWorkflow(
	customers domain.CustomerRepository,
	products domain.ProductRepository,
	orders domain.OrderRepository,
	tx domain.TxManager,
	options ...Option,
) *Workflow {
	opts := Options{
		MaxCommitRetries: defaultMaxCommitRetries,
		RetryBaseDelay:   defaultRetryBaseDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-workflow")
	}
	m := opts.Metrics
	if m == nil && !opts.DisableMetrics {
		m = metrics.NewOrderMetrics()
	}
	if opts.MaxCommitRetries < 0 {
		opts.MaxCommitRetries = 0
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}

	return &Workflow{
		customers:        customers,
		products:         products,
		orders:           orders,
		tx:               tx,
		idempotency:      opts.Idempotency,
		logger:           logger,
		metrics:          m,
		maxCommitRetries: opts.MaxCommitRetries,
		retryBaseDelay:   opts.RetryBaseDelay,
		idempotencyTTL:   opts.IdempotencyTTL,
	}
}

// CreateOrder проверяет запрос и атомарно создаёт заказ со списанием остатков.
// До успешного коммита ни одно хранимое состояние не изменяется.
func (w *Workflow) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	start := time.Now()
	if w.metrics != nil {
		w.metrics.RecordInFlightStarted()
	}
	defer func() {
		if w.metrics != nil {
			w.metrics.RecordInFlightFinished()
			w.metrics.RecordCreateDuration(time.Since(start))
		}
	}()

	if err := validateRequest(req); err != nil {
		w.recordRejection(metrics.ReasonInvalidRequest)
		return domain.Order{}, err
	}

	replayed, order, err := w.beginIdempotent(ctx, req)
	if err != nil {
		return domain.Order{}, err
	}
	if replayed {
		w.logger.WithFields(log.Fields{
			"order_id":        order.ID,
			"idempotency_key": req.IdempotencyKey,
		}).Info("order replayed from idempotency record")
		return order, nil
	}

	order, err = w.createWithRetry(ctx, req)
	w.finishIdempotent(ctx, req, order, err)
	if err != nil {
		w.recordRejection(rejectionReason(err))
		w.logger.WithError(err).WithField("customer_id", req.CustomerID).Warn("order creation rejected")
		return domain.Order{}, err
	}

	if w.metrics != nil {
		w.metrics.RecordOrderCreated(len(order.LineItems))
	}
	w.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"line_items":   len(order.LineItems),
		"amount_minor": order.AmountMinor,
	}).Info("order created")

	return order, nil
}

// GetOrder возвращает ранее созданный заказ.
func (w *Workflow) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return w.orders.GetByID(ctx, id)
}

// ListOrders возвращает заказы покупателя.
func (w *Workflow) ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return w.orders.ListByCustomer(ctx, customerID, limit)
}

// createWithRetry повторяет полный цикл валидации и коммита при конфликте
// версий остатков: свежие количества перечитываются на каждой попытке.
func (w *Workflow) createWithRetry(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	var lastErr error

	for attempt := 0; attempt <= w.maxCommitRetries; attempt++ {
		if attempt > 0 {
			if w.metrics != nil {
				w.metrics.RecordCommitRetry()
			}
			w.logger.WithFields(log.Fields{
				"customer_id": req.CustomerID,
				"attempt":     attempt,
			}).Warn("stock conflict detected, revalidating order")

			// Exponential backoff
			delay := w.retryBaseDelay * time.Duration(1<<uint(attempt-1))
			if delay > 0 {
				select {
				case <-ctx.Done():
					return domain.Order{}, w.mapDependencyErr(ctx.Err())
				case <-time.After(delay):
				}
			}
		}

		order, err := w.attempt(ctx, req)
		if err == nil {
			return order, nil
		}
		if domain.IsStockConflict(err) {
			if w.metrics != nil {
				w.metrics.RecordStockConflict()
			}
			lastErr = err
			continue
		}
		return domain.Order{}, err
	}

	return domain.Order{}, fmt.Errorf("commit failed after %d retries: %w", w.maxCommitRetries, lastErr)
}

// workingStock — остаток товара в рамках одной попытки валидации.
type workingStock struct {
	quantity int32
	version  int64
	price    int64
}

func (w *Workflow) attempt(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	if _, err := w.customers.GetByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return domain.Order{}, fmt.Errorf("customer %s: %w", req.CustomerID, domain.ErrCustomerNotFound)
		}
		return domain.Order{}, w.mapDependencyErr(fmt.Errorf("resolve customer: %w", err))
	}

	// Все товары запрашиваются одним батчем; отсутствующие определяются
	// по разности множеств.
	found, err := w.products.FindByIDs(ctx, distinctProductIDs(req.Items))
	if err != nil {
		return domain.Order{}, w.mapDependencyErr(fmt.Errorf("resolve products: %w", err))
	}

	working := make(map[string]*workingStock, len(found))
	for _, product := range found {
		working[product.ID] = &workingStock{
			quantity: product.Quantity,
			version:  product.Version,
			price:    product.PriceMinor,
		}
	}

	now := time.Now().UTC()
	lines := make([]domain.OrderLineItem, 0, len(req.Items))
	lineIdx := make(map[string]int, len(req.Items))

	for _, item := range req.Items {
		stock, ok := working[item.ProductID]
		if !ok {
			return domain.Order{}, &domain.ProductNotFoundError{ProductID: item.ProductID}
		}

		remaining := stock.quantity - item.Qty
		if remaining < 0 {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Qty,
				Available: stock.quantity,
			}
		}
		// Последовательное резервирование: следующая строка запроса с тем же
		// товаром видит уже уменьшенный остаток.
		stock.quantity = remaining

		if idx, merged := lineIdx[item.ProductID]; merged {
			// Дубликаты товара в запросе сливаются в одну позицию заказа,
			// чтобы сохранить инвариант уникальности товара в заказе.
			lines[idx].Qty += item.Qty
			continue
		}
		lineIdx[item.ProductID] = len(lines)
		lines = append(lines, domain.OrderLineItem{
			ID:        uuid.NewString(),
			ProductID: item.ProductID,
			Qty:       item.Qty,
			// Фиксируем цену на момент оформления: последующие изменения
			// каталога на заказ не влияют.
			PriceMinor: stock.price,
			CreatedAt:  now,
		})
	}

	var amount int64
	for _, line := range lines {
		amount += int64(line.Qty) * line.PriceMinor
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		LineItems:   lines,
		AmountMinor: amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	updates := make([]domain.StockUpdate, 0, len(lines))
	for _, line := range lines {
		stock := working[line.ProductID]
		updates = append(updates, domain.StockUpdate{
			ProductID:       line.ProductID,
			NewQuantity:     stock.quantity,
			ExpectedVersion: stock.version,
		})
	}

	if err := w.commit(ctx, order, updates); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// commit атомарно сохраняет заказ, списывает остатки и ставит событие в outbox.
func (w *Workflow) commit(ctx context.Context, order domain.Order, updates []domain.StockUpdate) error {
	err := w.tx.WithinTx(ctx, func(ctx context.Context, tx domain.TxRepositories) error {
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order record: %w", err)
		}
		if err := tx.Products().UpdateQuantities(ctx, updates); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		event := kafka.NewOrderEvent(kafka.EventTypeOrderCreated, order.ID, order.CustomerID, order.AmountMinor, map[string]interface{}{
			"line_items": len(order.LineItems),
		})
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal order event: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     string(kafka.EventTypeOrderCreated),
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue outbox event: %w", err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if domain.IsStockConflict(err) {
		return err
	}
	return w.mapDependencyErr(fmt.Errorf("commit order: %w", err))
}

// beginIdempotent проверяет idempotency-key и либо возвращает ранее созданный
// заказ (replayed=true), либо регистрирует ключ в статусе processing.
func (w *Workflow) beginIdempotent(ctx context.Context, req CreateOrderRequest) (bool, domain.Order, error) {
	if req.IdempotencyKey == "" || w.idempotency == nil {
		return false, domain.Order{}, nil
	}

	hash := requestHash(req)
	record, err := w.idempotency.CreateProcessing(ctx, req.IdempotencyKey, hash, time.Now().UTC().Add(w.idempotencyTTL))
	if err == nil {
		return false, domain.Order{}, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyExists) {
		return false, domain.Order{}, w.mapDependencyErr(fmt.Errorf("register idempotency key: %w", err))
	}

	if record.RequestHash != hash {
		return false, domain.Order{}, domain.ErrIdempotencyMismatch
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		order, err := w.orders.GetByID(ctx, record.OrderID)
		if err != nil {
			return false, domain.Order{}, w.mapDependencyErr(fmt.Errorf("replay order %s: %w", record.OrderID, err))
		}
		return true, order, nil
	case domain.IdempotencyStatusProcessing:
		return false, domain.Order{}, domain.ErrIdempotencyInProgress
	default:
		// failed: повторная попытка с тем же ключом разрешена.
		return false, domain.Order{}, nil
	}
}

func (w *Workflow) finishIdempotent(ctx context.Context, req CreateOrderRequest, order domain.Order, createErr error) {
	if req.IdempotencyKey == "" || w.idempotency == nil {
		return
	}

	var err error
	if createErr == nil {
		err = w.idempotency.MarkDone(ctx, req.IdempotencyKey, order.ID)
	} else {
		err = w.idempotency.MarkFailed(ctx, req.IdempotencyKey, createErr.Error())
	}
	if err != nil {
		w.logger.WithError(err).WithField("idempotency_key", req.IdempotencyKey).Warn("failed to update idempotency record")
	}
}

// mapDependencyErr переводит ошибки дедлайна коллабораторов в ErrDependencyTimeout,
// остальные инфраструктурные ошибки — в ErrPersistence.
func (w *Workflow) mapDependencyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrDependencyTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}

func (w *Workflow) recordRejection(reason string) {
	if w.metrics != nil {
		w.metrics.RecordOrderRejected(reason)
	}
}

func validateRequest(req CreateOrderRequest) error {
	if req.CustomerID == "" {
		return domain.ErrCustomerRequired
	}
	if len(req.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return domain.ErrItemProductRequired
		}
		if item.Qty <= 0 {
			return fmt.Errorf("product %s: %w", item.ProductID, domain.ErrItemQtyInvalid)
		}
	}
	return nil
}

func distinctProductIDs(items []RequestedItem) []string {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		return metrics.ReasonCustomerNotFound
	case errors.Is(err, domain.ErrProductNotFound):
		return metrics.ReasonProductNotFound
	case domain.IsInsufficientStock(err):
		return metrics.ReasonInsufficientStock
	case domain.IsStockConflict(err):
		return metrics.ReasonStockConflict
	case errors.Is(err, domain.ErrDependencyTimeout):
		return metrics.ReasonTimeout
	default:
		return metrics.ReasonPersistence
	}
}

// requestHash считает стабильный отпечаток запроса для проверки повторов
// с одним idempotency-key.
func requestHash(req CreateOrderRequest) string {
	canonical := struct {
		CustomerID string          `json:"customer_id"`
		Items      []RequestedItem `json:"items"`
	}{
		CustomerID: req.CustomerID,
		Items:      req.Items,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshal структуры из строк и чисел не может упасть.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
