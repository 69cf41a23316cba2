package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ops/internal/health"
	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ops/internal/service/customers"
	"github.com/vladislavdragonenkov/ops/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ops/internal/service/orders"
	"github.com/vladislavdragonenkov/ops/internal/service/outbox"
	rediscache "github.com/vladislavdragonenkov/ops/internal/storage/redis"
	"github.com/vladislavdragonenkov/ops/internal/version"
)

// Application собирает сервисы и фоновые воркеры в готовый к запуску узел.
type Application struct {
	Workflow  *orders.Workflow
	Customers *customers.Service
	Health    *healthcheck.Handler

	cfg           Config
	logger        *log.Entry
	storage       *storageSet
	kafkaProducer *kafka.Producer
	redisClose    func() error
	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
}

// Build инициализирует все зависимости приложения без запуска воркеров.
func Build(ctx context.Context, cfg Config) (*Application, error) {
	logger := log.WithField("component", "app")

	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		storage: storage,
	}

	// Redis-кэш покупателей опционален: без него чтение идёт напрямую в storage.
	customersRepo := storage.customers
	var redisPing func(ctx context.Context) error
	if cfg.RedisAddr != "" {
		client, err := rediscache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Warn("failed to connect to redis, continuing without customer cache")
		} else {
			customersRepo = rediscache.NewCustomerCache(customersRepo, client, cfg.CustomerCacheTTL, nil)
			app.redisClose = client.Close
			redisPing = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			logger.WithField("addr", cfg.RedisAddr).Info("redis customer cache initialized")
		}
	}

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err == nil && producer != nil {
		app.kafkaProducer = producer
	}

	app.Workflow = orders.NewWorkflow(
		customersRepo,
		storage.products,
		storage.orders,
		storage.tx,
		orders.WithLogger(logger.WithField("component", "order-workflow")),
		orders.WithIdempotency(storage.idempotency, cfg.IdempotencyTTL),
		orders.WithCommitRetries(cfg.CommitRetries, cfg.CommitRetryBaseDelay),
	)

	if app.kafkaProducer != nil {
		app.Customers = customers.NewServiceWithKafka(customersRepo, app.kafkaProducer, nil)
	} else {
		app.Customers = customers.NewService(customersRepo, nil)
	}

	// Outbox worker публикует события, только когда Kafka настроен.
	if app.kafkaProducer != nil {
		app.outboxWorker = outbox.NewWorker(
			storage.outbox,
			kafka.NewOutboxPublisher(app.kafkaProducer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(app.kafkaProducer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
	}

	app.cleanupWorker = idempotency.NewCleanupWorker(
		storage.idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)

	app.Health = healthcheck.NewHandler(version.GetVersion())
	app.Health.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", storage.ping))
	if redisPing != nil {
		app.Health.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", redisPing))
	}

	return app, nil
}

// Close освобождает ресурсы приложения.
func (a *Application) Close() {
	closeKafka(a.kafkaProducer, a.logger)
	if a.redisClose != nil {
		if err := a.redisClose(); err != nil {
			a.logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if err := a.storage.close(); err != nil {
		a.logger.WithError(err).Warn("failed to close storage")
	}
}

// Run собирает приложение, запускает фоновые воркеры и HTTP-сервер метрик,
// затем блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	var wg sync.WaitGroup
	if app.outboxWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.outboxWorker.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.cleanupWorker.Run(ctx)
	}()

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, app.logger, app.Health)

	app.logger.WithFields(log.Fields{
		"storage":      app.storage.driver,
		"metrics_addr": cfg.MetricsAddr,
	}).Info("order placement service started")

	<-ctx.Done()
	app.logger.Info("получен сигнал остановки, останавливаем воркеры")

	wg.Wait()
	shutdownHTTP(metricsSrv, app.logger)

	return ctx.Err()
}

// startMetricsServer запускает HTTP-обработчики /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
