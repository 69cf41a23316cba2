package idempotency

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultCleanupBatch    = 500
)

var (
	cleanupRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ops_idempotency_cleanup_removed_total",
		Help: "Total number of expired idempotency keys removed.",
	})
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ops_idempotency_cleanup_runs_total",
		Help: "Total number of idempotency cleanup runs grouped by result.",
	}, []string{"result"})
)

// CleanupOptions задаёт параметры фонового удаления просроченных ключей.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт периодичность очистки.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize ограничивает число ключей, удаляемых за один проход.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// CleanupWorker периодически удаляет idempotency-ключи с истёкшим TTL.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// NewCleanupWorker создаёт воркер очистки idempotency-ключей.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatch
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CleanupOnce(ctx)
		}
	}
}

// CleanupOnce выполняет один проход очистки и возвращает число удалённых ключей.
// Батчи повторяются, пока просроченные ключи не закончатся.
func (w *CleanupWorker) CleanupOnce(ctx context.Context) int {
	removedTotal := 0
	now := time.Now().UTC()

	for {
		if ctx.Err() != nil {
			return removedTotal
		}

		removed, err := w.repo.DeleteExpired(ctx, now, w.batchSize)
		if err != nil {
			cleanupRunsTotal.WithLabelValues("error").Inc()
			w.logger.WithError(err).Warn("failed to delete expired idempotency keys")
			return removedTotal
		}

		removedTotal += removed
		cleanupRemovedTotal.Add(float64(removed))
		if removed < w.batchSize {
			break
		}
	}

	cleanupRunsTotal.WithLabelValues("ok").Inc()
	if removedTotal > 0 {
		w.logger.WithField("removed", removedTotal).Info("expired idempotency keys removed")
	}
	return removedTotal
}
