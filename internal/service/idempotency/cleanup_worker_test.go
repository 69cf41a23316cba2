package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
)

func seedKey(t *testing.T, repo domain.IdempotencyRepository, key string, ttlAt time.Time) {
	t.Helper()
	_, err := repo.CreateProcessing(context.Background(), key, "hash-"+key, ttlAt)
	require.NoError(t, err)
}

func TestCleanupOnce_RemovesOnlyExpired(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	seedKey(t, repo, "expired-1", time.Now().Add(-time.Hour))
	seedKey(t, repo, "expired-2", time.Now().Add(-time.Minute))
	seedKey(t, repo, "live", time.Now().Add(time.Hour))

	worker := NewCleanupWorker(repo)
	removed := worker.CleanupOnce(context.Background())
	require.Equal(t, 2, removed)

	_, err := repo.Get(context.Background(), "live")
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), "expired-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyNotFound)
}

func TestCleanupOnce_DrainsInBatches(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	for i := 0; i < 7; i++ {
		seedKey(t, repo, fmt.Sprintf("expired-%d", i), time.Now().Add(-time.Hour))
	}

	worker := NewCleanupWorker(repo, WithBatchSize(3))
	removed := worker.CleanupOnce(context.Background())
	require.Equal(t, 7, removed)
}

func TestCleanupOnce_CancelledContext(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	seedKey(t, repo, "expired", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := NewCleanupWorker(repo)
	removed := worker.CleanupOnce(ctx)
	require.Zero(t, removed)

	_, err := repo.Get(context.Background(), "expired")
	require.NoError(t, err)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	seedKey(t, repo, "expired", time.Now().Add(-time.Hour))

	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := repo.Get(context.Background(), "expired")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop after context cancel")
	}
}
