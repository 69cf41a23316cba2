package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
	failFirst int
	failAll   bool
	calls     int
}

func (p *recordingPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.failAll || p.calls <= p.failFirst {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) events() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.published...)
}

func enqueue(t *testing.T, repo domain.OutboxRepository, eventType string) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "O1",
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"O1"}`),
	})
	require.NoError(t, err)
	return msg
}

func TestProcessOnce_PublishesAndMarksSent(t *testing.T) {
	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order.created")
	enqueue(t, repo, "order.created")

	publisher := &recordingPublisher{}
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))

	worker.ProcessOnce(context.Background())

	require.Len(t, publisher.events(), 2)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestProcessOnce_RetriesTransientFailure(t *testing.T) {
	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order.created")

	publisher := &recordingPublisher{failFirst: 2}
	worker := NewWorker(repo, publisher, WithMaxAttempts(3), WithRetryBaseDelay(time.Millisecond))

	worker.ProcessOnce(context.Background())

	require.Len(t, publisher.events(), 1)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestProcessOnce_ExhaustedRetriesGoToDLQ(t *testing.T) {
	repo := memory.NewOutboxRepository()
	msg := enqueue(t, repo, "order.created")

	publisher := &recordingPublisher{failAll: true}
	dlq := &recordingPublisher{}
	worker := NewWorker(repo, publisher,
		WithMaxAttempts(2),
		WithRetryBaseDelay(0),
		WithDLQPublisher(dlq),
	)

	worker.ProcessOnce(context.Background())

	dlqEvents := dlq.events()
	require.Len(t, dlqEvents, 1)
	require.Equal(t, msg.ID, dlqEvents[0].ID)

	// Запись помечена failed и не возвращается в pending.
	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	pending, err := repo.PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessOnce_RespectsBatchSize(t *testing.T) {
	repo := memory.NewOutboxRepository()
	for i := 0; i < 5; i++ {
		enqueue(t, repo, "order.created")
	}

	publisher := &recordingPublisher{}
	worker := NewWorker(repo, publisher, WithBatchSize(2), WithRetryBaseDelay(0))

	worker.ProcessOnce(context.Background())
	require.Len(t, publisher.events(), 2)

	worker.ProcessOnce(context.Background())
	require.Len(t, publisher.events(), 4)
}

func TestProcessOnce_CancelledContext(t *testing.T) {
	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "order.created")

	publisher := &recordingPublisher{}
	worker := NewWorker(repo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.ProcessOnce(ctx)

	require.Empty(t, publisher.events())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &recordingPublisher{}
	worker := NewWorker(repo, publisher, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	enqueue(t, repo, "order.created")
	require.Eventually(t, func() bool {
		return len(publisher.events()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
