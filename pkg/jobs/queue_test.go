package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("receipts", func(_ context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r-1", Type: "receipt"}))

	select {
	case id := <-done:
		assert.Equal(t, "r-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	q := NewQueue("receipts", func(_ context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return errors.New("storage unavailable")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r-2"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(2), q.Stats().Retried)
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("receipts", func(context.Context, Job) error { return nil }, QueueConfig{})

	err := q.Enqueue(Job{ID: "r-3"})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("receipts", func(ctx context.Context, _ Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	var full bool
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(Job{ID: "r"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
}
