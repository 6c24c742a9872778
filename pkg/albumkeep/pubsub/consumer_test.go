package pubsub_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albumkeep/albumkeep/pkg/albumkeep/dedup"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

func runConsumer(t *testing.T, c *pubsub.Consumer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestConsumer_AcksOnSuccess(t *testing.T) {
	q := pubsub.NewQueue("test")
	var handled atomic.Uint64
	c := pubsub.NewConsumer("test", q, pubsub.HandlerFunc(func(ctx context.Context, msg *pubsub.Message) error {
		handled.Add(1)
		return nil
	}), zerolog.Nop())
	runConsumer(t, c)

	require.NoError(t, q.Deliver(&pubsub.Message{ID: "m1"}))

	assert.Eventually(t, func() bool {
		return c.Stats().Processed == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), handled.Load())
	assert.Equal(t, 0, q.Depth())
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	dlq := pubsub.NewQueue("dlq")
	q := pubsub.NewQueue("test",
		pubsub.WithRetryPolicy(pubsub.RetryPolicy{MaxReceiveCount: 2}),
		pubsub.WithDeadLetter(dlq),
	)
	var attempts atomic.Uint64
	c := pubsub.NewConsumer("test", q, pubsub.HandlerFunc(func(ctx context.Context, msg *pubsub.Message) error {
		attempts.Add(1)
		return errors.New("boom")
	}), zerolog.Nop())
	runConsumer(t, c)

	require.NoError(t, q.Deliver(&pubsub.Message{ID: "m1"}))

	assert.Eventually(t, func() bool {
		return dlq.Depth() == 1
	}, time.Second, 10*time.Millisecond)

	// First delivery plus exactly one retry.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, uint64(2), attempts.Load())
	assert.Equal(t, uint64(2), c.Stats().Failed)
}

func TestConsumer_DropsMalformedWithoutRetry(t *testing.T) {
	dlq := pubsub.NewQueue("dlq")
	q := pubsub.NewQueue("test",
		pubsub.WithRetryPolicy(pubsub.RetryPolicy{MaxReceiveCount: 2}),
		pubsub.WithDeadLetter(dlq),
	)
	var attempts atomic.Uint64
	c := pubsub.NewConsumer("test", q, pubsub.HandlerFunc(func(ctx context.Context, msg *pubsub.Message) error {
		attempts.Add(1)
		return fmt.Errorf("%w: missing field", pubsub.ErrDropMessage)
	}), zerolog.Nop())
	runConsumer(t, c)

	require.NoError(t, q.Deliver(&pubsub.Message{ID: "m1"}))

	assert.Eventually(t, func() bool {
		return c.Stats().Dropped == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, uint64(1), attempts.Load())
	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, 0, dlq.Depth())
}

func TestConsumer_SkipsDuplicates(t *testing.T) {
	q := pubsub.NewQueue("test")
	store := dedup.NewMemory(time.Hour)
	var handled atomic.Uint64
	c := pubsub.NewConsumer("test", q, pubsub.HandlerFunc(func(ctx context.Context, msg *pubsub.Message) error {
		handled.Add(1)
		return nil
	}), zerolog.Nop(), pubsub.WithDedup(store))
	runConsumer(t, c)

	// Same event ID delivered twice, as the substrate may do.
	require.NoError(t, q.Deliver(&pubsub.Message{ID: "m1"}))
	require.NoError(t, q.Deliver(&pubsub.Message{ID: "m1"}))

	assert.Eventually(t, func() bool {
		stats := c.Stats()
		return stats.Processed+stats.Skipped == 2
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(1), handled.Load())
	assert.Equal(t, uint64(1), c.Stats().Skipped)
}

func TestConsumer_OneFailureDoesNotSkipRestOfBatch(t *testing.T) {
	q := pubsub.NewQueue("test", pubsub.WithRetryPolicy(pubsub.RetryPolicy{MaxReceiveCount: 1}))
	var succeeded atomic.Uint64
	c := pubsub.NewConsumer("test", q, pubsub.HandlerFunc(func(ctx context.Context, msg *pubsub.Message) error {
		if msg.ID == "bad" {
			return errors.New("boom")
		}
		succeeded.Add(1)
		return nil
	}), zerolog.Nop())

	require.NoError(t, q.Deliver(&pubsub.Message{ID: "bad"}))
	require.NoError(t, q.Deliver(&pubsub.Message{ID: "good-1"}))
	require.NoError(t, q.Deliver(&pubsub.Message{ID: "good-2"}))

	runConsumer(t, c)

	assert.Eventually(t, func() bool {
		return succeeded.Load() == 2
	}, time.Second, 10*time.Millisecond)
}
