package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep/dedup"
)

// Handler processes a single delivered message. Returning nil acks the
// message; returning an error wrapping ErrDropMessage deletes it without
// retry; any other error nacks it for redelivery.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// ConsumerStats is a point-in-time snapshot of a consumer's counters.
type ConsumerStats struct {
	Name      string `json:"name"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Skipped   uint64 `json:"skipped"`
}

// Consumer polls a Source and dispatches each message of a batch
// independently to a Handler. Messages within a batch are processed
// sequentially, but one message failing never skips the rest of the batch:
// each is acked, nacked or dropped on its own.
type Consumer struct {
	name      string
	source    Source
	handler   Handler
	log       zerolog.Logger
	batchSize int
	timeout   time.Duration
	dedup     dedup.Store

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithBatchSize caps how many messages one receive returns. Default 5.
func WithBatchSize(n int) ConsumerOption {
	return func(c *Consumer) { c.batchSize = n }
}

// WithHandlerTimeout bounds each per-message handler call. Default 15s.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.timeout = d }
}

// WithDedup skips messages whose ID the store has already seen, acking
// them without re-invoking the handler.
func WithDedup(store dedup.Store) ConsumerOption {
	return func(c *Consumer) { c.dedup = store }
}

// NewConsumer creates a consumer.
func NewConsumer(name string, source Source, handler Handler, log zerolog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		name:      name,
		source:    source,
		handler:   handler,
		log:       log.With().Str("consumer", name).Logger(),
		batchSize: 5,
		timeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the consumer name.
func (c *Consumer) Name() string { return c.name }

// Stats returns a snapshot of the consumer's counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Name:      c.name,
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
		Skipped:   c.skipped.Load(),
	}
}

// Run receives and processes batches until the context is done.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("Consumer started")
	for {
		batch, err := c.source.Receive(ctx, c.batchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.log.Info().Msg("Consumer stopping")
				return nil
			}
			c.log.Error().Err(err).Msg("Receive failed")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		for _, msg := range batch {
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *Message) {
	ml := c.log.With().Str("message_id", msg.ID).Int("receive_count", msg.ReceiveCount).Logger()

	if c.dedup != nil {
		seen, err := c.dedup.IsProcessed(ctx, msg.ID)
		if err != nil {
			ml.Error().Err(err).Msg("De-duplication check failed")
		} else if seen {
			ml.Info().Msg("Duplicate message, skipping")
			c.skipped.Add(1)
			c.ack(ctx, msg, ml)
			return
		}
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.handler.Handle(handlerCtx, msg)
	cancel()

	switch {
	case err == nil:
		if c.dedup != nil {
			if derr := c.dedup.MarkProcessed(ctx, msg.ID); derr != nil {
				ml.Error().Err(derr).Msg("Failed to mark message processed")
			}
		}
		c.processed.Add(1)
		processedTotal.WithLabelValues(c.name).Inc()
		c.ack(ctx, msg, ml)

	case errors.Is(err, ErrDropMessage):
		ml.Warn().Err(err).Msg("Dropping malformed message")
		c.dropped.Add(1)
		droppedTotal.WithLabelValues(c.name).Inc()
		c.ack(ctx, msg, ml)

	default:
		ml.Error().Err(err).Msg("Message processing failed, leaving for redelivery")
		c.failed.Add(1)
		failedTotal.WithLabelValues(c.name).Inc()
		if nerr := c.source.Nack(ctx, msg); nerr != nil {
			ml.Error().Err(nerr).Msg("Nack failed")
		}
	}
}

func (c *Consumer) ack(ctx context.Context, msg *Message, ml zerolog.Logger) {
	if err := c.source.Ack(ctx, msg); err != nil {
		ml.Error().Err(err).Msg("Ack failed")
	}
}
