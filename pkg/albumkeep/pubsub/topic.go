package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topic fans published messages out to every subscription whose filter
// policy matches the message attributes. Delivery to each subscription is
// independent: failure on one target never blocks or affects the others.
// The topic performs no business retries; redelivery is the consuming
// queue's concern.
type Topic struct {
	name string
	log  zerolog.Logger

	mu   sync.RWMutex
	subs []subscription
}

type subscription struct {
	target Target
	policy FilterPolicy
}

// NewTopic creates a topic.
func NewTopic(name string, log zerolog.Logger) *Topic {
	return &Topic{
		name: name,
		log:  log.With().Str("topic", name).Logger(),
	}
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// Subscribe registers a delivery target. A nil or empty policy subscribes
// the target to every published message.
func (t *Topic) Subscribe(target Target, policy FilterPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, subscription{target: target, policy: policy})
}

// Publish delivers body and attrs to every matching subscription, wrapped
// in a fresh at-least-once envelope. Per-subscription failures are
// collected and returned joined; matching subscriptions that did not fail
// have still received the message.
func (t *Topic) Publish(ctx context.Context, body []byte, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &Message{
		ID:         uuid.NewString(),
		Body:       body,
		Attributes: cloneAttrs(attrs),
	}

	t.mu.RLock()
	subs := make([]subscription, len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, sub := range subs {
		if !sub.policy.Matches(msg.Attributes) {
			continue
		}
		if err := sub.target.Deliver(msg); err != nil {
			t.log.Error().Err(err).Str("target", sub.target.Name()).Msg("Delivery failed")
			errs = append(errs, fmt.Errorf("deliver to %s: %w", sub.target.Name(), err))
			continue
		}
		delivered++
	}

	t.log.Debug().
		Str("message_id", msg.ID).
		Int("delivered", delivered).
		Msg("Message published")

	publishedTotal.WithLabelValues(t.name).Inc()
	return errors.Join(errs...)
}
