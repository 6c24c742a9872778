package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RetryPolicy bounds redelivery of failing messages. A message nacked after
// its MaxReceiveCount-th delivery is routed to the queue's dead-letter
// target instead of being requeued.
type RetryPolicy struct {
	// MaxReceiveCount is the total number of deliveries a message may
	// consume before dead-lettering: the first delivery plus
	// MaxReceiveCount-1 retries. Zero or negative means unbounded.
	MaxReceiveCount int

	// Backoff delays each redelivery.
	Backoff time.Duration
}

// Source is the consumer-facing side of a queue. The in-memory Queue and
// the SQS adapter both implement it.
type Source interface {
	// Receive blocks until at least one message is available or the
	// context is done, returning at most max messages.
	Receive(ctx context.Context, max int) ([]*Message, error)

	// Ack acknowledges a delivery, removing the message from the queue.
	Ack(ctx context.Context, msg *Message) error

	// Nack reports a failed delivery. The substrate redelivers the message
	// until its retry policy exhausts, then moves it to the dead-letter
	// target.
	Nack(ctx context.Context, msg *Message) error
}

// Target is the router-facing side of a queue.
type Target interface {
	Name() string
	Deliver(msg *Message) error
}

// Queue is an in-memory at-least-once queue with substrate-managed
// redelivery counting and an optional dead-letter target. Ordering is
// best-effort FIFO; duplicates are possible and consumers must tolerate
// them.
type Queue struct {
	name   string
	policy RetryPolicy
	dlq    Target

	mu       sync.Mutex
	pending  []*Message
	inflight map[string]*Message
	arrival  chan struct{}

	deadLettered uint64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithRetryPolicy sets the queue's redelivery bounds.
func WithRetryPolicy(p RetryPolicy) QueueOption {
	return func(q *Queue) { q.policy = p }
}

// WithDeadLetter routes messages that exhaust the retry policy to target.
func WithDeadLetter(target Target) QueueOption {
	return func(q *Queue) { q.dlq = target }
}

// NewQueue creates an in-memory queue.
func NewQueue(name string, opts ...QueueOption) *Queue {
	q := &Queue{
		name:     name,
		inflight: make(map[string]*Message),
		arrival:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Deliver enqueues a message for consumption. The stored copy is
// independent of the caller's.
func (q *Queue) Deliver(msg *Message) error {
	copied := &Message{
		ID:           msg.ID,
		Body:         append([]byte(nil), msg.Body...),
		Attributes:   cloneAttrs(msg.Attributes),
		ReceiveCount: msg.ReceiveCount,
	}
	q.mu.Lock()
	q.pending = append(q.pending, copied)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Receive blocks until at least one message is pending or ctx is done.
// Each returned message carries a fresh receipt handle and an incremented
// receive count.
func (q *Queue) Receive(ctx context.Context, max int) ([]*Message, error) {
	if max <= 0 {
		max = 1
	}
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			n := max
			if n > len(q.pending) {
				n = len(q.pending)
			}
			batch := make([]*Message, 0, n)
			for _, msg := range q.pending[:n] {
				msg.ReceiveCount++
				msg.ReceiptHandle = uuid.NewString()
				q.inflight[msg.ReceiptHandle] = msg
				batch = append(batch, msg)
			}
			q.pending = q.pending[n:]
			remaining := len(q.pending) > 0
			q.mu.Unlock()
			if remaining {
				// The arrival channel is a wake-one signal; pass it on
				// so another blocked receiver can drain the rest.
				q.signal()
			}
			return batch, nil
		}
		q.mu.Unlock()

		select {
		case <-q.arrival:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ack removes a delivered message from the queue.
func (q *Queue) Ack(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	delete(q.inflight, msg.ReceiptHandle)
	q.mu.Unlock()
	return nil
}

// Nack requeues a delivered message, or moves it to the dead-letter target
// once the retry policy is exhausted.
func (q *Queue) Nack(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	held, ok := q.inflight[msg.ReceiptHandle]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	delete(q.inflight, msg.ReceiptHandle)

	if q.policy.MaxReceiveCount > 0 && held.ReceiveCount >= q.policy.MaxReceiveCount {
		dlq := q.dlq
		q.deadLettered++
		q.mu.Unlock()
		deadLetteredTotal.WithLabelValues(q.name).Inc()
		if dlq != nil {
			return dlq.Deliver(held)
		}
		return nil
	}
	q.mu.Unlock()

	if q.policy.Backoff > 0 {
		time.AfterFunc(q.policy.Backoff, func() { q.requeue(held) })
		return nil
	}
	q.requeue(held)
	return nil
}

// Depth returns the number of pending messages.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLettered returns how many messages this queue has routed to its
// dead-letter target.
func (q *Queue) DeadLettered() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deadLettered
}

func (q *Queue) requeue(msg *Message) {
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.arrival <- struct{}{}:
	default:
	}
}
