package pubsub

import "errors"

// ErrDropMessage marks a processing error that redelivery cannot fix. A
// consumer receiving a handler error wrapping ErrDropMessage deletes the
// message instead of letting the substrate retry it.
var ErrDropMessage = errors.New("drop message")

// Message is the at-least-once delivery envelope wrapping a published
// event. The delivery-attempt counter is tracked by the queue
// infrastructure, not by the application; consumers must tolerate
// duplicates and out-of-order delivery.
type Message struct {
	// ID identifies the published event. Redeliveries of the same event
	// carry the same ID, which is what de-duplication stores key on.
	ID string

	// Body is the JSON-encoded event payload.
	Body []byte

	// Attributes carry routing metadata evaluated by filter policies.
	Attributes map[string]string

	// ReceiveCount is the number of times this message has been delivered,
	// including the current delivery.
	ReceiveCount int

	// ReceiptHandle identifies this particular delivery for ack/nack.
	ReceiptHandle string
}

func cloneAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	c := make(map[string]string, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return c
}
