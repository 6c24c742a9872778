package albumkeep

import (
	"errors"
	"fmt"

	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

// Error types
var (
	// ErrRecordNotFound indicates a metadata record was not found. Delete
	// never returns it (deleting an absent key is a no-op); Get does.
	ErrRecordNotFound = errors.New("metadata record not found")

	// ErrUnsupportedFileType indicates an uploaded object's extension is
	// outside the accepted set. It is raised, not dropped, so the delivery
	// substrate retries and eventually dead-letters the message.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrMalformedMessage indicates a structurally invalid message.
	// Redelivery cannot fix it, so consumers drop it without retry.
	ErrMalformedMessage = fmt.Errorf("%w: malformed message", pubsub.ErrDropMessage)

	// ErrObjectNotFound indicates a probed object does not exist in the
	// source object store.
	ErrObjectNotFound = errors.New("object not found")

	// ErrMissingConfig indicates a required configuration value is absent
	// at startup. It is fatal: a worker must refuse to process messages
	// rather than run with undefined behavior.
	ErrMissingConfig = errors.New("missing required configuration")
)

// StoreError represents a failure of a metadata store operation.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed for key %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PublishError represents a failure to deliver a published event to one or
// more subscriptions.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to topic %q failed: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NotifyError represents a failed notification send. Callers log it and
// continue; email delivery is not part of the pipeline's correctness
// contract.
type NotifyError struct {
	Recipient string
	Err       error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notification to %q failed: %v", e.Recipient, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}
