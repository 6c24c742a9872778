package albumkeep

import "context"

// MetadataStore is the single shared mutable resource of the pipeline. Each
// operation is atomic with respect to a single key; no multi-key
// transactions exist. Every write is either an idempotent overwrite (Put,
// Delete) or a single-field upsert (UpdateAttribute), so concurrent workers
// never need locks and redelivered messages are always safe to replay.
type MetadataStore interface {
	// Put stores the record, overwriting any existing record with the same
	// FileName. Replaying the same Put leaves the store unchanged.
	Put(ctx context.Context, record *MetadataRecord) error

	// UpdateAttribute sets a single named attribute on the record keyed by
	// fileName, leaving all other attributes untouched. If no record exists
	// a minimal record holding just that attribute is created.
	UpdateAttribute(ctx context.Context, fileName, name, value string) error

	// Delete removes the record keyed by fileName. Deleting an absent key
	// is a no-op, not an error.
	Delete(ctx context.Context, fileName string) error

	// Get returns the record keyed by fileName, or ErrRecordNotFound.
	Get(ctx context.Context, fileName string) (*MetadataRecord, error)
}

// ChangeFeed is an ordered stream of record-insertion entries emitted by a
// metadata store. Reading the feed never affects the underlying records; a
// feed-read failure must not roll back the insert that produced the entry.
type ChangeFeed interface {
	// Next blocks until an entry is available or the context is done.
	Next(ctx context.Context) (*ChangeEntry, error)
}

// Publisher delivers an event body plus routing attributes into the event
// router. Delivery is at-least-once; the publisher performs no business
// retries of its own.
type Publisher interface {
	Publish(ctx context.Context, body []byte, attrs map[string]string) error
}

// NotificationSender is the stateless outbound email dispatch used by the
// confirmation and rejection workers. Failure to send is reported to the
// caller but never escalated beyond logging.
type NotificationSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// ObjectProber looks up size and content type of a stored object. The
// ingest worker uses it to enrich new metadata records; probe failures are
// non-fatal.
type ObjectProber interface {
	Probe(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}
