// Package worker contains the queue-backed handlers of the pipeline. Each
// worker is stateless and horizontally replicable; every per-message
// operation is independently idempotent so that redelivered batches,
// partial batches and duplicates are always safe to replay.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

// Ingest consumes Created mutation events, validates the uploaded object's
// file type and writes the initial metadata record. Validation failures on
// this path are raised, not dropped: the substrate retries and eventually
// dead-letters the message, which triggers the rejection notification. An
// accepted type results in an idempotent overwrite put.
type Ingest struct {
	store  albumkeep.MetadataStore
	prober albumkeep.ObjectProber
	log    zerolog.Logger
}

// IngestOption configures the ingest worker.
type IngestOption func(*Ingest)

// WithProber enriches new records with size and content type read from the
// source object store. Probe failures are logged, never fatal.
func WithProber(p albumkeep.ObjectProber) IngestOption {
	return func(w *Ingest) { w.prober = p }
}

// NewIngest creates the ingest worker.
func NewIngest(store albumkeep.MetadataStore, log zerolog.Logger, opts ...IngestOption) *Ingest {
	w := &Ingest{
		store: store,
		log:   log.With().Str("worker", "ingest").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle processes one Created event.
func (w *Ingest) Handle(ctx context.Context, msg *pubsub.Message) error {
	var event albumkeep.MutationEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return fmt.Errorf("decode mutation event: %w", err)
	}
	if event.Kind != albumkeep.MutationCreated {
		// The filter policy guarantees the kind; anything else is a
		// misrouted message redelivery cannot fix.
		return fmt.Errorf("%w: unexpected mutation kind %q", albumkeep.ErrMalformedMessage, event.Kind)
	}

	key, err := albumkeep.DecodeObjectKey(event.ObjectKey)
	if err != nil {
		return fmt.Errorf("decode object key %q: %w", event.ObjectKey, err)
	}

	if !albumkeep.AcceptedImage(key) {
		w.log.Error().Str("key", key).Str("extension", albumkeep.FileExtension(key)).Msg("Invalid file type")
		return fmt.Errorf("%w: %q", albumkeep.ErrUnsupportedFileType, albumkeep.FileExtension(key))
	}

	record := &albumkeep.MetadataRecord{
		FileName:   key,
		Attributes: map[string]string{albumkeep.RecordAttrBucket: event.Bucket},
	}
	if w.prober != nil {
		info, err := w.prober.Probe(ctx, event.Bucket, key)
		if err != nil {
			w.log.Warn().Err(err).Str("key", key).Msg("Object probe failed, ingesting without object info")
		} else {
			record.Attributes[albumkeep.RecordAttrSize] = strconv.FormatInt(info.Size, 10)
			if info.ContentType != "" {
				record.Attributes[albumkeep.RecordAttrContentType] = info.ContentType
			}
		}
	}

	if err := w.store.Put(ctx, record); err != nil {
		return err
	}
	w.log.Info().Str("key", key).Msg("Metadata record written")
	return nil
}
