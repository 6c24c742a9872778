package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

// Deletion consumes Removed mutation events and deletes the corresponding
// metadata record. Deleting a key with no record is an idempotent no-op, so
// redelivered and out-of-order removal events are safe.
type Deletion struct {
	store albumkeep.MetadataStore
	log   zerolog.Logger
}

// NewDeletion creates the deletion worker.
func NewDeletion(store albumkeep.MetadataStore, log zerolog.Logger) *Deletion {
	return &Deletion{
		store: store,
		log:   log.With().Str("worker", "deletion").Logger(),
	}
}

// Handle processes one Removed event.
func (w *Deletion) Handle(ctx context.Context, msg *pubsub.Message) error {
	var event albumkeep.MutationEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return fmt.Errorf("%w: %v", albumkeep.ErrMalformedMessage, err)
	}
	if event.Kind != albumkeep.MutationRemoved {
		return fmt.Errorf("%w: unexpected mutation kind %q", albumkeep.ErrMalformedMessage, event.Kind)
	}

	key, err := albumkeep.DecodeObjectKey(event.ObjectKey)
	if err != nil {
		return fmt.Errorf("%w: undecodable object key %q", albumkeep.ErrMalformedMessage, event.ObjectKey)
	}

	if err := w.store.Delete(ctx, key); err != nil {
		return err
	}
	w.log.Info().Str("key", key).Msg("Metadata record deleted")
	return nil
}
