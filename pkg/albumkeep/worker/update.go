package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

// AttributeUpdate consumes attribute-update events and applies a single
// named attribute change. The router's filter policy guarantees the
// metadata_type routing attribute is in the allow-list before a message
// ever arrives here; the worker re-checks it so an unauthorized name is
// never silently written.
//
// Malformed messages (missing id, value or routing attribute) are dropped
// without retry: redelivery cannot fix a structurally invalid message.
type AttributeUpdate struct {
	store albumkeep.MetadataStore
	log   zerolog.Logger
}

// NewAttributeUpdate creates the attribute-update worker.
func NewAttributeUpdate(store albumkeep.MetadataStore, log zerolog.Logger) *AttributeUpdate {
	return &AttributeUpdate{
		store: store,
		log:   log.With().Str("worker", "attribute_update").Logger(),
	}
}

// Handle processes one attribute-update event.
func (w *AttributeUpdate) Handle(ctx context.Context, msg *pubsub.Message) error {
	metadataType := msg.Attributes[albumkeep.AttrMetadataType]

	var event albumkeep.AttributeUpdateEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return fmt.Errorf("%w: %v", albumkeep.ErrMalformedMessage, err)
	}
	if event.ID == "" || event.Value == "" || metadataType == "" {
		w.log.Error().RawJSON("body", msg.Body).Str("metadata_type", metadataType).Msg("Invalid message format")
		return fmt.Errorf("%w: missing id, value or metadata_type", albumkeep.ErrMalformedMessage)
	}
	if !allowedMetadataType(metadataType) {
		return fmt.Errorf("%w: metadata_type %q not allowed", albumkeep.ErrMalformedMessage, metadataType)
	}

	if err := w.store.UpdateAttribute(ctx, event.ID, metadataType, event.Value); err != nil {
		return err
	}
	w.log.Info().Str("key", event.ID).Str("attribute", metadataType).Msg("Metadata attribute updated")
	return nil
}

func allowedMetadataType(name string) bool {
	for _, allowed := range albumkeep.AllowedMetadataTypes() {
		if allowed == name {
			return true
		}
	}
	return false
}
