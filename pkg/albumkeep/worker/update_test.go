package worker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/repo/memory"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/worker"
)

func updateMessage(t *testing.T, id, value, metadataType string) *pubsub.Message {
	t.Helper()
	body, err := json.Marshal(albumkeep.AttributeUpdateEvent{ID: id, Value: value})
	require.NoError(t, err)
	msg := &pubsub.Message{ID: "u1", Body: body}
	if metadataType != "" {
		msg.Attributes = map[string]string{albumkeep.AttrMetadataType: metadataType}
	}
	return msg
}

func TestAttributeUpdate_SetsExactlyOneAttribute(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewAttributeUpdate(store, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{
		FileName:   "a b.png",
		Attributes: map[string]string{"Caption": "Beach day", "bucket": "images"},
	}))

	require.NoError(t, w.Handle(ctx, updateMessage(t, "a b.png", "Jane Doe", albumkeep.MetadataPhotographer)))

	record, err := store.Get(ctx, "a b.png")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", record.Attributes["Photographer"])
	assert.Equal(t, "Beach day", record.Attributes["Caption"])
	assert.Equal(t, "images", record.Attributes["bucket"])
}

func TestAttributeUpdate_LastWriteWinsPerAttribute(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewAttributeUpdate(store, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, updateMessage(t, "x.png", "First", albumkeep.MetadataCaption)))
	require.NoError(t, w.Handle(ctx, updateMessage(t, "x.png", "Second", albumkeep.MetadataCaption)))

	record, err := store.Get(ctx, "x.png")
	require.NoError(t, err)
	assert.Equal(t, "Second", record.Attributes["Caption"])
}

func TestAttributeUpdate_UpsertsWhenRecordMissing(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewAttributeUpdate(store, zerolog.Nop())
	ctx := context.Background()

	// Update arriving before ingest creates a minimal record.
	require.NoError(t, w.Handle(ctx, updateMessage(t, "early.png", "2024-05-01", albumkeep.MetadataDate)))

	record, err := store.Get(ctx, "early.png")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Date": "2024-05-01"}, record.Attributes)
}

func TestAttributeUpdate_DropsMalformedMessages(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewAttributeUpdate(store, zerolog.Nop())
	ctx := context.Background()

	cases := map[string]*pubsub.Message{
		"missing id":            updateMessage(t, "", "v", albumkeep.MetadataCaption),
		"missing value":         updateMessage(t, "x.png", "", albumkeep.MetadataCaption),
		"missing metadata type": updateMessage(t, "x.png", "v", ""),
		"invalid json":          {ID: "u1", Body: []byte("nope"), Attributes: map[string]string{albumkeep.AttrMetadataType: albumkeep.MetadataCaption}},
	}
	for name, msg := range cases {
		err := w.Handle(ctx, msg)
		assert.ErrorIs(t, err, pubsub.ErrDropMessage, name)
	}
	assert.Equal(t, 0, store.Len())
}

func TestAttributeUpdate_RefusesUnlistedAttributeNames(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewAttributeUpdate(store, zerolog.Nop())
	ctx := context.Background()

	err := w.Handle(ctx, updateMessage(t, "x.png", "5 stars", "Rating"))
	assert.ErrorIs(t, err, pubsub.ErrDropMessage)
	assert.Equal(t, 0, store.Len())
}
