package worker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/objectstore"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/repo/memory"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/worker"
)

func mutationMessage(t *testing.T, kind, bucket, key string) *pubsub.Message {
	t.Helper()
	body, err := json.Marshal(albumkeep.MutationEvent{Kind: kind, Bucket: bucket, ObjectKey: key})
	require.NoError(t, err)
	return &pubsub.Message{ID: "m1", Body: body}
}

func TestIngest_WritesRecordForAcceptedTypes(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop())
	ctx := context.Background()

	for _, key := range []string{"sunset.jpeg", "portrait.png", "SHOUTY.PNG", "mixed.JpEg"} {
		require.NoError(t, w.Handle(ctx, mutationMessage(t, albumkeep.MutationCreated, "images", key)))
		record, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, record.FileName)
		assert.Equal(t, "images", record.Attributes[albumkeep.RecordAttrBucket])
	}
}

func TestIngest_DecodesEncodedKeys(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, mutationMessage(t, albumkeep.MutationCreated, "images", "a+b.png")))

	record, err := store.Get(ctx, "a b.png")
	require.NoError(t, err)
	assert.Equal(t, "a b.png", record.FileName)
}

func TestIngest_RejectsUnsupportedTypes(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop())
	ctx := context.Background()

	for _, key := range []string{"virus.exe", "notes.txt", "photo.jpg", "noextension"} {
		err := w.Handle(ctx, mutationMessage(t, albumkeep.MutationCreated, "images", key))
		assert.ErrorIs(t, err, albumkeep.ErrUnsupportedFileType, key)
		// A rejection must be retriable, not dropped.
		assert.NotErrorIs(t, err, pubsub.ErrDropMessage, key)
	}
	assert.Equal(t, 0, store.Len())
}

func TestIngest_ReplayIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop())
	ctx := context.Background()

	msg := mutationMessage(t, albumkeep.MutationCreated, "images", "twice.png")
	require.NoError(t, w.Handle(ctx, msg))
	first, err := store.Get(ctx, "twice.png")
	require.NoError(t, err)

	require.NoError(t, w.Handle(ctx, msg))
	second, err := store.Get(ctx, "twice.png")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, first, second)
}

func TestIngest_ProbeEnrichesRecord(t *testing.T) {
	store := memory.NewStore()
	prober := objectstore.NewMemory()
	prober.Add("images", "big.png", albumkeep.ObjectInfo{Size: 2048, ContentType: "image/png"})
	w := worker.NewIngest(store, zerolog.Nop(), worker.WithProber(prober))
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, mutationMessage(t, albumkeep.MutationCreated, "images", "big.png")))

	record, err := store.Get(ctx, "big.png")
	require.NoError(t, err)
	assert.Equal(t, "2048", record.Attributes[albumkeep.RecordAttrSize])
	assert.Equal(t, "image/png", record.Attributes[albumkeep.RecordAttrContentType])
}

func TestIngest_ProbeFailureIsNotFatal(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop(), worker.WithProber(objectstore.NewMemory()))
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, mutationMessage(t, albumkeep.MutationCreated, "images", "unprobed.png")))

	record, err := store.Get(ctx, "unprobed.png")
	require.NoError(t, err)
	assert.NotContains(t, record.Attributes, albumkeep.RecordAttrSize)
}

func TestIngest_RaisesParseFailuresForDeadLettering(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop())
	ctx := context.Background()

	// An unreadable body or key travels the same path as an unsupported
	// type: retried, then dead-lettered, which produces the rejection
	// email.
	err := w.Handle(ctx, &pubsub.Message{ID: "m1", Body: []byte("not json")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, pubsub.ErrDropMessage)

	err = w.Handle(ctx, mutationMessage(t, albumkeep.MutationCreated, "images", "bad%zz.png"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, pubsub.ErrDropMessage)

	assert.Equal(t, 0, store.Len())
}

func TestIngest_DropsMisroutedMutationKinds(t *testing.T) {
	store := memory.NewStore()
	w := worker.NewIngest(store, zerolog.Nop())
	ctx := context.Background()

	err := w.Handle(ctx, mutationMessage(t, albumkeep.MutationRemoved, "images", "x.png"))
	assert.ErrorIs(t, err, pubsub.ErrDropMessage)
	assert.Equal(t, 0, store.Len())
}
