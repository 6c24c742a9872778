package memory_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/repo/memory"
)

func TestStore_PutIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	record := &albumkeep.MetadataRecord{
		FileName:   "a b.png",
		Attributes: map[string]string{"bucket": "images"},
	}
	require.NoError(t, store.Put(ctx, record))

	first, err := store.Get(ctx, "a b.png")
	require.NoError(t, err)

	// Replaying the same event leaves exactly one record with identical
	// content.
	require.NoError(t, store.Put(ctx, record))
	second, err := store.Get(ctx, "a b.png")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, first, second)
}

func TestStore_DeleteAbsentKeyIsNoOp(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{FileName: "keep.png"}))

	assert.NoError(t, store.Delete(ctx, "never-existed.png"))
	assert.NoError(t, store.Delete(ctx, "never-existed.png"))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "keep.png"))
	_, err := store.Get(ctx, "keep.png")
	assert.ErrorIs(t, err, albumkeep.ErrRecordNotFound)

	assert.NoError(t, store.Delete(ctx, "keep.png"))
}

func TestStore_UpdateAttributeLeavesOthersUnchanged(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{
		FileName:   "sunset.jpeg",
		Attributes: map[string]string{"Caption": "Evening light", "bucket": "images"},
	}))

	require.NoError(t, store.UpdateAttribute(ctx, "sunset.jpeg", "Photographer", "Jane Doe"))

	record, err := store.Get(ctx, "sunset.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", record.Attributes["Photographer"])
	assert.Equal(t, "Evening light", record.Attributes["Caption"])
	assert.Equal(t, "images", record.Attributes["bucket"])
}

func TestStore_UpdateAttributeUpsertsMinimalRecord(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.UpdateAttribute(ctx, "early.png", "Caption", "Arrived first"))

	record, err := store.Get(ctx, "early.png")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Caption": "Arrived first"}, record.Attributes)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestStore_FeedEmitsOncePerInsertion(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	feed := store.Feed()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{FileName: "one.png"}))
	// Overwrite of an existing record is not an insertion.
	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{FileName: "one.png"}))
	// Attribute upsert that creates a record is an insertion.
	require.NoError(t, store.UpdateAttribute(ctx, "two.png", "Caption", "c"))
	require.NoError(t, store.UpdateAttribute(ctx, "two.png", "Date", "d"))

	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	entry, err := feed.Next(readCtx)
	require.NoError(t, err)
	assert.Equal(t, albumkeep.ChangeInsert, entry.Kind)
	assert.Equal(t, "one.png", entry.Record.FileName)

	entry, err = feed.Next(readCtx)
	require.NoError(t, err)
	assert.Equal(t, "two.png", entry.Record.FileName)

	drainCtx, cancelDrain := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancelDrain()
	_, err = feed.Next(drainCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_PutReplacesAttributeSet(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{
		FileName:   "x.png",
		Attributes: map[string]string{"bucket": "images", "Caption": "stale"},
	}))
	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{
		FileName:   "x.png",
		Attributes: map[string]string{"bucket": "images"},
	}))

	record, err := store.Get(ctx, "x.png")
	require.NoError(t, err)
	// The overwrite carries the full attribute set; stale attributes do
	// not survive it.
	assert.Equal(t, map[string]string{"bucket": "images"}, record.Attributes)
}

func TestStore_ConcurrentGetAndUpdateAttribute(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{FileName: "x.png"}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = store.UpdateAttribute(ctx, "x.png", "Caption", fmt.Sprintf("c-%d-%d", i, j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = store.Get(ctx, "x.png")
			}
		}()
	}
	wg.Wait()

	record, err := store.Get(ctx, "x.png")
	require.NoError(t, err)
	assert.NotEmpty(t, record.Attributes["Caption"])
}

func TestStore_FullFeedBufferLogsDroppedEntries(t *testing.T) {
	var buf bytes.Buffer
	store := memory.NewStore(memory.WithLogger(zerolog.New(&buf)))
	ctx := context.Background()

	// No feed reader; insertions beyond the buffer capacity are dropped.
	for i := 0; i < 300; i++ {
		require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{
			FileName: fmt.Sprintf("f-%d.png", i),
		}))
	}

	assert.Equal(t, 300, store.Len())
	assert.Contains(t, buf.String(), "Change feed buffer full")
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &albumkeep.MetadataRecord{
		FileName:   "x.png",
		Attributes: map[string]string{"Caption": "original"},
	}))

	record, err := store.Get(ctx, "x.png")
	require.NoError(t, err)
	record.Attributes["Caption"] = "mutated"

	fresh, err := store.Get(ctx, "x.png")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Attributes["Caption"])
}
