// Package memory provides an in-memory MetadataStore with a change feed,
// used by tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// Store is an in-memory implementation of albumkeep.MetadataStore. All
// operations are atomic per key. The change feed emits one insert entry per
// record creation, regardless of whether the record was created by Put or
// by an attribute upsert, matching change-stream semantics of row stores.
type Store struct {
	mu      sync.RWMutex
	records map[string]*albumkeep.MetadataRecord
	feed    chan *albumkeep.ChangeEntry
	log     zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger makes the store report dropped feed entries.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[string]*albumkeep.MetadataRecord),
		feed:    make(chan *albumkeep.ChangeEntry, 256),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores the record, overwriting any existing record for the same
// FileName. The original creation time survives an overwrite so that
// replaying the same event leaves identical content.
func (s *Store) Put(ctx context.Context, record *albumkeep.MetadataRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := record.Clone()

	s.mu.Lock()
	existing, ok := s.records[stored.FileName]
	if ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.records[stored.FileName] = stored
	var inserted *albumkeep.MetadataRecord
	if !ok {
		inserted = stored.Clone()
	}
	s.mu.Unlock()

	if inserted != nil {
		s.emit(inserted)
	}
	return nil
}

// UpdateAttribute sets a single attribute, creating a minimal record when
// none exists yet. Other attributes of an existing record are untouched.
func (s *Store) UpdateAttribute(ctx context.Context, fileName, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	record, ok := s.records[fileName]
	if !ok {
		record = &albumkeep.MetadataRecord{
			FileName:  fileName,
			CreatedAt: time.Now().UTC(),
		}
		s.records[fileName] = record
	}
	if record.Attributes == nil {
		record.Attributes = make(map[string]string)
	}
	record.Attributes[name] = value
	inserted := record.Clone()
	s.mu.Unlock()

	if !ok {
		s.emit(inserted)
	}
	return nil
}

// Delete removes the record for fileName. Deleting an absent key is a
// no-op.
func (s *Store) Delete(ctx context.Context, fileName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, fileName)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the record for fileName.
func (s *Store) Get(ctx context.Context, fileName string) (*albumkeep.MetadataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	record, ok := s.records[fileName]
	var clone *albumkeep.MetadataRecord
	if ok {
		// Clone before releasing the lock: UpdateAttribute mutates the
		// stored record's attribute map in place.
		clone = record.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, albumkeep.ErrRecordNotFound
	}
	return clone, nil
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Feed returns the store's change feed.
func (s *Store) Feed() albumkeep.ChangeFeed { return s }

// Next blocks until an insert entry is available or ctx is done.
func (s *Store) Next(ctx context.Context) (*albumkeep.ChangeEntry, error) {
	select {
	case entry := <-s.feed:
		return entry, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) emit(record *albumkeep.MetadataRecord) {
	entry := &albumkeep.ChangeEntry{Kind: albumkeep.ChangeInsert, Record: record}
	// The feed is an observer of the store; a full buffer must not block
	// or fail the insert that produced the entry.
	select {
	case s.feed <- entry:
	default:
		s.log.Warn().Str("key", record.FileName).Msg("Change feed buffer full, entry dropped")
	}
}
