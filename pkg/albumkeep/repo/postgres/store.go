// Package postgres provides a MetadataStore backed by PostgreSQL, with an
// outbox-style feed table standing in for a native change stream.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

const schema = `
CREATE TABLE IF NOT EXISTS image_metadata (
    file_name  text PRIMARY KEY,
    attributes jsonb NOT NULL DEFAULT '{}'::jsonb,
    created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS image_metadata_feed (
    id         bigserial PRIMARY KEY,
    file_name  text NOT NULL,
    attributes jsonb NOT NULL,
    created_at timestamptz NOT NULL
);
`

// Store is a PostgreSQL implementation of albumkeep.MetadataStore. Inserts
// append a row to the feed table in the same transaction, so the change
// feed sees exactly one entry per record creation.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store on top of an existing connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the metadata and feed tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Put stores the record, overwriting attributes of an existing record. The
// original created_at survives an overwrite.
func (s *Store) Put(ctx context.Context, record *albumkeep.MetadataRecord) error {
	attrs, err := encodeAttrs(record.Attributes)
	if err != nil {
		return &albumkeep.StoreError{Op: "put", Key: record.FileName, Err: err}
	}
	err = s.insertWithFeed(ctx, record.FileName, `
		INSERT INTO image_metadata (file_name, attributes)
		VALUES ($1, $2)
		ON CONFLICT (file_name) DO UPDATE SET attributes = EXCLUDED.attributes
		RETURNING (xmax = 0), attributes, created_at`,
		record.FileName, attrs)
	if err != nil {
		return &albumkeep.StoreError{Op: "put", Key: record.FileName, Err: err}
	}
	return nil
}

// UpdateAttribute sets a single attribute via a jsonb merge, creating a
// minimal record when none exists. Concurrent updates to different
// attribute names of the same record do not clobber each other because the
// merge happens inside the database.
func (s *Store) UpdateAttribute(ctx context.Context, fileName, name, value string) error {
	err := s.insertWithFeed(ctx, fileName, `
		INSERT INTO image_metadata (file_name, attributes)
		VALUES ($1, jsonb_build_object($2::text, $3::text))
		ON CONFLICT (file_name) DO UPDATE
		SET attributes = image_metadata.attributes || jsonb_build_object($2::text, $3::text)
		RETURNING (xmax = 0), attributes, created_at`,
		fileName, name, value)
	if err != nil {
		return &albumkeep.StoreError{Op: "update_attribute", Key: fileName, Err: err}
	}
	return nil
}

// insertWithFeed runs an upsert returning (inserted, attributes,
// created_at) and appends a feed row when the upsert created the record.
func (s *Store) insertWithFeed(ctx context.Context, fileName, query string, args ...any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		inserted  bool
		attrs     []byte
		createdAt time.Time
	)
	if err := tx.QueryRow(ctx, query, args...).Scan(&inserted, &attrs, &createdAt); err != nil {
		return err
	}
	if inserted {
		_, err = tx.Exec(ctx, `
			INSERT INTO image_metadata_feed (file_name, attributes, created_at)
			VALUES ($1, $2, $3)`,
			fileName, attrs, createdAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Delete removes the record. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, fileName string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM image_metadata WHERE file_name = $1`, fileName)
	if err != nil {
		return &albumkeep.StoreError{Op: "delete", Key: fileName, Err: err}
	}
	return nil
}

// Get returns the record for fileName, or albumkeep.ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, fileName string) (*albumkeep.MetadataRecord, error) {
	var (
		attrs     []byte
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT attributes, created_at FROM image_metadata WHERE file_name = $1`,
		fileName).Scan(&attrs, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, albumkeep.ErrRecordNotFound
	}
	if err != nil {
		return nil, &albumkeep.StoreError{Op: "get", Key: fileName, Err: err}
	}
	record := &albumkeep.MetadataRecord{FileName: fileName, CreatedAt: createdAt}
	if err := json.Unmarshal(attrs, &record.Attributes); err != nil {
		return nil, &albumkeep.StoreError{Op: "get", Key: fileName, Err: err}
	}
	return record, nil
}

func encodeAttrs(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return encoded, nil
}
