package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// Feed polls the feed table for insert entries appended by the store. It
// starts at the current tail, so only records created after the feed was
// opened flow through it.
type Feed struct {
	pool     *pgxpool.Pool
	interval time.Duration

	primed bool
	lastID int64
	buffer []*albumkeep.ChangeEntry
}

// NewFeed creates a feed over the same database the store writes to.
func NewFeed(pool *pgxpool.Pool) *Feed {
	return &Feed{pool: pool, interval: time.Second}
}

// Next blocks until an insert entry is available or ctx is done.
func (f *Feed) Next(ctx context.Context) (*albumkeep.ChangeEntry, error) {
	for {
		if len(f.buffer) > 0 {
			entry := f.buffer[0]
			f.buffer = f.buffer[1:]
			return entry, nil
		}
		if err := f.fill(ctx); err != nil {
			return nil, err
		}
		if len(f.buffer) > 0 {
			continue
		}
		select {
		case <-time.After(f.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *Feed) fill(ctx context.Context) error {
	if !f.primed {
		err := f.pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(id), 0) FROM image_metadata_feed`).Scan(&f.lastID)
		if err != nil {
			return err
		}
		f.primed = true
	}

	rows, err := f.pool.Query(ctx, `
		SELECT id, file_name, attributes, created_at
		FROM image_metadata_feed
		WHERE id > $1
		ORDER BY id
		LIMIT 100`, f.lastID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        int64
			fileName  string
			attrs     []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &fileName, &attrs, &createdAt); err != nil {
			return err
		}
		record := &albumkeep.MetadataRecord{FileName: fileName, CreatedAt: createdAt}
		if err := json.Unmarshal(attrs, &record.Attributes); err != nil {
			return err
		}
		f.buffer = append(f.buffer, &albumkeep.ChangeEntry{
			Kind:   albumkeep.ChangeInsert,
			Record: record,
		})
		f.lastID = id
	}
	return rows.Err()
}
