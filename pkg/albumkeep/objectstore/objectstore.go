// Package objectstore provides probes into the source object store. The
// ingest worker uses a probe to enrich new metadata records with size and
// content type; the pipeline stays correct without one.
package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// Memory is an in-memory prober used by tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]albumkeep.ObjectInfo
}

// NewMemory creates an empty prober.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]albumkeep.ObjectInfo)}
}

// Add registers an object.
func (m *Memory) Add(bucket, key string, info albumkeep.ObjectInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID(bucket, key)] = info
}

// Probe returns the registered info, or albumkeep.ErrObjectNotFound.
func (m *Memory) Probe(ctx context.Context, bucket, key string) (*albumkeep.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.objects[objectID(bucket, key)]
	if !ok {
		return nil, albumkeep.ErrObjectNotFound
	}
	return &info, nil
}

func objectID(bucket, key string) string {
	return fmt.Sprintf("%s/%s", bucket, key)
}
