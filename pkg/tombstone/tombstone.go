// Package tombstone records identities of items that were deleted or moved
// away, so that later operations on a stale identity can be refused with a
// Deleted error instead of touching whatever lives at that path now.
//
// Identities are slash-separated absolute paths. A tombstone covers the
// marked identity and everything beneath it: once "/r/a" is deleted,
// "/r/a/f" is deleted too. Creating a new entry at a tombstoned identity
// clears the tombstone for that identity and its descendants.
package tombstone

import (
	"context"
	"path"
	"strings"
	"sync"
)

// Store is a tombstone set.
type Store interface {
	// Mark records id as deleted.
	Mark(ctx context.Context, id string) error

	// IsDeleted reports whether id, or any ancestor of id, is marked.
	IsDeleted(ctx context.Context, id string) (bool, error)

	// Clear removes the tombstones for id and all identities beneath it.
	Clear(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// Lineage returns id followed by each of its ancestors up to "/".
func Lineage(id string) []string {
	id = path.Clean(id)
	out := []string{id}
	for id != "/" && id != "." {
		id = path.Dir(id)
		out = append(out, id)
	}
	return out
}

// IsBeneath reports whether id lies strictly under parent.
func IsBeneath(id, parent string) bool {
	if parent == "/" {
		return id != "/" && strings.HasPrefix(id, "/")
	}
	return strings.HasPrefix(id, parent+"/")
}

// MemoryStore keeps tombstones in process memory. They are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]struct{})}
}

func (s *MemoryStore) Mark(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path.Clean(id)] = struct{}{}
	return nil
}

func (s *MemoryStore) IsDeleted(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range Lineage(id) {
		if _, ok := s.entries[candidate]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Clear(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = path.Clean(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k == id || IsBeneath(k, id) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Len returns the number of tombstones.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	return nil
}
