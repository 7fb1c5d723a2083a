// Package lockset provides per-key mutexes that can be acquired in groups.
//
// Every caller that needs more than one key must go through Acquire, which
// always takes the locks in ascending key order. Holding a lock from one
// Acquire call while calling Acquire again is not allowed: that would break
// the ordering and can deadlock.
package lockset

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table maps keys to mutexes. Entries exist only while someone holds or
// waits for them.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Acquire locks every key in ascending order, ignoring duplicates, and
// returns a function that releases them in reverse order. The release
// function is safe to call more than once.
func (t *Table) Acquire(keys ...string) (release func()) {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	held := make([]*entry, 0, len(sorted))
	names := make([]string, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		e := t.ref(k)
		e.mu.Lock()
		held = append(held, e)
		names = append(names, k)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				t.unref(names[i])
			}
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) ref(key string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++
	return e
}

func (t *Table) unref(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
}
