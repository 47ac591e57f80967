// Package storage holds content items in a fixed number of slots.
//
// A Store never evicts on its own: when every slot is taken, Store reports
// failure and the caller decides whether to drop the item, try elsewhere,
// or discard something first. A Store is not safe for concurrent use; the
// engine owning it serialises every access.
package storage

import (
	"sort"

	"github.com/keeferrourke/rhpman-sim/wire"
)

// Store is a bounded content-item container keyed by item ID.
type Store struct {
	capacity int
	items    map[uint64]wire.ContentItem
}

// New returns an empty store with the given number of slots.
func New(capacity int) *Store {
	s := &Store{}
	s.Init(capacity)
	return s
}

// Init resets the store to empty with the given number of slots.
func (s *Store) Init(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	s.capacity = capacity
	s.items = make(map[uint64]wire.ContentItem, capacity)
}

// Store inserts a copy of item. It fails without side effects when the
// store is full or already holds an item with the same ID.
func (s *Store) Store(item wire.ContentItem) bool {
	if _, exists := s.items[item.ID]; exists {
		return false
	}
	if len(s.items) >= s.capacity {
		return false
	}
	s.items[item.ID] = item.Clone()
	return true
}

// Get returns a copy of the item with the given ID.
func (s *Store) Get(id uint64) (wire.ContentItem, bool) {
	item, ok := s.items[id]
	if !ok {
		return wire.ContentItem{}, false
	}
	return item.Clone(), true
}

// Has reports whether an item with the given ID is stored.
func (s *Store) Has(id uint64) bool {
	_, ok := s.items[id]
	return ok
}

// Remove drops the item with the given ID, reporting whether it was present.
func (s *Store) Remove(id uint64) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// Clear evicts every item.
func (s *Store) Clear() {
	s.items = make(map[uint64]wire.ContentItem, s.capacity)
}

// All returns a snapshot of the stored items ordered by ID.
func (s *Store) All() []wire.ContentItem {
	out := make([]wire.ContentItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FreeSpace returns the number of unused slots.
func (s *Store) FreeSpace() int {
	return s.capacity - len(s.items)
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	return len(s.items)
}

// Capacity returns the number of slots.
func (s *Store) Capacity() int {
	return s.capacity
}
