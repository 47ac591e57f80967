package rhpman

import (
	"container/list"

	"github.com/keeferrourke/rhpman-sim/wire"
)

type messageKey struct {
	origin wire.Address
	id     uint64
}

// seenSet remembers processed message identities. With a positive capacity
// it evicts the least recently recorded identity first.
type seenSet struct {
	capacity int
	items    map[messageKey]*list.Element
	order    *list.List
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		items:    make(map[messageKey]*list.Element),
		order:    list.New(),
	}
}

// Add records k and reports whether it was new.
func (s *seenSet) Add(k messageKey) bool {
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = s.order.PushBack(k)
	if s.capacity > 0 && s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(messageKey))
	}
	return true
}

func (s *seenSet) Len() int {
	return s.order.Len()
}
