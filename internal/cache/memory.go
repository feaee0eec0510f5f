package cache

import (
	"container/list"
	"sync"
	"time"
)

// memoryTier is a byte-capacity LRU.
type memoryTier struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[string]*list.Element
	order    *list.List // front is most recent
	stats    TierStats
}

type memoryEntry struct {
	key    string
	value  []byte
	stored time.Time
}

func newMemoryTier(capacity int64) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (m *memoryTier) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	m.order.MoveToFront(el)
	m.stats.Hits++
	return el.Value.(*memoryEntry).value, true
}

func (m *memoryTier) put(key string, value []byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
	}
	n := int64(len(value))
	if n > m.capacity {
		return ErrItemTooLarge
	}
	for m.size+n > m.capacity && m.order.Len() > 0 {
		m.removeLocked(m.order.Back())
		m.stats.Evictions++
	}

	m.items[key] = m.order.PushFront(&memoryEntry{key: key, value: value, stored: now})
	m.size += n
	return nil
}

func (m *memoryTier) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
	}
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.size = 0
}

// prune drops entries stored before cutoff.
func (m *memoryTier) prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryEntry).stored.Before(cutoff) {
			m.removeLocked(el)
			n++
		}
		el = prev
	}
	return n
}

func (m *memoryTier) snapshot() TierStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Capacity = m.capacity
	s.Size = m.size
	s.Items = len(m.items)
	return s
}

// must be called with the lock held
func (m *memoryTier) removeLocked(el *list.Element) {
	e := m.order.Remove(el).(*memoryEntry)
	delete(m.items, e.key)
	m.size -= int64(len(e.value))
}
