package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

const defaultMemoryItems = 1000

// Stats counts memory store activity.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Items       int
}

type memoryEntry struct {
	key   string
	entry Entry
}

// MemoryStore is a bounded in-process LRU store. Expired entries are dropped when read or swept.
type MemoryStore struct {
	maxItems int
	now      func() time.Time

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	stats    Stats
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock injects a custom clock primarily for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store holding at most maxItems entries.
func NewMemoryStore(maxItems int, opts ...MemoryOption) *MemoryStore {
	if maxItems <= 0 {
		maxItems = defaultMemoryItems
	}
	s := &MemoryStore{
		maxItems: maxItems,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Name() string { return "memory" }

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return Entry{}, false, nil
	}
	item := elem.Value.(*memoryEntry)
	if s.expired(item.entry) {
		s.remove(elem)
		s.stats.Expirations++
		s.stats.Misses++
		return Entry{}, false, nil
	}

	s.eviction.MoveToFront(elem)
	s.stats.Hits++

	out := item.entry
	out.Value = append([]byte(nil), item.entry.Value...)
	return out, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	entry := Entry{Value: append([]byte(nil), value...), StoredAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		elem.Value.(*memoryEntry).entry = entry
		s.eviction.MoveToFront(elem)
		return nil
	}

	s.items[key] = s.eviction.PushFront(&memoryEntry{key: key, entry: entry})
	for len(s.items) > s.maxItems {
		oldest := s.eviction.Back()
		if oldest == nil {
			break
		}
		s.remove(oldest)
		s.stats.Evictions++
	}
	return nil
}

// DeletePrefix implements Store.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.remove(elem)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Cleanup removes expired entries and returns how many were dropped.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, elem := range s.items {
		if s.expired(elem.Value.(*memoryEntry).entry) {
			s.remove(elem)
			removed++
		}
	}
	s.stats.Expirations += int64(removed)
	return removed
}

// StartJanitor sweeps expired entries every interval until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := s.Cleanup()
				if onSweep != nil && removed > 0 {
					onSweep(removed)
				}
			}
		}
	}()
}

// Stats returns a snapshot of the store counters.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Items = len(s.items)
	return out
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) expired(e Entry) bool {
	return !e.ExpiresAt.IsZero() && !s.now().Before(e.ExpiresAt)
}

func (s *MemoryStore) remove(elem *list.Element) {
	s.eviction.Remove(elem)
	delete(s.items, elem.Value.(*memoryEntry).key)
}
