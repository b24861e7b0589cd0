package storage

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	updatedAt time.Time
	dirty     bool
}

// MemoryStorage is a map guarded by one RWMutex.
// K is the key type, V the stored value.
type MemoryStorage[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[V]
	ndirty  int
	now     func() time.Time
}

var _ Storage[string, int] = (*MemoryStorage[string, int])(nil)

func NewMemoryStorage[K comparable, V any]() *MemoryStorage[K, V] {
	return &MemoryStorage[K, V]{
		entries: make(map[K]*entry[V]),
		now:     time.Now,
	}
}

// Set adds or replaces a value
func (s *MemoryStorage[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
}

func (s *MemoryStorage[K, V]) put(key K, value V) {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[V]{}
		s.entries[key] = e
	}
	e.value = value
	e.updatedAt = s.now()
	s.flag(e)
}

func (s *MemoryStorage[K, V]) flag(e *entry[V]) {
	if !e.dirty {
		e.dirty = true
		s.ndirty++
	}
}

// SetIf checks and stores under one lock, so concurrent writers cannot
// interleave between the check and the write
func (s *MemoryStorage[K, V]) SetIf(key K, value V, accept func(current V, exists bool) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current V
	e, exists := s.entries[key]
	if exists {
		current = e.value
	}
	if !accept(current, exists) {
		return false
	}
	s.put(key, value)
	return true
}

func (s *MemoryStorage[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// UpdatedAt is the local time of the last write to key
func (s *MemoryStorage[K, V]) UpdatedAt(key K) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[key]; ok {
		return e.updatedAt, true
	}
	return time.Time{}, false
}

func (s *MemoryStorage[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.dirty {
		s.ndirty--
	}
	delete(s.entries, key)
	return true
}

// GetAll copies every entry
func (s *MemoryStorage[K, V]) GetAll() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[K]V, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.value
	}
	return out
}

func (s *MemoryStorage[K, V]) GetAllValues() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]V, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.value)
	}
	return out
}

func (s *MemoryStorage[K, V]) TakeDirty() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[K]V, s.ndirty)
	if s.ndirty == 0 {
		return out
	}
	for k, e := range s.entries {
		if e.dirty {
			out[k] = e.value
			e.dirty = false
		}
	}
	s.ndirty = 0
	return out
}

// MarkDirty ignores keys that were deleted meanwhile
func (s *MemoryStorage[K, V]) MarkDirty(keys []K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			s.flag(e)
		}
	}
}

// ForEach walks a snapshot, so fn may call back into the storage
func (s *MemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	for k, v := range s.GetAll() {
		if !fn(k, v) {
			return
		}
	}
}

func (s *MemoryStorage[K, V]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
