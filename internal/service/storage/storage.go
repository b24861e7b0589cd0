package storage

import "time"

// Storage is a keyed in-memory store that remembers which keys changed since
// they were last persisted.
type Storage[K comparable, V any] interface {
	Set(key K, value V)
	// SetIf stores value only when accept approves it against the current entry
	SetIf(key K, value V, accept func(current V, exists bool) bool) bool
	Get(key K) (V, bool)
	UpdatedAt(key K) (time.Time, bool)
	Delete(key K) bool
	GetAll() map[K]V
	GetAllValues() []V
	// TakeDirty returns changed entries and clears their flags
	TakeDirty() map[K]V
	// MarkDirty flags keys again, e.g. after a failed save
	MarkDirty(keys []K)
	ForEach(fn func(key K, value V) bool)
	Count() int
}
