package storage

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// ShardedMemoryStorage spreads keys over independently locked shards so that
// writers for different devices rarely contend
type ShardedMemoryStorage[K comparable, V any] struct {
	shards     []*MemoryStorage[K, V]
	shardMask  int
	keyToShard func(K) int
}

var _ Storage[string, int] = (*ShardedMemoryStorage[string, int])(nil)

// NewShardedMemoryStorage creates a sharded storage. shardCount is rounded up
// to a power of two. A nil keyToShard hashes the key with FNV-1a.
func NewShardedMemoryStorage[K comparable, V any](shardCount int, keyToShard func(K) int) *ShardedMemoryStorage[K, V] {
	realShardCount := 1
	for realShardCount < shardCount {
		realShardCount *= 2
	}

	shards := make([]*MemoryStorage[K, V], realShardCount)
	for i := range shards {
		shards[i] = NewMemoryStorage[K, V]()
	}

	if keyToShard == nil {
		keyToShard = func(key K) int {
			switch k := any(key).(type) {
			case string:
				return int(fnv1a(k))
			case int:
				return k
			case int64:
				return int(k)
			case uint64:
				return int(k)
			default:
				return int(fnv1a(fmt.Sprintf("%v", key)))
			}
		}
	}

	return &ShardedMemoryStorage[K, V]{
		shards:     shards,
		shardMask:  realShardCount - 1,
		keyToShard: keyToShard,
	}
}

func fnv1a(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func (s *ShardedMemoryStorage[K, V]) shard(key K) *MemoryStorage[K, V] {
	return s.shards[s.keyToShard(key)&s.shardMask]
}

func (s *ShardedMemoryStorage[K, V]) ShardCount() int {
	return len(s.shards)
}

func (s *ShardedMemoryStorage[K, V]) Set(key K, value V) {
	s.shard(key).Set(key, value)
}

func (s *ShardedMemoryStorage[K, V]) SetIf(key K, value V, accept func(current V, exists bool) bool) bool {
	return s.shard(key).SetIf(key, value, accept)
}

func (s *ShardedMemoryStorage[K, V]) Get(key K) (V, bool) {
	return s.shard(key).Get(key)
}

func (s *ShardedMemoryStorage[K, V]) UpdatedAt(key K) (time.Time, bool) {
	return s.shard(key).UpdatedAt(key)
}

func (s *ShardedMemoryStorage[K, V]) Delete(key K) bool {
	return s.shard(key).Delete(key)
}

// GetAll returns all objects from all shards
func (s *ShardedMemoryStorage[K, V]) GetAll() map[K]V {
	result := make(map[K]V)
	for _, sh := range s.shards {
		for k, v := range sh.GetAll() {
			result[k] = v
		}
	}
	return result
}

func (s *ShardedMemoryStorage[K, V]) GetAllValues() []V {
	result := make([]V, 0, s.Count())
	for _, sh := range s.shards {
		result = append(result, sh.GetAllValues()...)
	}
	return result
}

func (s *ShardedMemoryStorage[K, V]) TakeDirty() map[K]V {
	result := make(map[K]V)
	for _, sh := range s.shards {
		for k, v := range sh.TakeDirty() {
			result[k] = v
		}
	}
	return result
}

func (s *ShardedMemoryStorage[K, V]) MarkDirty(keys []K) {
	for _, k := range keys {
		s.shard(k).MarkDirty([]K{k})
	}
}

// ForEach visits shards one at a time; fn returning false stops the walk
func (s *ShardedMemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	stopped := false
	for _, sh := range s.shards {
		sh.ForEach(func(k K, v V) bool {
			if !fn(k, v) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

func (s *ShardedMemoryStorage[K, V]) Count() int {
	count := 0
	for _, sh := range s.shards {
		count += sh.Count()
	}
	return count
}

// ForEachParallel processes every shard in its own goroutine
func (s *ShardedMemoryStorage[K, V]) ForEachParallel(fn func(key K, value V)) {
	var wg sync.WaitGroup
	wg.Add(len(s.shards))

	for _, sh := range s.shards {
		go func() {
			defer wg.Done()
			sh.ForEach(func(k K, v V) bool {
				fn(k, v)
				return true
			})
		}()
	}

	wg.Wait()
}
