package storage

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func implementations() map[string]func() Storage[string, int] {
	return map[string]func() Storage[string, int]{
		"memory":  func() Storage[string, int] { return NewMemoryStorage[string, int]() },
		"sharded": func() Storage[string, int] { return NewShardedMemoryStorage[string, int](5, nil) },
	}
}

func TestSetIf(t *testing.T) {
	greater := func(v int) func(int, bool) bool {
		return func(cur int, exists bool) bool { return !exists || v > cur }
	}

	for name, newStorage := range implementations() {
		t.Run(name, func(t *testing.T) {
			s := newStorage()
			if !s.SetIf("a", 5, greater(5)) {
				t.Fatal("first SetIf rejected")
			}
			if s.SetIf("a", 3, greater(3)) {
				t.Error("smaller value accepted")
			}
			if s.SetIf("a", 5, greater(5)) {
				t.Error("equal value accepted")
			}
			if v, _ := s.Get("a"); v != 5 {
				t.Errorf("a = %d", v)
			}
			if _, ok := s.UpdatedAt("a"); !ok {
				t.Error("UpdatedAt missing")
			}
		})
	}
}

func TestDirtyTracking(t *testing.T) {
	for name, newStorage := range implementations() {
		t.Run(name, func(t *testing.T) {
			s := newStorage()
			s.Set("a", 1)
			s.Set("b", 2)

			dirty := s.TakeDirty()
			if len(dirty) != 2 || dirty["a"] != 1 || dirty["b"] != 2 {
				t.Fatalf("dirty = %v", dirty)
			}
			if again := s.TakeDirty(); len(again) != 0 {
				t.Errorf("flags not cleared: %v", again)
			}

			s.MarkDirty([]string{"a", "missing"})
			if dirty := s.TakeDirty(); len(dirty) != 1 || dirty["a"] != 1 {
				t.Errorf("re-marked = %v", dirty)
			}

			s.Set("c", 3)
			s.Delete("c")
			if dirty := s.TakeDirty(); len(dirty) != 0 {
				t.Errorf("deleted key reported dirty: %v", dirty)
			}
		})
	}
}

func TestConcurrentWriters(t *testing.T) {
	for name, newStorage := range implementations() {
		t.Run(name, func(t *testing.T) {
			s := newStorage()
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						v := i
						s.SetIf(fmt.Sprintf("k%d", i%10), v, func(cur int, exists bool) bool { return !exists || v > cur })
					}
				}()
			}
			wg.Wait()

			if s.Count() != 10 {
				t.Fatalf("count = %d", s.Count())
			}
			var keys []string
			s.ForEach(func(k string, v int) bool {
				keys = append(keys, k)
				if want := 90 + int(k[1]-'0'); v != want {
					t.Errorf("%s = %d, want %d", k, v, want)
				}
				return true
			})
			sort.Strings(keys)
			if len(keys) != 10 || keys[0] != "k0" {
				t.Errorf("keys = %v", keys)
			}
		})
	}
}

func TestShardCountRoundsUp(t *testing.T) {
	s := NewShardedMemoryStorage[string, int](5, nil)
	if s.ShardCount() != 8 {
		t.Errorf("shards = %d", s.ShardCount())
	}

	var mu sync.Mutex
	seen := 0
	for i := 0; i < 20; i++ {
		s.Set(fmt.Sprint(i), i)
	}
	s.ForEachParallel(func(string, int) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	if seen != 20 {
		t.Errorf("visited %d", seen)
	}
}
