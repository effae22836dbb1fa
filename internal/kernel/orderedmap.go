package kernel

import "github.com/google/btree"

// idMap is an ordered, unique-keyed map over uint64 ids, backing a
// process's task table and the global process map. Ascend walks
// entries in id order, which gives task-table walks and the
// diagnostics a stable iteration.
type idMap[V any] struct {
	t *btree.BTreeG[idMapEntry[V]]
}

type idMapEntry[V any] struct {
	key uint64
	val V
}

func newIDMap[V any]() *idMap[V] {
	return &idMap[V]{
		t: btree.NewG(32, func(a, b idMapEntry[V]) bool { return a.key < b.key }),
	}
}

func (m *idMap[V]) Get(key uint64) (V, bool) {
	e, ok := m.t.Get(idMapEntry[V]{key: key})
	return e.val, ok
}

func (m *idMap[V]) Set(key uint64, val V) {
	m.t.ReplaceOrInsert(idMapEntry[V]{key: key, val: val})
}

func (m *idMap[V]) Delete(key uint64) (V, bool) {
	e, ok := m.t.Delete(idMapEntry[V]{key: key})
	return e.val, ok
}

func (m *idMap[V]) Len() int { return m.t.Len() }

// Min returns the entry with the lowest key, used to find a process's
// first task.
func (m *idMap[V]) Min() (uint64, V, bool) {
	e, ok := m.t.Min()
	return e.key, e.val, ok
}

func (m *idMap[V]) Ascend(f func(key uint64, val V) bool) {
	m.t.Ascend(func(e idMapEntry[V]) bool { return f(e.key, e.val) })
}

// lowestFreeSlot returns the smallest index not currently occupied, or
// length if every slot is taken. The fd, mutex, semaphore and condvar
// tables all recycle ids this way: the lowest free slot wins.
func lowestFreeSlot(occupied func(i int) bool, length int) int {
	for i := 0; i < length; i++ {
		if !occupied(i) {
			return i
		}
	}
	return length
}
