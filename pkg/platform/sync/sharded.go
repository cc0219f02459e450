package sync

import (
	"hash/fnv"
	"slices"
	"sync"
)

const shardCount = 64

// KeyedMutex serializes work per key (a station, a subject) without a single
// global lock. Keys that hash to the same shard share a mutex.
type KeyedMutex struct {
	shards [shardCount]sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the shard for key. Empty keys map to shard 0.
func (m *KeyedMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

func (m *KeyedMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

// LockAll acquires the shards for every key in ascending shard order and
// returns a func releasing them. Shards shared by several keys are locked once.
// Two callers locking overlapping key sets cannot deadlock.
func (m *KeyedMutex) LockAll(keys ...string) (unlock func()) {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, shardFor(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		m.shards[i].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			m.shards[idx[i]].Unlock()
		}
	}
}

func shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
