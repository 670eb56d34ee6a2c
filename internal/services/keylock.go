package services

import (
	"hash/fnv"
	"sort"
	"sync"
)

const keyLockShards = 64

// keyLock provides per-username mutual exclusion without a global
// lock. Usernames are hashed onto a fixed set of shard mutexes, so
// unrelated users rarely contend while operations on the same username
// always serialize.
type keyLock struct {
	shards [keyLockShards]sync.Mutex
}

func (l *keyLock) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % keyLockShards)
}

// lock acquires the shard mutex for key and returns its unlock func.
func (l *keyLock) lock(key string) func() {
	i := l.shard(key)
	l.shards[i].Lock()
	return l.shards[i].Unlock
}

// lockAll acquires the shard mutexes covering all keys, in ascending
// shard order so concurrent batches cannot deadlock. Duplicate shards
// are locked once.
func (l *keyLock) lockAll(keys []string) func() {
	seen := make(map[int]struct{}, len(keys))
	shards := make([]int, 0, len(keys))
	for _, key := range keys {
		i := l.shard(key)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		shards = append(shards, i)
	}
	sort.Ints(shards)

	for _, i := range shards {
		l.shards[i].Lock()
	}
	return func() {
		for _, i := range shards {
			l.shards[i].Unlock()
		}
	}
}
