package deltaencoder

import (
	"strings"
	"sync"
	"sync/atomic"
)

const shardCount = 64

// IDTable is the process-wide concurrent map from normalized title to dense
// 64-bit id named in spec.md §3. It is striped across shardCount mutexes so
// concurrent get-or-insert calls from different delta-encoder workers rarely
// contend on the same lock (spec.md §9: "a striped/concurrent hash map plus
// an atomic counter"). No ready-made concurrent map existed anywhere in the
// example pack, so this is a deliberate hand-rolled build.
type IDTable struct {
	nextID int64
	shards [shardCount]idShard
}

type idShard struct {
	mu sync.Mutex
	m  map[string]int64
}

// NewIDTable returns an empty table.
func NewIDTable() *IDTable {
	t := &IDTable{}
	for i := range t.shards {
		t.shards[i].m = make(map[string]int64)
	}
	return t
}

// GetOrInsert returns the id for normalizedTitle, allocating a fresh one via
// atomic fetch-add if it has not been seen before. Collisions under title
// normalization intentionally share an id (spec.md §3).
func (t *IDTable) GetOrInsert(normalizedTitle string) int64 {
	shard := &t.shards[shardIndex(normalizedTitle)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if id, ok := shard.m[normalizedTitle]; ok {
		return id
	}
	id := atomic.AddInt64(&t.nextID, 1) - 1
	shard.m[normalizedTitle] = id
	return id
}

func shardIndex(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h % shardCount
}

// Normalize implements the normalization named in spec.md §3 and §GLOSSARY:
// trim whitespace, then ASCII-lowercase. It is idempotent (spec.md §8
// invariant 5). Only ASCII letters are case-folded; non-ASCII bytes/runes
// pass through untouched, per spec.md's Non-goal of Unicode-correct
// normalization — so "Zürich" and "zürich" normalize the same, but "Zürich"
// and "ZÜRICH" do not.
func Normalize(title string) string {
	trimmed := strings.TrimSpace(title)
	b := []byte(trimmed)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
