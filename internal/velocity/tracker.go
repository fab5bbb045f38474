// Package velocity tracks per-card transaction timestamps to detect rapid
// successive use. It is the only cross-call mutable state in the scoring
// core: everything else is a pure function of its inputs.
package velocity

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/fintechco/fraudguard/internal/domain"
)

// Default tunables. The burst window and the retention period are
// deliberately independent constants.
const (
	DefaultWindow    = 5 * time.Minute
	DefaultRetention = 24 * time.Hour

	shardCount = 64
)

// Tracker records transaction timestamps per card and reports how many fall
// within the burst window.
type Tracker interface {
	// RecordAndCount appends ts to the card's history, prunes entries older
	// than the retention period, and returns the number of entries within
	// the burst window ending at ts (including the one just recorded).
	// The append and prune happen on every call regardless of the count.
	RecordAndCount(ctx context.Context, cardNumber string, ts time.Time) (int, error)

	// Lifecycle
	Close() error
}

// New creates a tracker based on configuration.
func New(cfg domain.VelocityConfig) (Tracker, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryTracker(DefaultWindow, DefaultRetention), nil
	case "redis":
		return NewRedisTracker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, DefaultWindow, DefaultRetention)
	default:
		return nil, fmt.Errorf("unsupported velocity backend: %s", cfg.Backend)
	}
}

// MemoryTracker is the in-process tracker. Card histories are spread across
// a fixed set of shards so that updates for unrelated cards proceed in
// parallel while access to any one card's history stays serialized.
type MemoryTracker struct {
	window    time.Duration
	retention time.Duration
	shards    [shardCount]trackerShard
}

type trackerShard struct {
	mu    sync.Mutex
	cards map[string][]time.Time
}

// NewMemoryTracker creates an in-memory tracker with the given window and
// retention period.
func NewMemoryTracker(window, retention time.Duration) *MemoryTracker {
	t := &MemoryTracker{window: window, retention: retention}
	for i := range t.shards {
		t.shards[i].cards = make(map[string][]time.Time)
	}
	return t
}

// RecordAndCount implements Tracker.
func (t *MemoryTracker) RecordAndCount(ctx context.Context, cardNumber string, ts time.Time) (int, error) {
	if cardNumber == "" {
		return 0, fmt.Errorf("cardNumber is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	shard := &t.shards[t.shardFor(cardNumber)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entries := append(shard.cards[cardNumber], ts)

	// Prune anything older than the retention period.
	cutoff := ts.Add(-t.retention)
	kept := entries[:0]
	for _, e := range entries {
		if e.After(cutoff) {
			kept = append(kept, e)
		}
	}
	shard.cards[cardNumber] = kept

	windowStart := ts.Add(-t.window)
	count := 0
	for _, e := range kept {
		if e.After(windowStart) && !e.After(ts) {
			count++
		}
	}
	return count, nil
}

// CardCount returns the number of retained entries for a card. Intended for
// inspection and tests.
func (t *MemoryTracker) CardCount(cardNumber string) int {
	shard := &t.shards[t.shardFor(cardNumber)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return len(shard.cards[cardNumber])
}

// Close clears all tracked state.
func (t *MemoryTracker) Close() error {
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		shard.cards = make(map[string][]time.Time)
		shard.mu.Unlock()
	}
	return nil
}

func (t *MemoryTracker) shardFor(cardNumber string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(cardNumber))
	return h.Sum32() % shardCount
}
