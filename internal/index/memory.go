package index

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultSize bounds the number of remembered event IDs.
	DefaultSize = 10_000
	// DefaultTTL covers Slack's retry schedule (three retries within about 5 minutes).
	DefaultTTL = 15 * time.Minute
)

// MemoryIndex remembers recently seen Slack event IDs.
// It acts as the dedupe backend when Redis is not configured.
type MemoryIndex struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time] // event ID -> first seen
}

// NewMemoryIndex creates a bounded index; zero values get the defaults.
func NewMemoryIndex(size int, ttl time.Duration) *MemoryIndex {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryIndex{
		seen: expirable.NewLRU[string, time.Time](size, nil, ttl),
	}
}

// MarkSeen records eventID and reports whether it was new.
func (idx *MemoryIndex) MarkSeen(_ context.Context, eventID string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.seen.Get(eventID); ok {
		return false, nil
	}
	idx.seen.Add(eventID, time.Now())
	return true, nil
}

// Forget drops eventID, so that a retry is processed again.
func (idx *MemoryIndex) Forget(_ context.Context, eventID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.seen.Remove(eventID)
	return nil
}

// Count returns the number of remembered events.
func (idx *MemoryIndex) Count() int {
	return idx.seen.Len()
}

func (idx *MemoryIndex) Name() string { return "memory" }
