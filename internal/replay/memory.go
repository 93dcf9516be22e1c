package replay

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryGuard implements the Guard interface
var _ Guard = (*MemoryGuard)(nil)

// MemoryGuard is an in-process replay guard. Suitable for single-instance
// deployments; multi-instance deployments should use the Firestore guard so
// all instances share one consumed-code set.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	ttl     time.Duration
}

// NewMemoryGuard creates a memory guard whose entries expire after ttl
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// CheckAndReserve implements Guard. Check and mark happen under one lock,
// so two racing requests for the same code cannot both observe "fresh".
func (g *MemoryGuard) CheckAndReserve(_ context.Context, key string) error {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, exists := g.entries[key]; exists && now.Before(expiry) {
		return ErrAlreadyConsumed
	}
	g.entries[key] = now.Add(g.ttl)
	return nil
}

// SweepExpired implements Guard
func (g *MemoryGuard) SweepExpired(_ context.Context) (int, error) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, expiry := range g.entries {
		if now.After(expiry) {
			delete(g.entries, key)
			removed++
		}
	}
	return removed, nil
}
