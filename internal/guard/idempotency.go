package guard

import (
	"context"
	"sync"
	"time"

	"github.com/rafflio/platform/internal/domain"
)

// IdempotencyGuard deduplicates deliveries by key for a bounded time.
// The webhook receiver keys it on payment ID and reported status.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyGuard creates an in-memory guard. A zero ttl keeps keys forever.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Check returns whether the given key has already been processed and records it.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	if at, ok := ig.seen[key]; ok && (ig.ttl == 0 || now.Sub(at) < ig.ttl) {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate delivery: key already processed",
			Guard:   "idempotency",
		}
	}

	ig.seen[key] = now
	return domain.GuardResult{Allowed: true}
}

// Remove deletes a key so a failed delivery can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

// Len returns the number of remembered keys.
func (ig *IdempotencyGuard) Len() int {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return len(ig.seen)
}
