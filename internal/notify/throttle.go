package notify

import (
	"sync"
	"time"
)

// Throttle suppresses a key seen again within ttl. Safe for concurrent use.
type Throttle struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewThrottle creates a Throttle with the given window.
func NewThrottle(ttl time.Duration) *Throttle {
	return &Throttle{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Suppress reports whether key was let through within the last ttl. When it
// was not, the key is recorded and false is returned. Expired keys are
// pruned on the way.
func (t *Throttle) Suppress(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, at := range t.seen {
		if now.Sub(at) >= t.ttl {
			delete(t.seen, k)
		}
	}
	if _, ok := t.seen[key]; ok {
		return true
	}
	t.seen[key] = now
	return false
}
