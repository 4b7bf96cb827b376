package executor

import (
	"sync"
	"time"
)

// Dedup remembers which orders have been submitted recently so the same
// order is not filled twice within the TTL window. It is safe for
// concurrent use.
type Dedup struct {
	seen map[string]time.Time // order key -> claim time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats an order as a duplicate for ttl after
// it was first claimed.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim records key and reports true, unless key was already claimed within
// the TTL, in which case it reports false.
func (d *Dedup) Claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if claimed, ok := d.seen[key]; ok && now.Sub(claimed) < d.ttl {
		return false
	}
	d.seen[key] = now
	return true
}

// Release forgets key, used when a fill failed before anything was sent.
func (d *Dedup) Release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Len is the number of remembered keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Cleanup removes expired entries. Call it periodically to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
