package georesolver

import (
	"sync"
	"time"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// cacheEntry is one fqdn's last successfully resolved answer, kept
// around for the "RS unavailable" failure mode (spec.md §4.3).
type cacheEntry struct {
	targets   []types.DNSTarget
	ttl       uint32
	expiresAt time.Time
}

// lastKnownGood is an in-memory per-fqdn cache of the most recent
// successful resolution, served when the Replicated Store is
// unreachable. Entries expire using the DNS record's own TTL, exactly
// as the failure mode requires ("serve from a last-known-good cache
// with original TTLs; if cache entry expired, return SERVFAIL").
type lastKnownGood struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newLastKnownGood() *lastKnownGood {
	return &lastKnownGood{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *lastKnownGood) set(fqdn string, targets []types.DNSTarget, ttl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fqdn] = cacheEntry{
		targets:   targets,
		ttl:       ttl,
		expiresAt: c.now().Add(time.Duration(ttl) * time.Second),
	}
}

func (c *lastKnownGood) get(fqdn string) ([]types.DNSTarget, uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fqdn]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, 0, false
	}
	return entry.targets, entry.ttl, true
}
