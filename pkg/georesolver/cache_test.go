package georesolver

import (
	"net"
	"testing"
	"time"

	"github.com/formthefog/formation-sub001/pkg/types"
)

func TestLastKnownGoodSetGetRoundtrip(t *testing.T) {
	c := newLastKnownGood()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	targets := []types.DNSTarget{{IP: net.ParseIP("203.0.113.10"), Health: types.HealthHealthy}}
	c.set("app.example.com", targets, 60)

	got, ttl, ok := c.get("app.example.com")
	if !ok || ttl != 60 || len(got) != 1 {
		t.Fatalf("get() = (%v, %d, %v), want the cached entry", got, ttl, ok)
	}
}

func TestLastKnownGoodExpiresAfterTTL(t *testing.T) {
	c := newLastKnownGood()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.set("app.example.com", []types.DNSTarget{{IP: net.ParseIP("203.0.113.10")}}, 60)

	now = now.Add(61 * time.Second)
	if _, _, ok := c.get("app.example.com"); ok {
		t.Fatalf("get() after TTL expiry ok = true, want false")
	}
}

func TestLastKnownGoodMissingEntry(t *testing.T) {
	c := newLastKnownGood()
	if _, _, ok := c.get("never-set.example.com"); ok {
		t.Fatalf("get() for unset fqdn ok = true, want false")
	}
}
