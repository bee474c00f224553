package georesolver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/netip"
	"strings"
	"time"

	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/metrics"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// RSReader is the subset of pkg/rs.Store the resolver needs: a read-only
// view, matching spec.md §4.3's "GR reads only; it never mutates."
type RSReader interface {
	Read(kind types.EntityKind, key string) (json.RawMessage, bool, error)
}

// Config holds the resolver's tunables, all sourced from pkg/config's
// §6 option table.
type Config struct {
	Zones          []string // suffixes this resolver answers authoritatively for
	Weighting      Weighting
	Bias           Bias
	MaxAnswers     int
	StaleThreshold time.Duration // heartbeat age before a target is downgraded
	DefaultTTL     uint32
}

func (c Config) withDefaults() Config {
	if c.MaxAnswers <= 0 {
		c.MaxAnswers = 4
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 30 * time.Second
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 60
	}
	if c.Weighting == "" {
		c.Weighting = WeightingLinear
	}
	return c
}

// Resolver answers authoritative DNS queries by looking up live IPs from
// the Replicated Store, filtering by health, and ranking by geographic
// proximity (spec.md §4.3).
type Resolver struct {
	store Store
	geodb *GeoDB
	cfg   Config
	cache *lastKnownGood
	now   func() time.Time
}

// Store is an alias kept distinct from RSReader so callers constructing
// a Resolver read naturally (`NewResolver(rsStore, ...)`), while the
// interface itself stays narrow for testability.
type Store = RSReader

// NewResolver constructs a Resolver reading from store and geolocating
// with geodb (nil is valid: ranking degrades to the geo-missing failure
// mode for every query).
func NewResolver(store Store, geodb *GeoDB, cfg Config) *Resolver {
	return &Resolver{store: store, geodb: geodb, cfg: cfg.withDefaults(), cache: newLastKnownGood(), now: time.Now}
}

// InZone reports whether fqdn falls under one of the resolver's
// configured authoritative zones.
func (r *Resolver) InZone(fqdn string) bool {
	name := strings.TrimSuffix(strings.ToLower(fqdn), ".")
	for _, zone := range r.cfg.Zones {
		zone = strings.TrimSuffix(strings.ToLower(zone), ".")
		if name == zone || strings.HasSuffix(name, "."+zone) {
			return true
		}
	}
	return false
}

// Resolve answers a query for fqdn given the client's estimated location
// (from the query source IP, or EDNS Client Subnet when present),
// returning ranked, health-filtered targets and the TTL to serve them
// with.
func (r *Resolver) Resolve(fqdn string, client netip.Addr) ([]types.DNSTarget, uint32, error) {
	start := r.now()
	defer func() { metrics.GRQueryDuration.Observe(time.Since(start).Seconds()) }()

	name := strings.TrimSuffix(strings.ToLower(fqdn), ".")

	raw, found, err := r.store.Read(types.EntityDNSRecord, name)
	if err != nil {
		if targets, ttl, ok := r.cache.get(name); ok {
			metrics.GRLastKnownGoodHitsTotal.Inc()
			return targets, ttl, nil
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		if r.InZone(name) {
			return nil, 0, ErrNXDomain
		}
		return nil, 0, ErrNotAuthoritative
	}

	var record types.DNSRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, 0, fmt.Errorf("decode dns record %s: %w", name, err)
	}

	targets := make([]types.DNSTarget, len(record.Targets))
	for i, t := range record.Targets {
		targets[i] = r.downgradeStale(t)
	}
	targets = filterByHealth(targets)
	if len(targets) == 0 {
		return nil, 0, ErrNXDomain
	}

	ttl := record.TTL
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}

	ranked := r.rank(targets, client)
	if len(ranked) > r.cfg.MaxAnswers {
		ranked = ranked[:r.cfg.MaxAnswers]
	}

	r.cache.set(name, ranked, ttl)
	return ranked, ttl, nil
}

// downgradeStale applies spec.md §4.3's "stale heartbeat" rule: a target
// whose last health update is older than StaleThreshold is demoted one
// level (Healthy -> Degraded -> Unhealthy).
func (r *Resolver) downgradeStale(t types.DNSTarget) types.DNSTarget {
	if r.now().Sub(t.UpdatedAt) <= r.cfg.StaleThreshold {
		return t
	}
	before := t.Health
	switch t.Health {
	case types.HealthHealthy:
		t.Health = types.HealthDegraded
	case types.HealthDegraded:
		t.Health = types.HealthUnhealthy
	}
	if before != t.Health {
		metrics.GRHealthTransitionsTotal.WithLabelValues(string(before), string(t.Health)).Inc()
		flog.WithComponent("georesolver").Debug().
			Str("from", string(before)).Str("to", string(t.Health)).
			Msg("downgraded target for stale heartbeat")
	}
	return t
}

// rank geolocates the client and every target and orders targets
// best-first, falling back to a random shuffle when the geo database has
// no usable coverage (spec.md §4.3's "geolocation DB missing" mode).
func (r *Resolver) rank(targets []types.DNSTarget, client netip.Addr) []types.DNSTarget {
	clientLat, clientLon, _, _, clientOK := r.geodb.Locate(client)
	if !clientOK {
		shuffled := append([]types.DNSTarget(nil), targets...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return shuffled
	}

	return rankTargets(targets, clientLat, clientLon, r.cfg.Weighting, r.cfg.Bias, func(t types.DNSTarget) (float64, float64, string, string, bool) {
		if t.IP == nil {
			return 0, 0, "", "", false
		}
		addr, ok := netip.AddrFromSlice(t.IP)
		if !ok {
			return 0, 0, "", "", false
		}
		lat, lon, region, country, ok := r.geodb.Locate(addr)
		if !ok {
			return 0, 0, t.Region, t.Country, false
		}
		if t.Region != "" {
			region = t.Region
		}
		if t.Country != "" {
			country = t.Country
		}
		return lat, lon, region, country, true
	})
}
