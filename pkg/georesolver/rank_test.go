package georesolver

import (
	"net"
	"testing"
	"time"

	"github.com/formthefog/formation-sub001/pkg/types"
)

func TestHaversineKMKnownDistance(t *testing.T) {
	// New York City to London, roughly 5570 km.
	d := haversineKM(40.7128, -74.0060, 51.5074, -0.1278)
	if d < 5500 || d > 5650 {
		t.Fatalf("haversineKM() = %f, want ~5570", d)
	}
}

func TestHaversineKMSamePointIsZero(t *testing.T) {
	if d := haversineKM(10, 10, 10, 10); d != 0 {
		t.Fatalf("haversineKM() for identical points = %f, want 0", d)
	}
}

func TestDistanceScoreOrderingPerWeighting(t *testing.T) {
	for _, w := range []Weighting{WeightingLinear, WeightingQuadratic, WeightingStepped, WeightingLogarithmic} {
		near := distanceScore(100, w)
		far := distanceScore(9000, w)
		if near <= far {
			t.Errorf("weighting %s: score(100km)=%f should exceed score(9000km)=%f", w, near, far)
		}
	}
}

func TestFilterByHealthPrefersHealthy(t *testing.T) {
	targets := []types.DNSTarget{
		{IP: net.ParseIP("1.1.1.1"), Health: types.HealthUnhealthy},
		{IP: net.ParseIP("2.2.2.2"), Health: types.HealthHealthy},
		{IP: net.ParseIP("3.3.3.3"), Health: types.HealthDegraded},
	}
	got := filterByHealth(targets)
	if len(got) != 1 || got[0].Health != types.HealthHealthy {
		t.Fatalf("filterByHealth() = %+v, want only the Healthy target", got)
	}
}

func TestFilterByHealthFallsBackToDegraded(t *testing.T) {
	targets := []types.DNSTarget{
		{IP: net.ParseIP("1.1.1.1"), Health: types.HealthUnhealthy},
		{IP: net.ParseIP("2.2.2.2"), Health: types.HealthDegraded},
	}
	got := filterByHealth(targets)
	if len(got) != 1 || got[0].Health != types.HealthDegraded {
		t.Fatalf("filterByHealth() = %+v, want only the Degraded target", got)
	}
}

func TestFilterByHealthReturnsAllWhenAllUnhealthy(t *testing.T) {
	targets := []types.DNSTarget{
		{IP: net.ParseIP("1.1.1.1"), Health: types.HealthUnhealthy},
		{IP: net.ParseIP("2.2.2.2"), Health: types.HealthUnhealthy},
	}
	got := filterByHealth(targets)
	if len(got) != 2 {
		t.Fatalf("filterByHealth() = %+v, want both unhealthy targets returned", got)
	}
}

func TestRankTargetsOrdersByDistance(t *testing.T) {
	targets := []types.DNSTarget{
		{IP: net.ParseIP("203.0.113.20"), UpdatedAt: time.Now()}, // far
		{IP: net.ParseIP("203.0.113.10"), UpdatedAt: time.Now()}, // near
	}
	locations := map[string][4]float64{
		"203.0.113.10": {37.7749, -122.4194, 0, 0}, // San Francisco
		"203.0.113.20": {51.5074, -0.1278, 0, 0},   // London
	}
	clientLat, clientLon := 37.3382, -121.8863 // San Jose, near SF

	ranked := rankTargets(targets, clientLat, clientLon, WeightingLinear, Bias{}, func(t types.DNSTarget) (float64, float64, string, string, bool) {
		loc, ok := locations[t.IP.String()]
		return loc[0], loc[1], "", "", ok
	})

	if ranked[0].IP.String() != "203.0.113.10" {
		t.Fatalf("ranked[0] = %s, want the nearer target first", ranked[0].IP)
	}
}

func TestRankTargetsAppliesRegionBias(t *testing.T) {
	targets := []types.DNSTarget{
		{IP: net.ParseIP("10.0.0.1"), Region: "eu"},
		{IP: net.ParseIP("10.0.0.2"), Region: "us"},
	}
	bias := Bias{Region: map[string]float64{"eu": 1_000_000}}

	ranked := rankTargets(targets, 0, 0, WeightingLinear, bias, func(t types.DNSTarget) (float64, float64, string, string, bool) {
		return 0, 0, t.Region, "", true
	})

	if ranked[0].Region != "eu" {
		t.Fatalf("ranked[0].Region = %s, want eu (biased)", ranked[0].Region)
	}
}
