package georesolver

import (
	"math"

	"github.com/formthefog/formation-sub001/pkg/types"
)

// Weighting selects the distance-to-score function used when ranking
// candidate IPs (spec.md §4.3 step 3).
type Weighting string

const (
	WeightingLinear      Weighting = "linear"
	WeightingQuadratic   Weighting = "quadratic"
	WeightingStepped     Weighting = "stepped"
	WeightingLogarithmic Weighting = "logarithmic"
)

const earthRadiusKM = 6371.0

// haversineKM returns the great-circle distance between two lat/lon
// points in kilometers.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// distanceScore converts a distance in kilometers to a ranking score
// using w; higher scores rank first (spec.md §4.3 step 3's four
// weightings, each expressed here as its negative so "closer is
// higher").
func distanceScore(distanceKM float64, w Weighting) float64 {
	switch w {
	case WeightingQuadratic:
		return -(distanceKM * distanceKM)
	case WeightingStepped:
		switch {
		case distanceKM <= 500:
			return 0
		case distanceKM <= 2000:
			return -1
		case distanceKM <= 8000:
			return -2
		default:
			return -3
		}
	case WeightingLogarithmic:
		return -math.Log1p(distanceKM)
	case WeightingLinear:
		fallthrough
	default:
		return -distanceKM
	}
}

// Bias holds additive score adjustments per region/country bucket
// (spec.md §4.3 step 4). A bucket absent from either map contributes 0.
type Bias struct {
	Region  map[string]float64
	Country map[string]float64
}

func (b Bias) forTarget(region, country string) float64 {
	var total float64
	if b.Region != nil {
		total += b.Region[region]
	}
	if b.Country != nil {
		total += b.Country[country]
	}
	return total
}

// candidate pairs a DNSTarget with its ranking score.
type candidate struct {
	target types.DNSTarget
	score  float64
}

// rankTargets scores and sorts targets by distance from (clientLat,
// clientLon) to each target's geolocated position, applying w and bias,
// best-first. Targets the geo database has no coverage for (ok==false
// from the caller-supplied locate func) sort last among themselves,
// since they carry no distance signal.
func rankTargets(targets []types.DNSTarget, clientLat, clientLon float64, w Weighting, bias Bias, locate func(t types.DNSTarget) (lat, lon float64, region, country string, ok bool)) []types.DNSTarget {
	candidates := make([]candidate, 0, len(targets))
	for _, t := range targets {
		lat, lon, region, country, ok := locate(t)
		var score float64
		if ok {
			d := haversineKM(clientLat, clientLon, lat, lon)
			score = distanceScore(d, w) + bias.forTarget(region, country)
		} else {
			score = math.Inf(-1)
		}
		candidates = append(candidates, candidate{target: t, score: score})
	}

	// stable insertion sort: target counts per DNS record are small
	// (single-digit to low tens), and stability keeps equally-scored
	// targets in their RS iteration order instead of churning on ties.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	out := make([]types.DNSTarget, len(candidates))
	for i, c := range candidates {
		out[i] = c.target
	}
	return out
}

// filterByHealth applies spec.md §4.3 step 2: Healthy is always
// eligible; Degraded is eligible only if no Healthy target remains;
// Unhealthy is excluded unless every candidate is unhealthy, in which
// case all are returned (availability over correctness).
func filterByHealth(targets []types.DNSTarget) []types.DNSTarget {
	var healthy, degraded, unhealthy []types.DNSTarget
	for _, t := range targets {
		switch t.Health {
		case types.HealthHealthy:
			healthy = append(healthy, t)
		case types.HealthDegraded:
			degraded = append(degraded, t)
		default:
			unhealthy = append(unhealthy, t)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}
	if len(degraded) > 0 {
		return degraded
	}
	return unhealthy
}
