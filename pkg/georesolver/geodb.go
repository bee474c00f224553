package georesolver

import (
	"encoding/csv"
	"fmt"
	"net/netip"
	"os"
	"strconv"
)

// geoEntry is one row of the geo database: a CIDR prefix mapped to a
// representative point and region/country labels.
type geoEntry struct {
	prefix  netip.Prefix
	lat     float64
	lon     float64
	region  string
	country string
}

// GeoDB is an in-memory CIDR-keyed location table loaded from a CSV file
// at the `geo_database` config path (spec.md §6). No MaxMind-style
// geolocation library appears anywhere in the retrieval pack, so this is
// a deliberate stdlib component (DESIGN.md records the justification);
// the schema is intentionally the simplest one that satisfies spec.md
// §4.3 step 3's distance ranking: `cidr,lat,lon,region,country` with a
// one-line header.
type GeoDB struct {
	entries []geoEntry
}

// LoadGeoDB reads a geo database CSV from path. Rows that fail to parse
// are skipped rather than aborting the whole load, since a single bad
// row from a hand-edited database file shouldn't take the resolver down.
func LoadGeoDB(path string) (*GeoDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geo database %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse geo database %s: %w", path, err)
	}

	db := &GeoDB{}
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "cidr" {
			continue // header row
		}
		if len(row) < 5 {
			continue
		}
		prefix, err := netip.ParsePrefix(row[0])
		if err != nil {
			continue
		}
		lat, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			continue
		}
		db.entries = append(db.entries, geoEntry{
			prefix:  prefix,
			lat:     lat,
			lon:     lon,
			region:  row[3],
			country: row[4],
		})
	}
	return db, nil
}

// Locate returns the most specific prefix match covering ip. ok is false
// when no entry covers ip, signaling the "geolocation DB missing
// coverage" failure mode (spec.md §4.3: skip ranking, return random
// healthy subset).
func (g *GeoDB) Locate(ip netip.Addr) (lat, lon float64, region, country string, ok bool) {
	if g == nil {
		return 0, 0, "", "", false
	}
	bestBits := -1
	var best geoEntry
	for _, e := range g.entries {
		if e.prefix.Contains(ip) && e.prefix.Bits() > bestBits {
			best = e
			bestBits = e.prefix.Bits()
		}
	}
	if bestBits < 0 {
		return 0, 0, "", "", false
	}
	return best.lat, best.lon, best.region, best.country, true
}
