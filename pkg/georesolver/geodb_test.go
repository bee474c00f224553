package georesolver

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
)

func writeGeoDB(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geo.csv")
	if err := os.WriteFile(path, []byte(rows), 0o644); err != nil {
		t.Fatalf("write geo db fixture: %v", err)
	}
	return path
}

func TestLoadGeoDBParsesRows(t *testing.T) {
	path := writeGeoDB(t, "cidr,lat,lon,region,country\n203.0.113.0/24,37.7749,-122.4194,us-west,US\n")
	db, err := LoadGeoDB(path)
	if err != nil {
		t.Fatalf("LoadGeoDB() error = %v", err)
	}
	lat, lon, region, country, ok := db.Locate(netip.MustParseAddr("203.0.113.5"))
	if !ok {
		t.Fatalf("Locate() ok = false, want true")
	}
	if lat != 37.7749 || lon != -122.4194 || region != "us-west" || country != "US" {
		t.Fatalf("Locate() = (%f,%f,%s,%s), want (37.7749,-122.4194,us-west,US)", lat, lon, region, country)
	}
}

func TestLoadGeoDBSkipsMalformedRows(t *testing.T) {
	path := writeGeoDB(t, "cidr,lat,lon,region,country\nnot-a-cidr,1,2,x,y\n203.0.113.0/24,1,2,us-west,US\nincomplete,row\n")
	db, err := LoadGeoDB(path)
	if err != nil {
		t.Fatalf("LoadGeoDB() error = %v", err)
	}
	if len(db.entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (only the valid row)", len(db.entries))
	}
}

func TestLocatePicksMostSpecificPrefix(t *testing.T) {
	path := writeGeoDB(t, "cidr,lat,lon,region,country\n203.0.0.0/16,1,1,broad,US\n203.0.113.0/24,2,2,narrow,US\n")
	db, err := LoadGeoDB(path)
	if err != nil {
		t.Fatalf("LoadGeoDB() error = %v", err)
	}
	lat, _, region, _, ok := db.Locate(netip.MustParseAddr("203.0.113.5"))
	if !ok || region != "narrow" || lat != 2 {
		t.Fatalf("Locate() = (%f,_,%s), want the /24 (narrow) entry to win over the /16", lat, region)
	}
}

func TestLocateReturnsFalseForUncoveredAddress(t *testing.T) {
	path := writeGeoDB(t, "cidr,lat,lon,region,country\n203.0.113.0/24,1,1,us,US\n")
	db, err := LoadGeoDB(path)
	if err != nil {
		t.Fatalf("LoadGeoDB() error = %v", err)
	}
	if _, _, _, _, ok := db.Locate(netip.MustParseAddr("198.51.100.1")); ok {
		t.Fatalf("Locate() ok = true for an address outside every prefix, want false")
	}
}

func TestLocateOnNilGeoDBReturnsFalse(t *testing.T) {
	var db *GeoDB
	if _, _, _, _, ok := db.Locate(netip.MustParseAddr("203.0.113.5")); ok {
		t.Fatalf("Locate() on nil *GeoDB ok = true, want false")
	}
}
