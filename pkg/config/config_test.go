package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWhenFileOmitsFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formation.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /tmp/formation\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/tmp/formation" {
		t.Fatalf("DataDir = %q, want /tmp/formation", cfg.DataDir)
	}
	if cfg.ListenAddr == "" || cfg.PeerListenAddr == "" || cfg.HealthAddr == "" || cfg.DNSAddr == "" {
		t.Fatal("Load() left an address default unset")
	}
	if cfg.OperatorKeyPath != "/tmp/formation/operator.key" {
		t.Fatalf("OperatorKeyPath = %q, want derived from data_dir", cfg.OperatorKeyPath)
	}
	if cfg.HeartbeatInterval <= 0 || cfg.OpLogRetention <= 0 || cfg.ReconcileInterval <= 0 {
		t.Fatal("Load() left a duration default unset")
	}
}

func TestLoadParsesDurationsAsSecondsOrGoDurationStrings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formation.yaml")
	yaml := "heartbeat_interval: 45\nop_log_retention: 2h\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HeartbeatInterval != 45*time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 45s", cfg.HeartbeatInterval)
	}
	if cfg.OpLogRetention != 2*time.Hour {
		t.Fatalf("OpLogRetention = %v, want 2h", cfg.OpLogRetention)
	}
}

func TestLoadWithNoPathStillReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/var/lib/formation" {
		t.Fatalf("DataDir = %q, want default", cfg.DataDir)
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formation.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: 0.0.0.0:1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("FORMATION_LISTEN_ADDR", "0.0.0.0:2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:2" {
		t.Fatalf("ListenAddr = %q, want env override 0.0.0.0:2", cfg.ListenAddr)
	}
}

func TestEnvOverridePeerListenAddr(t *testing.T) {
	t.Setenv("FORMATION_PEER_LISTEN_ADDR", "0.0.0.0:9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PeerListenAddr != "0.0.0.0:9999" {
		t.Fatalf("PeerListenAddr = %q, want env override 0.0.0.0:9999", cfg.PeerListenAddr)
	}
}

func TestEnvOverrideSplitsCommaListsForPeersAndZones(t *testing.T) {
	t.Setenv("FORMATION_PEERS", "10.0.0.1:7880, 10.0.0.2:7880")
	t.Setenv("FORMATION_DNS_ZONES", "example.com, example.net")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[0] != "10.0.0.1:7880" || cfg.Peers[1] != "10.0.0.2:7880" {
		t.Fatalf("Peers = %v, want two trimmed entries", cfg.Peers)
	}
	if len(cfg.DNSZones) != 2 || cfg.DNSZones[0] != "example.com" {
		t.Fatalf("DNSZones = %v, want two trimmed entries", cfg.DNSZones)
	}
}
