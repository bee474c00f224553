// Package config loads Formation's node configuration from a YAML file
// with environment variable overrides, the way warren's cmd/warren flags
// and config.yaml loading work, adapted to spec.md §6's option table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/formthefog/formation-sub001/pkg/georesolver"
)

// Config mirrors spec.md §6's option table. YAML keys use the same
// snake_case names an operator would put in formation.yaml.
type Config struct {
	ListenAddr         string   `yaml:"listen_addr"`
	PeerListenAddr     string   `yaml:"peer_listen_addr"`
	HealthAddr         string   `yaml:"health_addr"`
	DNSAddr            string   `yaml:"dns_addr"`
	Peers              []string `yaml:"peers"`
	DataDir            string   `yaml:"data_dir"`
	OperatorKeyPath    string   `yaml:"operator_key_path"`
	OperatorPassphrase string   `yaml:"operator_passphrase"`
	GeoDatabase        string   `yaml:"geo_database"`
	DNSZones           []string `yaml:"dns_zones"`
	LogLevel           string   `yaml:"log_level"`
	LogJSON            bool     `yaml:"log_json"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	OpLogRetention    time.Duration `yaml:"op_log_retention"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	DistanceWeighting string        `yaml:"distance_weighting"`
	HealthCheckPort   int           `yaml:"health_check_port"`
}

// rawConfig mirrors Config but reads durations as strings, so YAML accepts
// either a Go duration string ("30s") or a bare integer of seconds, since
// operators hand-editing YAML tend to reach for plain numbers.
type rawConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`
	PeerListenAddr     string   `yaml:"peer_listen_addr"`
	HealthAddr         string   `yaml:"health_addr"`
	DNSAddr            string   `yaml:"dns_addr"`
	Peers              []string `yaml:"peers"`
	DataDir            string   `yaml:"data_dir"`
	OperatorKeyPath    string   `yaml:"operator_key_path"`
	OperatorPassphrase string   `yaml:"operator_passphrase"`
	GeoDatabase        string   `yaml:"geo_database"`
	DNSZones           []string `yaml:"dns_zones"`
	LogLevel           string   `yaml:"log_level"`
	LogJSON            bool     `yaml:"log_json"`

	HeartbeatInterval string `yaml:"heartbeat_interval"`
	OpLogRetention    string `yaml:"op_log_retention"`
	ReconcileInterval string `yaml:"reconcile_interval"`
	DistanceWeighting string `yaml:"distance_weighting"`
	HealthCheckPort   int    `yaml:"health_check_port"`
}

// Load reads path as YAML, then applies FORMATION_*-prefixed environment
// variable overrides on top of it (env wins, matching the 12-factor
// override model warren's flag defaults follow at the CLI layer).
func Load(path string) (Config, error) {
	var raw rawConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&raw)

	cfg := Config{
		ListenAddr:         raw.ListenAddr,
		PeerListenAddr:     raw.PeerListenAddr,
		HealthAddr:         raw.HealthAddr,
		DNSAddr:            raw.DNSAddr,
		Peers:              raw.Peers,
		DataDir:            raw.DataDir,
		OperatorKeyPath:    raw.OperatorKeyPath,
		OperatorPassphrase: raw.OperatorPassphrase,
		GeoDatabase:        raw.GeoDatabase,
		DNSZones:           raw.DNSZones,
		LogLevel:           raw.LogLevel,
		LogJSON:            raw.LogJSON,
		DistanceWeighting:  raw.DistanceWeighting,
		HealthCheckPort:    raw.HealthCheckPort,
	}

	var err error
	if cfg.HeartbeatInterval, err = parseDuration(raw.HeartbeatInterval); err != nil {
		return Config{}, fmt.Errorf("heartbeat_interval: %w", err)
	}
	if cfg.OpLogRetention, err = parseDuration(raw.OpLogRetention); err != nil {
		return Config{}, fmt.Errorf("op_log_retention: %w", err)
	}
	if cfg.ReconcileInterval, err = parseDuration(raw.ReconcileInterval); err != nil {
		return Config{}, fmt.Errorf("reconcile_interval: %w", err)
	}

	return cfg.withDefaults(), nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a duration or integer seconds: %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:7880"
	}
	if c.PeerListenAddr == "" {
		c.PeerListenAddr = "0.0.0.0:7882"
	}
	if c.HealthAddr == "" {
		c.HealthAddr = "127.0.0.1:7881"
	}
	if c.DNSAddr == "" {
		c.DNSAddr = "0.0.0.0:53"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/formation"
	}
	if c.OperatorKeyPath == "" {
		c.OperatorKeyPath = c.DataDir + "/operator.key"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.OpLogRetention <= 0 {
		c.OpLogRetention = time.Hour
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 15 * time.Second
	}
	if c.DistanceWeighting == "" {
		c.DistanceWeighting = string(georesolver.WeightingLinear)
	}
	if c.HealthCheckPort <= 0 {
		c.HealthCheckPort = 80
	}
	return c
}

// applyEnvOverrides copies each set FORMATION_* variable into the
// rawConfig field it feeds; string fields are set directly, list fields
// are comma-split.
func applyEnvOverrides(raw *rawConfig) {
	if v, ok := os.LookupEnv("FORMATION_LISTEN_ADDR"); ok {
		raw.ListenAddr = v
	}
	if v, ok := os.LookupEnv("FORMATION_PEER_LISTEN_ADDR"); ok {
		raw.PeerListenAddr = v
	}
	if v, ok := os.LookupEnv("FORMATION_HEALTH_ADDR"); ok {
		raw.HealthAddr = v
	}
	if v, ok := os.LookupEnv("FORMATION_DNS_ADDR"); ok {
		raw.DNSAddr = v
	}
	if v, ok := os.LookupEnv("FORMATION_PEERS"); ok {
		raw.Peers = splitNonEmpty(v)
	}
	if v, ok := os.LookupEnv("FORMATION_DATA_DIR"); ok {
		raw.DataDir = v
	}
	if v, ok := os.LookupEnv("FORMATION_OPERATOR_KEY_PATH"); ok {
		raw.OperatorKeyPath = v
	}
	if v, ok := os.LookupEnv("FORMATION_OPERATOR_PASSPHRASE"); ok {
		raw.OperatorPassphrase = v
	}
	if v, ok := os.LookupEnv("FORMATION_GEO_DATABASE"); ok {
		raw.GeoDatabase = v
	}
	if v, ok := os.LookupEnv("FORMATION_DNS_ZONES"); ok {
		raw.DNSZones = splitNonEmpty(v)
	}
	if v, ok := os.LookupEnv("FORMATION_LOG_LEVEL"); ok {
		raw.LogLevel = v
	}
	if v, ok := os.LookupEnv("FORMATION_LOG_JSON"); ok {
		raw.LogJSON = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("FORMATION_HEARTBEAT_INTERVAL"); ok {
		raw.HeartbeatInterval = v
	}
	if v, ok := os.LookupEnv("FORMATION_OP_LOG_RETENTION"); ok {
		raw.OpLogRetention = v
	}
	if v, ok := os.LookupEnv("FORMATION_RECONCILE_INTERVAL"); ok {
		raw.ReconcileInterval = v
	}
	if v, ok := os.LookupEnv("FORMATION_DISTANCE_WEIGHTING"); ok {
		raw.DistanceWeighting = v
	}
	if v, ok := os.LookupEnv("FORMATION_HEALTH_CHECK_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			raw.HealthCheckPort = port
		}
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
