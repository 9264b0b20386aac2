package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all botforge server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr  string `json:"listen_addr"`
	DBPath      string `json:"db_path"`
	LogLevel    string `json:"log_level"`
	Engine      string `json:"engine"`       // condition engine: "expr" or "cel"
	RedisAddr   string `json:"redis_addr"`   // empty: in-memory snapshots
	RedisDB     int    `json:"redis_db"`
	SnapshotTTL string `json:"snapshot_ttl"` // e.g. "24h"; empty: no expiry
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     "file:" + filepath.Join(botforgeDir(), "botforge.db"),
		LogLevel:   "info",
		Engine:     "expr",
	}
}

func botforgeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botforge"
	}
	return filepath.Join(home, ".botforge")
}

func settingsPath() string {
	return filepath.Join(botforgeDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("BOTFORGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BOTFORGE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BOTFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOTFORGE_ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv("BOTFORGE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("BOTFORGE_SNAPSHOT_TTL"); v != "" {
		cfg.SnapshotTTL = v
	}

	return cfg
}

// snapshotTTL parses the configured TTL, defaulting to no expiry.
func (c Config) snapshotTTL() time.Duration {
	if c.SnapshotTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.SnapshotTTL)
	if err != nil {
		return 0
	}
	return d
}
