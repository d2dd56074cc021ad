// Package config loads server configuration from an optional YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "3s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// RoomConfig describes a room created at startup.
type RoomConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Config holds the server configuration.
type Config struct {
	ListenAddr    string       `yaml:"listen_addr"`
	RedisAddr     string       `yaml:"redis_addr"`
	HistorySize   int          `yaml:"history_size"`
	HistoryReplay int          `yaml:"history_replay"`
	TypingTTL     Duration     `yaml:"typing_ttl"`
	DefaultRooms  []RoomConfig `yaml:"default_rooms"`
	UpgradeLimit  int          `yaml:"upgrade_limit"`
	UpgradeWindow Duration     `yaml:"upgrade_window"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		HistorySize:   100,
		HistoryReplay: 20,
		TypingTTL:     Duration(3 * time.Second),
		DefaultRooms: []RoomConfig{
			{ID: "general", Name: "General"},
			{ID: "random", Name: "Random"},
			{ID: "tech", Name: "Tech Talk"},
		},
		UpgradeLimit:  20,
		UpgradeWindow: Duration(time.Minute),
	}
}

// Load reads the YAML file at path (skipped when empty), applies
// environment overrides, and fills zero values with defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	return sanitize(cfg), nil
}

// sanitize fills zero values with defaults.
func sanitize(cfg Config) Config {
	def := Default()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.HistoryReplay <= 0 {
		cfg.HistoryReplay = def.HistoryReplay
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = def.TypingTTL
	}
	if len(cfg.DefaultRooms) == 0 {
		cfg.DefaultRooms = def.DefaultRooms
	}
	if cfg.UpgradeLimit <= 0 {
		cfg.UpgradeLimit = def.UpgradeLimit
	}
	if cfg.UpgradeWindow <= 0 {
		cfg.UpgradeWindow = def.UpgradeWindow
	}
	return cfg
}
