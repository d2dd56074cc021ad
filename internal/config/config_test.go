package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.HistorySize != 100 || cfg.HistoryReplay != 20 {
		t.Errorf("expected history 100/20, got %d/%d", cfg.HistorySize, cfg.HistoryReplay)
	}
	if time.Duration(cfg.TypingTTL) != 3*time.Second {
		t.Errorf("expected typing TTL 3s, got %v", time.Duration(cfg.TypingTTL))
	}
	if len(cfg.DefaultRooms) != 3 || cfg.DefaultRooms[0].ID != "general" {
		t.Errorf("unexpected default rooms %v", cfg.DefaultRooms)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: ":9090"
history_size: 50
typing_ttl: 5s
default_rooms:
  - id: lobby
    name: Lobby
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.ListenAddr)
	}
	if cfg.HistorySize != 50 {
		t.Errorf("expected history size 50, got %d", cfg.HistorySize)
	}
	if time.Duration(cfg.TypingTTL) != 5*time.Second {
		t.Errorf("expected typing TTL 5s, got %v", time.Duration(cfg.TypingTTL))
	}
	if len(cfg.DefaultRooms) != 1 || cfg.DefaultRooms[0].ID != "lobby" {
		t.Errorf("unexpected rooms %v", cfg.DefaultRooms)
	}
	// Unset values still fall back to defaults.
	if cfg.HistoryReplay != 20 {
		t.Errorf("expected replay default 20, got %d", cfg.HistoryReplay)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("expected env listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected env redis addr, got %q", cfg.RedisAddr)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("typing_ttl: banana\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
