package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Addr != def.Addr || cfg.PollInterval != def.PollInterval {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Addr = "127.0.0.1:9999"
	cfg.RetentionDays = 7
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Setenv("CHRONICLE_ADDR", "127.0.0.1:8888")
	t.Setenv("CHRONICLE_POLL_INTERVAL", "250ms")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Addr != "127.0.0.1:8888" {
		t.Fatalf("env should override file: addr = %q", got.Addr)
	}
	if got.RetentionDays != 7 {
		t.Fatalf("file value lost: retention = %d", got.RetentionDays)
	}
	if got.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval = %v", got.PollInterval)
	}
}

func TestLoadBadEnvDuration(t *testing.T) {
	t.Setenv("CHRONICLE_POLL_INTERVAL", "fast")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestSaveCreatesDirWithTightMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.AdminKey = "secret"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
