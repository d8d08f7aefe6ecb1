package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Detection.IPThreshold != 5 || cfg.Detection.IPWindow != 2*time.Minute {
		t.Fatalf("ip detection defaults: %+v", cfg.Detection)
	}
	if cfg.Detection.UserThreshold != 5 || cfg.Detection.UserWindow != 10*time.Minute {
		t.Fatalf("user detection defaults: %+v", cfg.Detection)
	}
	if cfg.Anomaly.Contamination != 0.05 || cfg.Anomaly.Seed != 42 {
		t.Fatalf("anomaly defaults: %+v", cfg.Anomaly)
	}
	if cfg.Input.Format != "xml" {
		t.Fatalf("input defaults: %+v", cfg.Input)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Input.Format = "csv" }},
		{"zero ip threshold", func(c *Config) { c.Detection.IPThreshold = 0 }},
		{"negative ip window", func(c *Config) { c.Detection.IPWindow = -time.Second }},
		{"zero user threshold", func(c *Config) { c.Detection.UserThreshold = 0 }},
		{"zero user window", func(c *Config) { c.Detection.UserWindow = 0 }},
		{"zero horizon", func(c *Config) { c.Anomaly.Horizon = 0 }},
		{"contamination too high", func(c *Config) { c.Anomaly.Contamination = 0.6 }},
		{"api enabled without addr", func(c *Config) { c.API.Enabled = true; c.API.Addr = "" }},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "alerts" }},
		{"kafka enabled without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = []string{"localhost:9092"} }},
		{"bad storage driver", func(c *Config) { c.Storage.Enabled = true; c.Storage.Driver = "mysql" }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authwatch.yml")
	content := `log_level: debug
input:
  path: /var/log/exports
  format: jsonl
detection:
  ip_threshold: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Input.Path != "/var/log/exports" || cfg.Input.Format != "jsonl" {
		t.Fatalf("loaded values: %+v", cfg)
	}
	if cfg.Detection.IPThreshold != 3 {
		t.Fatalf("override not applied: %+v", cfg.Detection)
	}
	// Unset fields fall back to defaults.
	if cfg.Detection.UserThreshold != 5 || cfg.Anomaly.Trees != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authwatch.json")
	content := `{"log_level":"warn","input":{"path":"exports","format":"xml"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Input.Path != "exports" {
		t.Fatalf("loaded values: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("input:\n  format: csv\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error on load")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yml")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty config file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Detection.IPWindow = 90 * time.Second

	for _, name := range []string{"roundtrip.yml", "roundtrip.json"} {
		path := filepath.Join(dir, name)
		if err := Save(path, cfg); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if got.LogLevel != "debug" || got.Detection.IPWindow != 90*time.Second {
			t.Fatalf("%s roundtrip: %+v", name, got)
		}
	}
}

func TestManagerUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authwatch.yml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	next := *m.Get()
	next.Detection.IPThreshold = 7
	if err := m.Update(&next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Get().Detection.IPThreshold != 7 {
		t.Fatalf("update not visible: %+v", m.Get().Detection)
	}
	// Update persists: a fresh load sees the new value.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Detection.IPThreshold != 7 {
		t.Fatalf("update not persisted: %+v", reloaded.Detection)
	}

	bad := *m.Get()
	bad.Detection.IPThreshold = -1
	if err := m.Update(&bad); err == nil {
		t.Fatalf("expected validation error from update")
	}
	if m.Get().Detection.IPThreshold != 7 {
		t.Fatalf("failed update must not replace config")
	}
}

func TestManagerSetDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authwatch.yml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	next := *m.Get()
	next.API.Addr = ":9999"
	m.Set(&next)
	if m.Get().API.Addr != ":9999" {
		t.Fatalf("set not visible: %+v", m.Get().API)
	}
	onDisk, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if onDisk.API.Addr != ":8080" {
		t.Fatalf("set must not write the file: %+v", onDisk.API)
	}
}
