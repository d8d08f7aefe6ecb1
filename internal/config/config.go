package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Input     InputConfig     `json:"input" yaml:"input"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Anomaly   AnomalyConfig   `json:"anomaly" yaml:"anomaly"`
	Reports   ReportsConfig   `json:"reports" yaml:"reports"`
	Results   ResultsConfig   `json:"results" yaml:"results"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Kafka     KafkaConfig     `json:"kafka" yaml:"kafka"`
}

type InputConfig struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"`
}

type DetectionConfig struct {
	IPThreshold   int           `json:"ip_threshold" yaml:"ip_threshold"`
	IPWindow      time.Duration `json:"ip_window" yaml:"ip_window"`
	UserThreshold int           `json:"user_threshold" yaml:"user_threshold"`
	UserWindow    time.Duration `json:"user_window" yaml:"user_window"`
}

type AnomalyConfig struct {
	Horizon       time.Duration `json:"horizon" yaml:"horizon"`
	Contamination float64       `json:"contamination" yaml:"contamination"`
	Trees         int           `json:"trees" yaml:"trees"`
	SampleSize    int           `json:"sample_size" yaml:"sample_size"`
	Seed          int64         `json:"seed" yaml:"seed"`
}

type ReportsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
	Geo     bool   `json:"geo" yaml:"geo"`
}

type ResultsConfig struct {
	RunHistory int `json:"run_history" yaml:"run_history"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Input: InputConfig{
			Path:   "data/sample_logs",
			Format: "xml",
		},
		Detection: DetectionConfig{
			IPThreshold:   5,
			IPWindow:      2 * time.Minute,
			UserThreshold: 5,
			UserWindow:    10 * time.Minute,
		},
		Anomaly: AnomalyConfig{
			Horizon:       60 * time.Minute,
			Contamination: 0.05,
			Trees:         100,
			SampleSize:    256,
			Seed:          42,
		},
		Reports: ReportsConfig{Enabled: true, Dir: "reports", Geo: true},
		Results: ResultsConfig{RunHistory: 50},
		API:     APIConfig{Enabled: true, Addr: ":8080"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:authwatch.db?_pragma=busy_timeout(5000)"},
		Kafka:   KafkaConfig{Enabled: false},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Input.Format == "" {
		cfg.Input.Format = "xml"
	}
	if cfg.Detection.IPThreshold == 0 {
		cfg.Detection.IPThreshold = 5
	}
	if cfg.Detection.IPWindow == 0 {
		cfg.Detection.IPWindow = 2 * time.Minute
	}
	if cfg.Detection.UserThreshold == 0 {
		cfg.Detection.UserThreshold = 5
	}
	if cfg.Detection.UserWindow == 0 {
		cfg.Detection.UserWindow = 10 * time.Minute
	}
	if cfg.Anomaly.Horizon == 0 {
		cfg.Anomaly.Horizon = 60 * time.Minute
	}
	if cfg.Anomaly.Contamination == 0 {
		cfg.Anomaly.Contamination = 0.05
	}
	if cfg.Anomaly.Trees <= 0 {
		cfg.Anomaly.Trees = 100
	}
	if cfg.Anomaly.SampleSize <= 0 {
		cfg.Anomaly.SampleSize = 256
	}
	if cfg.Anomaly.Seed == 0 {
		cfg.Anomaly.Seed = 42
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "reports"
	}
	if cfg.Results.RunHistory <= 0 {
		cfg.Results.RunHistory = 50
	}
}

func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Input.Format) {
	case "xml", "jsonl":
	default:
		return fmt.Errorf("input.format must be xml or jsonl, got %q", cfg.Input.Format)
	}
	if cfg.Detection.IPThreshold <= 0 {
		return errors.New("detection.ip_threshold must be > 0")
	}
	if cfg.Detection.UserThreshold <= 0 {
		return errors.New("detection.user_threshold must be > 0")
	}
	if cfg.Detection.IPWindow <= 0 {
		return errors.New("detection.ip_window must be a positive duration")
	}
	if cfg.Detection.UserWindow <= 0 {
		return errors.New("detection.user_window must be a positive duration")
	}
	if cfg.Anomaly.Horizon <= 0 {
		return errors.New("anomaly.horizon must be a positive duration")
	}
	if cfg.Anomaly.Contamination <= 0 || cfg.Anomaly.Contamination > 0.5 {
		return errors.New("anomaly.contamination must be in (0, 0.5]")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
			return errors.New("kafka requires brokers and topic when enabled")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

// Set replaces the in-memory config without touching the file, for
// command-line overrides.
func (m *Manager) Set(cfg *Config) {
	if cfg == nil {
		return
	}
	m.cfg.Store(cfg)
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
