// ABOUTME: Lift configuration management with store and backend selection.
// ABOUTME: YAML file plus LIFT_* environment overrides and factories for every backend.

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/lift/internal/charm"
	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/plans"
	"github.com/harperreed/lift/internal/storage"
)

// Config stores lift configuration.
type Config struct {
	// Store selects the durable local store: "charm" (default), "badger", or "memory".
	Store string `yaml:"store,omitempty"`

	// Backend selects remote persistence: "sqlite" (default) or "postgres".
	Backend string `yaml:"backend,omitempty"`

	// DataDir is the root directory for local data. SQLite puts lift.db here,
	// Badger puts its files under kv/. Supports ~ expansion.
	DataDir string `yaml:"data_dir,omitempty"`

	// PlansDir holds one YAML file per workout plan. Defaults to DataDir/plans.
	PlansDir string `yaml:"plans_dir,omitempty"`

	// DatabaseURL is the Postgres DSN when Backend is "postgres".
	DatabaseURL string `yaml:"database_url,omitempty"`

	Charm     CharmConfig     `yaml:"charm,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	Collector CollectorConfig `yaml:"collector,omitempty"`

	// BetweenExerciseRestSeconds is the rest after the last set of an exercise.
	BetweenExerciseRestSeconds int `yaml:"between_exercise_rest_seconds,omitempty"`

	// SnapshotMaxAgeHours bounds how old a snapshot may be and still be resumed.
	SnapshotMaxAgeHours int `yaml:"snapshot_max_age_hours,omitempty"`

	// DeviceID correlates telemetry from this install. Generated on first use.
	DeviceID string `yaml:"device_id,omitempty"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// CharmConfig configures the Charm KV store.
type CharmConfig struct {
	Host     string `yaml:"host,omitempty"`
	DBName   string `yaml:"db_name,omitempty"`
	AutoSync *bool  `yaml:"auto_sync,omitempty"`
}

// TelemetryConfig configures event delivery.
type TelemetryConfig struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	APIKey          string `yaml:"api_key,omitempty"`
	Threshold       int    `yaml:"threshold,omitempty"`
	IntervalSeconds int    `yaml:"interval_seconds,omitempty"`
	LogMax          int    `yaml:"log_max,omitempty"`
}

// CollectorConfig configures the telemetry collector server.
type CollectorConfig struct {
	Addr   string `yaml:"addr,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
}

// GetStore returns the configured local store, defaulting to "charm".
func (c *Config) GetStore() string {
	if c.Store == "" {
		return "charm"
	}
	return c.Store
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetPlansDir returns the plan directory, defaulting to DataDir/plans.
func (c *Config) GetPlansDir() string {
	if c.PlansDir == "" {
		return filepath.Join(c.GetDataDir(), "plans")
	}
	return ExpandPath(c.PlansDir)
}

// GetBetweenExerciseRest returns the between-exercise rest; zero means the engine default.
func (c *Config) GetBetweenExerciseRest() time.Duration {
	return time.Duration(c.BetweenExerciseRestSeconds) * time.Second
}

// GetSnapshotMaxAge returns the snapshot age limit; zero means the engine default.
func (c *Config) GetSnapshotMaxAge() time.Duration {
	return time.Duration(c.SnapshotMaxAgeHours) * time.Hour
}

// GetFlushInterval returns the periodic telemetry flush interval.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Telemetry.IntervalSeconds) * time.Second
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStore creates the durable local store for the configured backend.
func (c *Config) OpenStore() (kv.Store, error) {
	switch c.GetStore() {
	case "charm":
		autoSync := true
		if c.Charm.AutoSync != nil {
			autoSync = *c.Charm.AutoSync
		}
		client, err := charm.Open(charm.Options{
			DBName:   c.Charm.DBName,
			Host:     c.Charm.Host,
			AutoSync: autoSync,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "badger":
		b, err := kv.OpenBadger(filepath.Join(c.GetDataDir(), "kv"))
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return kv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store: %q", c.Store)
	}
}

// OpenRepository creates a Repository implementation based on the configured backend.
func (c *Config) OpenRepository(ctx context.Context) (storage.Repository, error) {
	switch c.GetBackend() {
	case "sqlite":
		db, err := storage.OpenSQLite(filepath.Join(c.GetDataDir(), "lift.db"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("database_url is required for the postgres backend")
		}
		db, err := storage.OpenPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", c.Backend)
	}
}

// OpenPlans returns the plan provider.
func (c *Config) OpenPlans() plans.Provider {
	return plans.NewDir(c.GetPlansDir())
}

// Logger builds a text logger writing to w at the configured level.
// verbose forces debug.
func (c *Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// EnsureDeviceID generates and saves a device id if none is set.
func (c *Config) EnsureDeviceID() (string, error) {
	if c.DeviceID != "" {
		return c.DeviceID, nil
	}
	c.DeviceID = GenerateDeviceID()
	return c.DeviceID, c.Save()
}

// GenerateDeviceID creates a new unique device ID.
func GenerateDeviceID() string {
	return ulid.Make().String()
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "lift", "config.yaml")
}

// Load reads config from disk, then applies environment variable overrides.
// A missing file yields defaults. Env vars use the prefix LIFT_:
//
//	LIFT_STORE, LIFT_BACKEND, LIFT_DATA_DIR, LIFT_PLANS_DIR, LIFT_DATABASE_URL,
//	LIFT_CHARM_HOST, LIFT_TELEMETRY_ENDPOINT, LIFT_TELEMETRY_API_KEY,
//	LIFT_COLLECTOR_ADDR, LIFT_COLLECTOR_API_KEY,
//	LIFT_BETWEEN_EXERCISE_REST_SECONDS, LIFT_LOG_LEVEL
func Load() (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(GetConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"LIFT_STORE":              &cfg.Store,
		"LIFT_BACKEND":            &cfg.Backend,
		"LIFT_DATA_DIR":           &cfg.DataDir,
		"LIFT_PLANS_DIR":          &cfg.PlansDir,
		"LIFT_DATABASE_URL":       &cfg.DatabaseURL,
		"LIFT_CHARM_HOST":         &cfg.Charm.Host,
		"LIFT_TELEMETRY_ENDPOINT": &cfg.Telemetry.Endpoint,
		"LIFT_TELEMETRY_API_KEY":  &cfg.Telemetry.APIKey,
		"LIFT_COLLECTOR_ADDR":     &cfg.Collector.Addr,
		"LIFT_COLLECTOR_API_KEY":  &cfg.Collector.APIKey,
		"LIFT_LOG_LEVEL":          &cfg.LogLevel,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("LIFT_BETWEEN_EXERCISE_REST_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BetweenExerciseRestSeconds = n
		}
	}
}

func (c *Config) validate() error {
	switch c.GetStore() {
	case "charm", "badger", "memory":
	default:
		return fmt.Errorf("store must be charm, badger, or memory, got %q", c.Store)
	}
	switch c.GetBackend() {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("backend must be sqlite or postgres, got %q", c.Backend)
	}
	if c.BetweenExerciseRestSeconds < 0 {
		return fmt.Errorf("between_exercise_rest_seconds must not be negative")
	}
	if c.SnapshotMaxAgeHours < 0 {
		return fmt.Errorf("snapshot_max_age_hours must not be negative")
	}
	if c.Telemetry.Threshold < 0 || c.Telemetry.IntervalSeconds < 0 {
		return fmt.Errorf("telemetry threshold and interval must not be negative")
	}
	return nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
