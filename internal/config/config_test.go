// ABOUTME: Tests for lift configuration management.
// ABOUTME: Covers load, save, defaults, env overrides, validation, and factories.
package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestConfigHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	dir := filepath.Join(home, "lift")
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetStore(); got != "charm" {
		t.Errorf("GetStore() = %q, want charm", got)
	}
	if got := cfg.GetBackend(); got != "sqlite" {
		t.Errorf("GetBackend() = %q, want sqlite", got)
	}
	if cfg.GetDataDir() == "" {
		t.Error("GetDataDir() returned empty string")
	}
	if got, want := cfg.GetPlansDir(), filepath.Join(cfg.GetDataDir(), "plans"); got != want {
		t.Errorf("GetPlansDir() = %q, want %q", got, want)
	}
	if cfg.GetBetweenExerciseRest() != 0 || cfg.GetSnapshotMaxAge() != 0 {
		t.Error("Expected zero durations so engine defaults apply")
	}
}

func TestDurations(t *testing.T) {
	cfg := &Config{BetweenExerciseRestSeconds: 150, SnapshotMaxAgeHours: 24}
	cfg.Telemetry.IntervalSeconds = 10
	if got := cfg.GetBetweenExerciseRest(); got != 150*time.Second {
		t.Errorf("GetBetweenExerciseRest() = %v", got)
	}
	if got := cfg.GetSnapshotMaxAge(); got != 24*time.Hour {
		t.Errorf("GetSnapshotMaxAge() = %v", got)
	}
	if got := cfg.GetFlushInterval(); got != 10*time.Second {
		t.Errorf("GetFlushInterval() = %v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/tmp/foo", "/tmp/foo"},
		{"~", home},
		{"~/data/lift", filepath.Join(home, "data/lift")},
		{"data/lift", "data/lift"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	cfg := &Config{DataDir: "~/lift-data"}
	if got, want := cfg.GetDataDir(), filepath.Join(home, "lift-data"); got != want {
		t.Errorf("GetDataDir() = %q, want %q", got, want)
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	setupTestConfigHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with no config file should not error: %v", err)
	}
	if cfg.Store != "" || cfg.Backend != "" {
		t.Errorf("Expected empty config, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	setupTestConfigHome(t)

	off := false
	cfg := &Config{
		Store:                      "badger",
		DataDir:                    "/tmp/lift-data",
		BetweenExerciseRestSeconds: 90,
		Charm:                      CharmConfig{Host: "charm.example.com", AutoSync: &off},
		Telemetry:                  TelemetryConfig{Endpoint: "http://localhost:8080", Threshold: 5},
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Store != "badger" || loaded.DataDir != "/tmp/lift-data" {
		t.Errorf("Round trip mismatch: %+v", loaded)
	}
	if loaded.Charm.AutoSync == nil || *loaded.Charm.AutoSync {
		t.Error("Expected auto_sync false to survive the round trip")
	}
	if loaded.Telemetry.Threshold != 5 || loaded.BetweenExerciseRestSeconds != 90 {
		t.Errorf("Nested values lost: %+v", loaded)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nonexistent")
	t.Setenv("XDG_CONFIG_HOME", home)

	if err := (&Config{}).Save(); err != nil {
		t.Fatalf("Save() should create directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "lift", "config.yaml")); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	home := setupTestConfigHome(t)
	writeConfig(t, home, "store: [unterminated")

	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid YAML config")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown store", "store: redis\n"},
		{"unknown backend", "backend: mysql\n"},
		{"postgres without url", "backend: postgres\n"},
		{"negative rest", "between_exercise_rest_seconds: -5\n"},
		{"negative threshold", "telemetry:\n  threshold: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := setupTestConfigHome(t)
			writeConfig(t, home, tt.body)
			if _, err := Load(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	home := setupTestConfigHome(t)
	writeConfig(t, home, "store: badger\nbackend: sqlite\n")

	t.Setenv("LIFT_STORE", "memory")
	t.Setenv("LIFT_BACKEND", "postgres")
	t.Setenv("LIFT_DATABASE_URL", "postgres://lift@localhost/lift")
	t.Setenv("LIFT_TELEMETRY_ENDPOINT", "http://collector:8080")
	t.Setenv("LIFT_BETWEEN_EXERCISE_REST_SECONDS", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store != "memory" || cfg.Backend != "postgres" {
		t.Errorf("Env overrides not applied: %+v", cfg)
	}
	if cfg.Telemetry.Endpoint != "http://collector:8080" {
		t.Errorf("Telemetry.Endpoint = %q", cfg.Telemetry.Endpoint)
	}
	if cfg.BetweenExerciseRestSeconds != 75 {
		t.Errorf("BetweenExerciseRestSeconds = %d", cfg.BetweenExerciseRestSeconds)
	}
}

func TestGetConfigPath(t *testing.T) {
	home := setupTestConfigHome(t)
	if got, want := GetConfigPath(), filepath.Join(home, "lift", "config.yaml"); got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}
}

func TestEnsureDeviceID(t *testing.T) {
	setupTestConfigHome(t)

	cfg := &Config{}
	id, err := cfg.EnsureDeviceID()
	if err != nil {
		t.Fatalf("EnsureDeviceID failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("Expected a 26 character ULID, got %q", id)
	}

	again, _ := cfg.EnsureDeviceID()
	if again != id {
		t.Error("Device id must be stable once generated")
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.DeviceID != id {
		t.Errorf("Device id not saved: %q", loaded.DeviceID)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	mem, err := (&Config{Store: "memory"}).OpenStore()
	if err != nil {
		t.Fatalf("OpenStore(memory) failed: %v", err)
	}
	mem.Close()

	b, err := (&Config{Store: "badger", DataDir: dir}).OpenStore()
	if err != nil {
		t.Fatalf("OpenStore(badger) failed: %v", err)
	}
	defer b.Close()
	if err := b.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "kv")); err != nil {
		t.Errorf("Expected badger directory: %v", err)
	}

	if _, err := (&Config{Store: "redis"}).OpenStore(); err == nil {
		t.Error("Expected error for unknown store")
	}
}

func TestOpenRepository(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := (&Config{DataDir: dir}).OpenRepository(ctx)
	if err != nil {
		t.Fatalf("OpenRepository() with default backend failed: %v", err)
	}
	defer repo.Close()
	if _, err := os.Stat(filepath.Join(dir, "lift.db")); err != nil {
		t.Error("Expected lift.db to be created")
	}

	if _, err := (&Config{Backend: "postgres"}).OpenRepository(ctx); err == nil {
		t.Error("Expected error for postgres without a URL")
	}
	if _, err := (&Config{Backend: "invalid"}).OpenRepository(ctx); err == nil {
		t.Error("Expected error for invalid backend")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := (&Config{}).Logger(&buf, false)
	log.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered by default, got %q", buf.String())
	}

	log = (&Config{LogLevel: "info"}).Logger(&buf, false)
	log.Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Error("Expected info output at info level")
	}

	buf.Reset()
	log = (&Config{}).Logger(&buf, true)
	log.Debug("deep")
	if !bytes.Contains(buf.Bytes(), []byte("deep")) {
		t.Error("Expected verbose to enable debug")
	}
}

func TestOpenPlans(t *testing.T) {
	dir := t.TempDir()
	p := (&Config{PlansDir: dir}).OpenPlans()
	all, err := p.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no plans, got %d", len(all))
	}
}
