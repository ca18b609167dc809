// ABOUTME: Tests for the YAML plan directory and the in-memory provider.
// ABOUTME: Covers id defaulting, validation errors, sorting, and lookups.
package plans

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harperreed/lift/internal/models"
)

const pushYAML = `id: push-a
name: Push A
day: 1
between_exercise_rest_seconds: 180
exercises:
  - id: bench
    name: Bench Press
    sets: 3
    reps: 8
    load: 60
    rest_seconds: 90
  - id: ohp
    name: Overhead Press
    sets: 2
    reps: 10
    load: 40
`

const pullYAML = `name: Pull
exercises:
  - id: row
    name: Barbell Row
    sets: 3
    reps: 10
`

func setupTestDir(t *testing.T, files map[string]string) *Dir {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	return NewDir(dir)
}

func TestDirList(t *testing.T) {
	d := setupTestDir(t, map[string]string{
		"push.yaml":  pushYAML,
		"pull-b.yml": pullYAML,
		"README.md":  "# not a plan",
	})

	all, err := d.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 plans, got %d", len(all))
	}
	if all[0].ID != "pull-b" || all[1].ID != "push-a" {
		t.Errorf("Unexpected order: %s, %s", all[0].ID, all[1].ID)
	}
	if all[0].LastModified == "" {
		t.Error("Expected LastModified to default to the file mtime")
	}
}

func TestDirGet(t *testing.T) {
	d := setupTestDir(t, map[string]string{"push.yaml": pushYAML})

	p, err := d.Get("push-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.BetweenExerciseRestSeconds != 180 {
		t.Errorf("BetweenExerciseRestSeconds = %d, want 180", p.BetweenExerciseRestSeconds)
	}
	if len(p.Exercises) != 2 || p.Exercises[0].RestSeconds != 90 {
		t.Errorf("Unexpected exercises: %+v", p.Exercises)
	}

	_, err = d.Get("legs")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDirMissing(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "nope"))
	all, err := d.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no plans, got %d", len(all))
	}
}

func TestDirInvalid(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"bad yaml", map[string]string{"x.yaml": "exercises: [oops"}},
		{"no exercises", map[string]string{"x.yaml": "id: x\n"}},
		{"zero sets", map[string]string{"x.yaml": "exercises:\n  - id: a\n    name: A\n    sets: 0\n"}},
		{"duplicate id", map[string]string{"a.yaml": pushYAML, "b.yaml": pushYAML}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupTestDir(t, tt.files)
			if _, err := d.List(); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(&models.WorkoutPlan{ID: "b"}, &models.WorkoutPlan{ID: "a"})
	s.Put(&models.WorkoutPlan{ID: "c"})

	all, _ := s.List()
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Errorf("Unexpected list: %v", all)
	}
	if _, err := s.Get("a"); err != nil {
		t.Errorf("Get failed: %v", err)
	}
	if _, err := s.Get("z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
