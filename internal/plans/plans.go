// ABOUTME: Plan provider contract and a YAML directory implementation.
// ABOUTME: One plan per .yaml/.yml file; the file name is the default plan id.
package plans

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/harperreed/lift/internal/models"
)

// ErrNotFound is returned when no plan has the requested id.
var ErrNotFound = errors.New("plan not found")

// Provider supplies read-only workout plans.
type Provider interface {
	Get(id string) (*models.WorkoutPlan, error)
	List() ([]*models.WorkoutPlan, error)
}

// Dir reads plans from YAML files in a directory. Files are re-read on every
// call so edits made while a session is running are seen at recovery time.
type Dir struct {
	path string
}

// NewDir creates a Dir provider rooted at path.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the plan directory.
func (d *Dir) Path() string {
	return d.path
}

// Get returns the plan with the given id.
func (d *Dir) Get(id string) (*models.WorkoutPlan, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns every valid plan sorted by id. A missing directory yields no
// plans; an invalid file is an error naming the file.
func (d *Dir) List() ([]*models.WorkoutPlan, error) {
	entries, err := os.ReadDir(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan dir: %w", err)
	}

	var out []*models.WorkoutPlan
	seen := make(map[string]string)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		file := filepath.Join(d.path, e.Name())
		plan, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[plan.ID]; ok {
			return nil, fmt.Errorf("plan %q defined in both %s and %s", plan.ID, prev, e.Name())
		}
		seen[plan.ID] = e.Name()
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadFile parses and validates one plan file.
func LoadFile(path string) (*models.WorkoutPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var plan models.WorkoutPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", filepath.Base(path), err)
	}
	if plan.ID == "" {
		plan.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if plan.LastModified == "" {
		if info, err := os.Stat(path); err == nil {
			plan.LastModified = info.ModTime().UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", filepath.Base(path), err)
	}
	return &plan, nil
}

// Static serves a fixed set of plans held in memory.
type Static struct {
	mu    sync.RWMutex
	plans map[string]*models.WorkoutPlan
}

// NewStatic creates a Static provider.
func NewStatic(plans ...*models.WorkoutPlan) *Static {
	s := &Static{plans: make(map[string]*models.WorkoutPlan)}
	for _, p := range plans {
		s.plans[p.ID] = p
	}
	return s
}

// Put adds or replaces a plan.
func (s *Static) Put(p *models.WorkoutPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

// Get returns the plan with the given id.
func (s *Static) Get(id string) (*models.WorkoutPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns every plan sorted by id.
func (s *Static) List() ([]*models.WorkoutPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.WorkoutPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ Provider = (*Dir)(nil)
	_ Provider = (*Static)(nil)
)
