// ABOUTME: Export and import of session history.
// ABOUTME: Supports JSON, YAML, and Markdown export formats over any Repository.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harperreed/lift/internal/models"
)

// ExportData represents the full export format for session history.
type ExportData struct {
	Version    string            `json:"version" yaml:"version"`
	ExportedAt time.Time         `json:"exported_at" yaml:"exported_at"`
	Tool       string            `json:"tool" yaml:"tool"`
	Sessions   []ExportedSession `json:"sessions" yaml:"sessions"`
}

// ExportedSession is a summary with its set rows.
type ExportedSession struct {
	Summary *models.CompletionRecord `json:"summary"`
	Sets    []models.SetExecution    `json:"sets"`
}

// GetAllData retrieves all sessions for export, newest first.
func GetAllData(ctx context.Context, repo Repository) (*ExportData, error) {
	summaries, err := repo.ListSummaries(ctx, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Tool:       "lift",
		Sessions:   make([]ExportedSession, 0, len(summaries)),
	}
	for _, s := range summaries {
		sets, err := repo.ListSets(ctx, s.SessionID)
		if err != nil {
			return nil, fmt.Errorf("list sets for %s: %w", s.SessionID, err)
		}
		data.Sessions = append(data.Sessions, ExportedSession{Summary: s, Sets: sets})
	}
	return data, nil
}

// ImportData writes exported sessions into repo. Re-importing is harmless
// because every write is idempotent.
func ImportData(ctx context.Context, repo Repository, data *ExportData) error {
	for _, s := range data.Sessions {
		if err := repo.UpsertSummary(ctx, s.Summary); err != nil {
			return fmt.Errorf("import summary: %w", err)
		}
		if _, err := repo.InsertSets(ctx, s.Summary.SessionID, s.Sets); err != nil {
			return fmt.Errorf("import sets: %w", err)
		}
	}
	return nil
}

// ExportJSON exports all data as JSON.
func ExportJSON(ctx context.Context, repo Repository) ([]byte, error) {
	data, err := GetAllData(ctx, repo)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ImportJSON imports data from JSON bytes.
func ImportJSON(ctx context.Context, repo Repository, raw []byte) error {
	var data ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}
	return ImportData(ctx, repo, &data)
}

// ExportYAML exports all data as YAML.
func ExportYAML(ctx context.Context, repo Repository) ([]byte, error) {
	data, err := GetAllData(ctx, repo)
	if err != nil {
		return nil, err
	}

	yamlData := struct {
		Version    string        `yaml:"version"`
		ExportedAt string        `yaml:"exported_at"`
		Tool       string        `yaml:"tool"`
		Sessions   []yamlSession `yaml:"sessions"`
	}{
		Version:    data.Version,
		ExportedAt: data.ExportedAt.Format(time.RFC3339),
		Tool:       data.Tool,
		Sessions:   make([]yamlSession, 0, len(data.Sessions)),
	}

	for _, s := range data.Sessions {
		ys := yamlSession{
			ID:         shortID(s.Summary.SessionID),
			Plan:       s.Summary.PlanID,
			FinishedAt: s.Summary.FinishedAt.Format(time.RFC3339),
			Minutes:    s.Summary.ElapsedSeconds / 60,
			Volume:     s.Summary.TotalVolume,
		}
		if s.Summary.Notes != nil {
			ys.Notes = *s.Summary.Notes
		}
		for _, set := range s.Sets {
			ys.Sets = append(ys.Sets, yamlSet{
				Exercise: set.ExerciseID,
				Set:      set.SetIndex,
				Load:     set.Load,
				Reps:     set.Reps,
				Failed:   set.Failed,
			})
		}
		yamlData.Sessions = append(yamlData.Sessions, ys)
	}

	return yaml.Marshal(yamlData)
}

type yamlSession struct {
	ID         string    `yaml:"id"`
	Plan       string    `yaml:"plan"`
	FinishedAt string    `yaml:"finished_at"`
	Minutes    int64     `yaml:"minutes"`
	Volume     float64   `yaml:"volume"`
	Notes      string    `yaml:"notes,omitempty"`
	Sets       []yamlSet `yaml:"sets,omitempty"`
}

type yamlSet struct {
	Exercise string  `yaml:"exercise"`
	Set      int     `yaml:"set"`
	Load     float64 `yaml:"load"`
	Reps     int     `yaml:"reps"`
	Failed   bool    `yaml:"failed,omitempty"`
}

// ExportMarkdown renders session history as Markdown tables.
func ExportMarkdown(ctx context.Context, repo Repository, since *time.Time) (string, error) {
	data, err := GetAllData(ctx, repo)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	now := time.Now()
	sb.WriteString(fmt.Sprintf("# Lift Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	for _, s := range data.Sessions {
		sum := s.Summary
		if since != nil && sum.FinishedAt.Before(*since) {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s - %s\n\n", sum.FinishedAt.Format("2006-01-02 15:04"), sum.PlanID))
		sb.WriteString(fmt.Sprintf("%d sets, %d reps, %.1f volume, %d min",
			sum.TotalSets, sum.TotalReps, sum.TotalVolume, sum.ElapsedSeconds/60))
		if sum.FailedSets > 0 {
			sb.WriteString(fmt.Sprintf(", %d failed", sum.FailedSets))
		}
		sb.WriteString("\n\n")
		if len(s.Sets) > 0 {
			sb.WriteString("| Exercise | Set | Load | Reps | |\n")
			sb.WriteString("|----------|-----|------|------|-|\n")
			for _, set := range s.Sets {
				mark := ""
				if set.Failed {
					mark = "failed"
				}
				sb.WriteString(fmt.Sprintf("| %s | %d | %.1f | %d | %s |\n",
					set.ExerciseName, set.SetIndex, set.Load, set.Reps, mark))
			}
			sb.WriteString("\n")
		}
		if sum.Notes != nil {
			sb.WriteString(fmt.Sprintf("> %s\n\n", *sum.Notes))
		}
	}

	return sb.String(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
