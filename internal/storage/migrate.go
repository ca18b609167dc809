// ABOUTME: Data migration between lift storage backends.
// ABOUTME: Copies summaries, set rows, and plan days from source to destination.

package storage

import (
	"context"
	"fmt"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Sessions int
	Sets     int
	Days     int
}

// MigrateData copies all data from src to dst storage. Every write is
// idempotent, so running it twice does not duplicate rows.
func MigrateData(ctx context.Context, src, dst Repository) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	summaries, err := src.ListSummaries(ctx, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list source summaries: %w", err)
	}

	plans := make(map[string]bool)
	for _, s := range summaries {
		if err := dst.UpsertSummary(ctx, s); err != nil {
			return nil, fmt.Errorf("upsert summary %s: %w", s.SessionID, err)
		}
		summary.Sessions++

		sets, err := src.ListSets(ctx, s.SessionID)
		if err != nil {
			return nil, fmt.Errorf("list sets %s: %w", s.SessionID, err)
		}
		n, err := dst.InsertSets(ctx, s.SessionID, sets)
		if err != nil {
			return nil, fmt.Errorf("insert sets %s: %w", s.SessionID, err)
		}
		summary.Sets += n
		plans[s.PlanID] = true
	}

	for planID := range plans {
		days, err := src.CompletedDays(ctx, planID)
		if err != nil {
			return nil, fmt.Errorf("list days for %s: %w", planID, err)
		}
		for _, d := range days {
			if err := dst.MarkDayCompleted(ctx, planID, d.Day, d.SessionID, d.CompletedAt); err != nil {
				return nil, fmt.Errorf("mark day %s/%d: %w", planID, d.Day, err)
			}
			summary.Days++
		}
	}

	return summary, nil
}
