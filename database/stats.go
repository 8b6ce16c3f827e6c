package database

import (
	"context"
	"fmt"

	"proofcheck/types"
)

// Stats counts tasks and submissions for the dashboard
func (s *Store) Stats(ctx context.Context) (types.Stats, error) {
	var stats types.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM tasks`).Scan(&stats.TotalTasks, &stats.ActiveTasks, &stats.CompletedTasks)
	if err != nil {
		return types.Stats{}, fmt.Errorf("failed to count tasks: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM submissions`).Scan(&stats.TotalSubmissions, &stats.PendingSubmissions)
	if err != nil {
		return types.Stats{}, fmt.Errorf("failed to count submissions: %w", err)
	}

	return stats, nil
}
