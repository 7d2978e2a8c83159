package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy controls how long history is kept.
type RetentionPolicy struct {
	RoutingLog time.Duration
	DoneTasks  time.Duration
}

// DefaultRetention keeps 30 days of routing history and 7 days of done tasks.
var DefaultRetention = RetentionPolicy{
	RoutingLog: 30 * 24 * time.Hour,
	DoneTasks:  7 * 24 * time.Hour,
}

// RunRetention cleans up old data according to the policy. A zero duration
// disables that rule.
func (s *Store) RunRetention(ctx context.Context, p RetentionPolicy) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64

	if p.RoutingLog > 0 {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM routing_log WHERE created_at < ?",
			now.Add(-p.RoutingLog).UnixMilli(),
		)
		if err != nil {
			return removed, fmt.Errorf("failed to prune routing log: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if p.DoneTasks > 0 {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM tasks WHERE status = 'done' AND completed_at IS NOT NULL AND completed_at < ?",
			now.Add(-p.DoneTasks).UnixMilli(),
		)
		if err != nil {
			return removed, fmt.Errorf("failed to delete old tasks: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	return removed, nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
