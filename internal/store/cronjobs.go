package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
)

// CronJob is a scheduled message. When it fires, Message is routed as if it
// had been posted in Channel.
type CronJob struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"` // cron expression, @every spec or Go duration
	Message     string    `json:"message"`
	Channel     string    `json:"channel,omitempty"`
	Enabled     bool      `json:"enabled"`
	RunCount    int       `json:"runCount"`
	LastRunAt   time.Time `json:"lastRunAt,omitempty"`
	LastAgentID string    `json:"lastAgentId,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks required fields. Schedule syntax is checked by the scheduler.
func (j CronJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return perrors.Invalid("cron job", "id", "is required")
	}
	if strings.TrimSpace(j.Schedule) == "" {
		return perrors.Invalid("cron job", "schedule", "is required")
	}
	if strings.TrimSpace(j.Message) == "" {
		return perrors.Invalid("cron job", "message", "is required")
	}
	return nil
}

const cronColumns = `id, name, schedule, message, channel, enabled, run_count, last_run_at,
	last_agent_id, last_error, created_at, updated_at`

// CreateCronJob inserts a scheduled job.
func (s *Store) CreateCronJob(ctx context.Context, j CronJob) (CronJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Schedule = strings.TrimSpace(j.Schedule)
	if err := j.Validate(); err != nil {
		return CronJob{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	j.CreatedAt, j.UpdatedAt = now, now
	j.RunCount, j.LastRunAt, j.LastAgentID, j.LastError = 0, time.Time{}, "", ""

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO cron_jobs (id, name, schedule, message, channel, enabled, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, j.Schedule, j.Message, j.Channel, boolInt(j.Enabled), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return CronJob{}, fmt.Errorf("cron job %s: %w", j.ID, perrors.ErrConflict)
		}
		return CronJob{}, fmt.Errorf("failed to insert cron job: %w", err)
	}
	return j, nil
}

// GetCronJob returns one job.
func (s *Store) GetCronJob(ctx context.Context, id string) (CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+cronColumns+` FROM cron_jobs WHERE id = ?`, id)
	j, err := scanCronJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CronJob{}, fmt.Errorf("cron job %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return CronJob{}, fmt.Errorf("failed to get cron job: %w", err)
	}
	return j, nil
}

// ListCronJobs returns all jobs, oldest first.
func (s *Store) ListCronJobs(ctx context.Context) ([]CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+cronColumns+` FROM cron_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []CronJob
	for rows.Next() {
		j, err := scanCronJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cron job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cron jobs: %w", err)
	}
	return jobs, nil
}

// UpdateCronJob replaces the editable fields of a job. Run history is kept.
func (s *Store) UpdateCronJob(ctx context.Context, j CronJob) (CronJob, error) {
	j.Schedule = strings.TrimSpace(j.Schedule)
	if err := j.Validate(); err != nil {
		return CronJob{}, err
	}

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `
	UPDATE cron_jobs SET name = ?, schedule = ?, message = ?, channel = ?, enabled = ?, updated_at = ?
	WHERE id = ?`,
		j.Name, j.Schedule, j.Message, j.Channel, boolInt(j.Enabled), nowMs(), j.ID)
	s.mu.Unlock()
	if err != nil {
		return CronJob{}, fmt.Errorf("failed to update cron job: %w", err)
	}
	if err := requireRow(res, "cron job", j.ID); err != nil {
		return CronJob{}, err
	}
	return s.GetCronJob(ctx, j.ID)
}

// SetCronJobEnabled pauses or resumes a job.
func (s *Store) SetCronJobEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE cron_jobs SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), nowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle cron job: %w", err)
	}
	return requireRow(res, "cron job", id)
}

// DeleteCronJob removes a job.
func (s *Store) DeleteCronJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cron job: %w", err)
	}
	return requireRow(res, "cron job", id)
}

// RecordCronRun stores the outcome of one firing.
func (s *Store) RecordCronRun(ctx context.Context, id, agentID string, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}
	now := nowMs()
	res, err := s.db.ExecContext(ctx, `
	UPDATE cron_jobs SET run_count = run_count + 1, last_run_at = ?, last_agent_id = ?, last_error = ?, updated_at = ?
	WHERE id = ?`,
		now, agentID, errText, now, id)
	if err != nil {
		return fmt.Errorf("failed to record cron run: %w", err)
	}
	return requireRow(res, "cron job", id)
}

func scanCronJob(sc scanner) (CronJob, error) {
	var j CronJob
	var enabled int
	var lastRun sql.NullInt64
	var created, updated int64
	err := sc.Scan(&j.ID, &j.Name, &j.Schedule, &j.Message, &j.Channel, &enabled, &j.RunCount,
		&lastRun, &j.LastAgentID, &j.LastError, &created, &updated)
	if err != nil {
		return CronJob{}, err
	}
	j.Enabled = enabled != 0
	if lastRun.Valid {
		j.LastRunAt = fromMs(lastRun.Int64)
	}
	j.CreatedAt = fromMs(created)
	j.UpdatedAt = fromMs(updated)
	return j, nil
}
