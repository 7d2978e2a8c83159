package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
)

// Task statuses, in board order.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskReview     = "review"
	TaskDone       = "done"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

// Task is a unit of work on the board, optionally assigned to an agent.
type Task struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Status           string    `json:"status"`
	AgentID          string    `json:"agentId,omitempty"`
	AssignedBy       string    `json:"assignedBy,omitempty"` // "porter", "manual"
	AssignmentScore  int       `json:"assignmentScore"`
	AssignmentReason string    `json:"assignmentReason,omitempty"`
	Source           string    `json:"source,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	CompletedAt      time.Time `json:"completedAt,omitempty"`
}

// TaskFilter for filtering tasks
type TaskFilter struct {
	Status  string
	AgentID string
	Limit   int
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newTaskID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

const taskColumns = `id, title, description, status, agent_id, assigned_by, assignment_score,
	assignment_reason, source, created_at, updated_at, completed_at`

// CreateTask inserts a new task. IDs are ULIDs so they sort by creation time.
func (s *Store) CreateTask(ctx context.Context, t Task) (Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return Task{}, perrors.Invalid("task", "title", "is required")
	}
	if t.Status == "" {
		t.Status = TaskTodo
	}
	if !ValidTaskStatus(t.Status) {
		return Task{}, perrors.Invalid("task", "status", fmt.Sprintf("unknown status %q", t.Status))
	}

	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = newTaskID(now)
	}
	t.CreatedAt = now.Truncate(time.Millisecond)
	t.UpdatedAt = t.CreatedAt
	if t.Status == TaskDone {
		t.CompletedAt = t.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO tasks (`+taskColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Status, t.AgentID, t.AssignedBy, t.AssignmentScore,
		t.AssignmentReason, t.Source, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
		sql.NullInt64{Int64: t.CompletedAt.UnixMilli(), Valid: !t.CompletedAt.IsZero()},
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Task{}, fmt.Errorf("task %s: %w", t.ID, perrors.ErrConflict)
		}
		return Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks newest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task on the board. Moving to done stamps
// completed_at; moving out of done clears it.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string) error {
	if !ValidTaskStatus(status) {
		return perrors.Invalid("task", "status", fmt.Sprintf("unknown status %q", status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	completed := sql.NullInt64{}
	if status == TaskDone {
		completed = sql.NullInt64{Int64: now, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		status, now, completed, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return requireRow(res, "task", id)
}

// AssignTask records which agent owns a task and why.
func (s *Store) AssignTask(ctx context.Context, id, agentID, assignedBy string, score int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
	UPDATE tasks SET agent_id = ?, assigned_by = ?, assignment_score = ?, assignment_reason = ?, updated_at = ?
	WHERE id = ?`,
		agentID, assignedBy, score, reason, nowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to assign task: %w", err)
	}
	return requireRow(res, "task", id)
}

func scanTask(sc scanner) (Task, error) {
	var t Task
	var created, updated int64
	var completed sql.NullInt64
	err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.AgentID, &t.AssignedBy,
		&t.AssignmentScore, &t.AssignmentReason, &t.Source, &created, &updated, &completed)
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = fromMs(created)
	t.UpdatedAt = fromMs(updated)
	if completed.Valid {
		t.CompletedAt = fromMs(completed.Int64)
	}
	return t, nil
}
