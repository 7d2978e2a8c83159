package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
	"github.com/p-blackswan/superclaw/internal/routing"
)

const agentColumns = `id, name, enabled, handoff_rules, model, color, icon, skills, soul, system_prompt`

// CreateAgent inserts an agent definition at the end of the list. An empty
// ID is replaced with a generated one.
func (s *Store) CreateAgent(ctx context.Context, a routing.AgentDefinition) (routing.AgentDefinition, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return routing.AgentDefinition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return routing.AgentDefinition{}, fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	dup, err := exists(ctx, tx, "agents", a.ID)
	if err != nil {
		return routing.AgentDefinition{}, err
	}
	if dup {
		return routing.AgentDefinition{}, fmt.Errorf("agent %s: %w", a.ID, perrors.ErrConflict)
	}

	pos, err := nextPosition(ctx, tx, "agents")
	if err != nil {
		return routing.AgentDefinition{}, err
	}

	now := nowMs()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO agents (`+agentColumns+`, position, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, boolInt(a.Enabled), encodeList(a.HandoffRules), a.Model, a.Color, a.Icon,
		encodeList(a.Skills), a.Soul, a.SystemPrompt, pos, now, now,
	)
	if err != nil {
		return routing.AgentDefinition{}, fmt.Errorf("failed to insert agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return routing.AgentDefinition{}, fmt.Errorf("failed to commit agent: %w", err)
	}
	return a, nil
}

// GetAgent returns one agent definition.
func (s *Store) GetAgent(ctx context.Context, id string) (routing.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return routing.AgentDefinition{}, fmt.Errorf("agent %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return routing.AgentDefinition{}, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns all agents in insertion order.
func (s *Store) ListAgents(ctx context.Context) ([]routing.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAgents(ctx, s.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listAgents(ctx context.Context, q queryer) ([]routing.AgentDefinition, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []routing.AgentDefinition
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}

// UpdateAgent replaces an agent definition, keeping its list position.
func (s *Store) UpdateAgent(ctx context.Context, a routing.AgentDefinition) (routing.AgentDefinition, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return routing.AgentDefinition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
	UPDATE agents SET name = ?, enabled = ?, handoff_rules = ?, model = ?, color = ?, icon = ?,
		skills = ?, soul = ?, system_prompt = ?, updated_at = ?
	WHERE id = ?`,
		a.Name, boolInt(a.Enabled), encodeList(a.HandoffRules), a.Model, a.Color, a.Icon,
		encodeList(a.Skills), a.Soul, a.SystemPrompt, nowMs(), a.ID,
	)
	if err != nil {
		return routing.AgentDefinition{}, fmt.Errorf("failed to update agent: %w", err)
	}
	if err := requireRow(res, "agent", a.ID); err != nil {
		return routing.AgentDefinition{}, err
	}
	return a, nil
}

// SetAgentEnabled toggles an agent. The change is committed before the call
// returns, so the next snapshot sees it.
func (s *Store) SetAgentEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE agents SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), nowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle agent: %w", err)
	}
	return requireRow(res, "agent", id)
}

// DeleteAgent removes an agent definition.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return requireRow(res, "agent", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(sc scanner) (routing.AgentDefinition, error) {
	var a routing.AgentDefinition
	var enabled int
	var handoff, skills string
	err := sc.Scan(&a.ID, &a.Name, &enabled, &handoff, &a.Model, &a.Color, &a.Icon,
		&skills, &a.Soul, &a.SystemPrompt)
	if err != nil {
		return routing.AgentDefinition{}, err
	}
	a.Enabled = enabled != 0
	a.HandoffRules = decodeList(handoff)
	a.Skills = decodeList(skills)
	return a, nil
}

func requireRow(res sql.Result, entity, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, perrors.ErrNotFound)
	}
	return nil
}
