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

const ruleColumns = `id, name, enabled, priority, channels, keywords, sender, agent, model, spawn_new`

// CreateRule appends a routing rule. List order is the tie-break for rules
// of equal priority.
func (s *Store) CreateRule(ctx context.Context, r routing.RoutingRule) (routing.RoutingRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return routing.RoutingRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return routing.RoutingRule{}, fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	dup, err := exists(ctx, tx, "routing_rules", r.ID)
	if err != nil {
		return routing.RoutingRule{}, err
	}
	if dup {
		return routing.RoutingRule{}, fmt.Errorf("rule %s: %w", r.ID, perrors.ErrConflict)
	}

	pos, err := nextPosition(ctx, tx, "routing_rules")
	if err != nil {
		return routing.RoutingRule{}, err
	}

	now := nowMs()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO routing_rules (`+ruleColumns+`, position, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, boolInt(r.Enabled), r.Priority,
		encodeList(r.Conditions.Channels), encodeList(r.Conditions.Keywords), r.Conditions.Sender,
		r.Action.Agent, r.Action.Model, boolInt(r.Action.SpawnNew), pos, now, now,
	)
	if err != nil {
		return routing.RoutingRule{}, fmt.Errorf("failed to insert rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return routing.RoutingRule{}, fmt.Errorf("failed to commit rule: %w", err)
	}
	return r, nil
}

// GetRule returns one routing rule.
func (s *Store) GetRule(ctx context.Context, id string) (routing.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return routing.RoutingRule{}, fmt.Errorf("rule %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return routing.RoutingRule{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

// ListRules returns all rules in list order (not priority order).
func (s *Store) ListRules(ctx context.Context) ([]routing.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRules(ctx, s.db)
}

func listRules(ctx context.Context, q queryer) ([]routing.RoutingRule, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []routing.RoutingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule replaces a routing rule, keeping its list position.
func (s *Store) UpdateRule(ctx context.Context, r routing.RoutingRule) (routing.RoutingRule, error) {
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return routing.RoutingRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
	UPDATE routing_rules SET name = ?, enabled = ?, priority = ?, channels = ?, keywords = ?,
		sender = ?, agent = ?, model = ?, spawn_new = ?, updated_at = ?
	WHERE id = ?`,
		r.Name, boolInt(r.Enabled), r.Priority,
		encodeList(r.Conditions.Channels), encodeList(r.Conditions.Keywords), r.Conditions.Sender,
		r.Action.Agent, r.Action.Model, boolInt(r.Action.SpawnNew), nowMs(), r.ID,
	)
	if err != nil {
		return routing.RoutingRule{}, fmt.Errorf("failed to update rule: %w", err)
	}
	if err := requireRow(res, "rule", r.ID); err != nil {
		return routing.RoutingRule{}, err
	}
	return r, nil
}

// SetRuleEnabled toggles a rule. The change is committed before the call
// returns, so the next snapshot sees it.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE routing_rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), nowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	return requireRow(res, "rule", id)
}

// DeleteRule removes a routing rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRow(res, "rule", id)
}

func scanRule(sc scanner) (routing.RoutingRule, error) {
	var r routing.RoutingRule
	var enabled, spawn int
	var channels, keywords string
	err := sc.Scan(&r.ID, &r.Name, &enabled, &r.Priority, &channels, &keywords,
		&r.Conditions.Sender, &r.Action.Agent, &r.Action.Model, &spawn)
	if err != nil {
		return routing.RoutingRule{}, err
	}
	r.Enabled = enabled != 0
	r.Action.SpawnNew = spawn != 0
	r.Conditions.Channels = decodeList(channels)
	r.Conditions.Keywords = decodeList(keywords)
	return r, nil
}
