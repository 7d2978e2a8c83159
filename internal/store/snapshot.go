package store

import (
	"context"
	"fmt"

	"github.com/p-blackswan/superclaw/internal/routing"
)

// Snapshot reads rules and agents in a single read transaction under the
// read lock, so a classification never sees a half-applied edit.
func (s *Store) Snapshot(ctx context.Context) (routing.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return routing.Snapshot{}, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	rules, err := listRules(ctx, tx)
	if err != nil {
		return routing.Snapshot{}, err
	}
	agents, err := listAgents(ctx, tx)
	if err != nil {
		return routing.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return routing.Snapshot{}, fmt.Errorf("failed to close snapshot: %w", err)
	}

	return routing.NewSnapshot(rules, agents)
}

// IsEmpty reports whether no rules and no agents are stored yet.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM routing_rules) + (SELECT COUNT(*) FROM agents)`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count rules and agents: %w", err)
	}
	return n == 0, nil
}

// Seed inserts rules and agents in one transaction, preserving their order.
// Used to load a rules file into an empty database.
func (s *Store) Seed(ctx context.Context, snap routing.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	for i, a := range snap.Agents {
		a = a.Normalize()
		_, err := tx.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, boolInt(a.Enabled), encodeList(a.HandoffRules), a.Model, a.Color, a.Icon,
			encodeList(a.Skills), a.Soul, a.SystemPrompt, i+1, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed agent %s: %w", a.ID, err)
		}
	}
	for i, r := range snap.Rules {
		r = r.Normalize()
		_, err := tx.ExecContext(ctx, `
		INSERT INTO routing_rules (`+ruleColumns+`, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, boolInt(r.Enabled), r.Priority,
			encodeList(r.Conditions.Channels), encodeList(r.Conditions.Keywords), r.Conditions.Sender,
			r.Action.Agent, r.Action.Model, boolInt(r.Action.SpawnNew), i+1, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	s.logger.Info().Int("rules", len(snap.Rules)).Int("agents", len(snap.Agents)).Msg("store seeded")
	return nil
}
