package store

import (
	"context"
	"fmt"
	"time"

	"github.com/p-blackswan/superclaw/internal/routing"
)

// Routing log sources.
const (
	SourceAPI   = "api"
	SourceSlack = "slack"
	SourceCron  = "cron"
	SourceMCP   = "mcp"
	SourceTask  = "task"
)

// RoutingLogEntry is one recorded classification.
type RoutingLogEntry struct {
	ID         int64     `json:"id"`
	Classifier string    `json:"classifier"`
	Source     string    `json:"source"`
	Channel    string    `json:"channel,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Text       string    `json:"text"`
	AgentID    string    `json:"agentId"`
	RuleID     string    `json:"ruleId,omitempty"`
	Fallback   bool      `json:"fallback"`
	Score      int       `json:"score"`
	Reasoning  string    `json:"reasoning"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LogDecision records a classification made for the given input.
func (s *Store) LogDecision(ctx context.Context, source string, in routing.Input, d routing.Decision) error {
	text := in.Text
	if in.Detail != "" {
		text += " " + in.Detail
	}
	return s.AppendRoutingLog(ctx, RoutingLogEntry{
		Classifier: d.Classifier,
		Source:     source,
		Channel:    in.Channel,
		Sender:     in.Sender,
		Text:       text,
		AgentID:    d.AgentID,
		RuleID:     d.RuleID,
		Fallback:   d.Fallback,
		Score:      d.Score,
		Reasoning:  d.Reasoning,
	})
}

// AppendRoutingLog inserts an entry.
func (s *Store) AppendRoutingLog(ctx context.Context, e RoutingLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO routing_log (classifier, source, channel, sender, text, agent_id, rule_id, fallback, score, reasoning, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Classifier, e.Source, e.Channel, e.Sender, e.Text, e.AgentID, e.RuleID,
		boolInt(e.Fallback), e.Score, e.Reasoning, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append routing log: %w", err)
	}
	return nil
}

// ListRoutingLog returns the most recent entries first. classifier may be
// empty to include both.
func (s *Store) ListRoutingLog(ctx context.Context, classifier string, limit int) ([]RoutingLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, classifier, source, channel, sender, text, agent_id, rule_id, fallback, score, reasoning, created_at
	FROM routing_log`
	var args []any
	if classifier != "" {
		query += " WHERE classifier = ?"
		args = append(args, classifier)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing log: %w", err)
	}
	defer rows.Close()

	var entries []RoutingLogEntry
	for rows.Next() {
		var e RoutingLogEntry
		var fallback int
		var created int64
		if err := rows.Scan(&e.ID, &e.Classifier, &e.Source, &e.Channel, &e.Sender, &e.Text,
			&e.AgentID, &e.RuleID, &fallback, &e.Score, &e.Reasoning, &created); err != nil {
			return nil, fmt.Errorf("failed to scan routing log: %w", err)
		}
		e.Fallback = fallback != 0
		e.CreatedAt = fromMs(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing log: %w", err)
	}
	return entries, nil
}
