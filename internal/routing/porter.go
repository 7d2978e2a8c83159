package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Candidate is one agent that scored above zero for a task.
type Candidate struct {
	AgentID      string   `json:"agentId"`
	Score        int      `json:"score"`
	MatchedRules []string `json:"matchedRules"`
}

// Assignment is Porter's answer for one task.
type Assignment struct {
	AgentID      string      `json:"agentId"`
	MatchedRules []string    `json:"matchedRules"`
	Score        int         `json:"score"`
	Fallback     bool        `json:"fallback"`
	Reasoning    string      `json:"reasoning"`
	Candidates   []Candidate `json:"candidates,omitempty"`
}

// Assign picks the enabled agent whose handoff rules best cover the task.
//
// Every handoff rule found in the lowercased "title description" text adds
// its length to the agent's score, so longer, more specific phrases weigh
// more and several hits accumulate. Agents scoring zero are not candidates.
// The highest score wins; ties go to the agent listed first. With no
// candidate the fallback id is returned.
func Assign(title, description string, agents []AgentDefinition, fallbackAgentID string) Assignment {
	enabled := 0
	for _, a := range agents {
		if a.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return Assignment{
			AgentID:      fallbackAgentID,
			MatchedRules: []string{},
			Fallback:     true,
			Reasoning:    fmt.Sprintf("no enabled agents; no rules matched, assigning fallback %q", fallbackAgentID),
		}
	}

	text := strings.ToLower(title + " " + description)

	candidates := make([]Candidate, 0, enabled)
	for _, a := range agents {
		if !a.Enabled {
			continue
		}
		c := Candidate{AgentID: a.ID}
		for _, rule := range a.HandoffRules {
			if strings.TrimSpace(rule) == "" {
				continue
			}
			lower := strings.ToLower(rule)
			if strings.Contains(text, lower) {
				c.Score += utf8.RuneCountInString(lower)
				c.MatchedRules = append(c.MatchedRules, rule)
			}
		}
		if len(c.MatchedRules) > 0 {
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		return Assignment{
			AgentID:      fallbackAgentID,
			MatchedRules: []string{},
			Fallback:     true,
			Reasoning:    fmt.Sprintf("no handoff rules matched across %d enabled agents, assigning fallback %q", enabled, fallbackAgentID),
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	best := candidates[0]
	return Assignment{
		AgentID:      best.AgentID,
		MatchedRules: best.MatchedRules,
		Score:        best.Score,
		Reasoning:    fmt.Sprintf("%s matched %s (score %d)", best.AgentID, quoteAll(best.MatchedRules), best.Score),
		Candidates:   candidates,
	}
}

func quoteAll(rules []string) string {
	quoted := make([]string, len(rules))
	for i, r := range rules {
		quoted[i] = fmt.Sprintf("%q", r)
	}
	return strings.Join(quoted, ", ")
}

// Porter assigns tasks against the current agent snapshot.
type Porter struct {
	source SnapshotSource
	logger zerolog.Logger

	mu       sync.RWMutex
	fallback string
}

// NewPorter creates a Porter that falls back to fallbackAgentID.
func NewPorter(source SnapshotSource, fallbackAgentID string, logger zerolog.Logger) *Porter {
	return &Porter{
		source:   source,
		fallback: fallbackAgentID,
		logger:   logger.With().Str("component", "routing.porter").Logger(),
	}
}

// FallbackAgent returns the configured fallback agent id.
func (p *Porter) FallbackAgent() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallback
}

// SetFallbackAgent replaces the fallback agent id.
func (p *Porter) SetFallbackAgent(id string) {
	p.mu.Lock()
	p.fallback = id
	p.mu.Unlock()
}

// Assign scores the task against a fresh snapshot.
func (p *Porter) Assign(ctx context.Context, title, description string) (Assignment, error) {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		return Assignment{}, fmt.Errorf("porter: snapshot: %w", err)
	}

	a := Assign(title, description, snap.Agents, p.FallbackAgent())

	p.logger.Debug().
		Str("title", title).
		Str("agent", a.AgentID).
		Int("score", a.Score).
		Bool("fallback", a.Fallback).
		Msg("task assigned")

	return a, nil
}

// Classify implements TextClassifier. Text is the task title, Detail the
// description.
func (p *Porter) Classify(ctx context.Context, in Input) (Decision, error) {
	a, err := p.Assign(ctx, in.Text, in.Detail)
	if err != nil {
		return Decision{}, err
	}
	return a.Decision(), nil
}

// Decision converts the assignment to the shared classifier result.
func (a Assignment) Decision() Decision {
	return Decision{
		Classifier:   ClassifierPorter,
		AgentID:      a.AgentID,
		Fallback:     a.Fallback,
		MatchedRules: a.MatchedRules,
		Score:        a.Score,
		Reasoning:    a.Reasoning,
	}
}
