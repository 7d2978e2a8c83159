package routing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// How a rule matched.
const (
	MatchKeyword  = "keyword"
	MatchChannel  = "channel"
	MatchCatchAll = "catch_all"
)

// RuleMatch is a matched rule plus the path that matched it.
type RuleMatch struct {
	Rule RoutingRule
	Via  string // MatchKeyword, MatchChannel or MatchCatchAll
	Term string // keyword or channel that matched; empty for catch-all
}

// Route returns the first enabled rule that matches the message, or nil when
// nothing matches and the caller should apply its fallback.
func Route(message, channel string, rules []RoutingRule) *RoutingRule {
	m, ok := MatchRule(message, channel, rules)
	if !ok {
		return nil
	}
	return &m.Rule
}

// MatchRule evaluates enabled rules in ascending priority, keeping input order
// for equal priorities. For each rule a keyword hit wins outright, even when
// the message channel is not among the rule's channels. Otherwise the rule
// matches when it lists no channels or lists the message channel.
func MatchRule(message, channel string, rules []RoutingRule) (RuleMatch, bool) {
	for _, rule := range ordered(rules) {
		c := rule.Conditions

		if len(c.Keywords) > 0 {
			if kw, ok := firstContained(message, c.Keywords); ok {
				return RuleMatch{Rule: rule, Via: MatchKeyword, Term: kw}, true
			}
		}

		if len(c.Channels) == 0 {
			via := MatchCatchAll
			if len(c.Keywords) > 0 {
				// Keywords missed but no channel restriction.
				via = MatchChannel
			}
			return RuleMatch{Rule: rule, Via: via}, true
		}
		if ch, ok := firstChannel(channel, c.Channels); ok {
			return RuleMatch{Rule: rule, Via: MatchChannel, Term: ch}, true
		}
	}
	return RuleMatch{}, false
}

// ordered returns the enabled rules sorted by priority. The input slice is
// left untouched.
func ordered(rules []RoutingRule) []RoutingRule {
	enabled := make([]RoutingRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// ByPriority returns a copy of rules in evaluation order, disabled rules
// included.
func ByPriority(rules []RoutingRule) []RoutingRule {
	out := append([]RoutingRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// MessageRouter classifies chat messages against the current rule snapshot
// and applies the configured fallback when no rule matches.
type MessageRouter struct {
	source SnapshotSource
	logger zerolog.Logger

	mu       sync.RWMutex
	fallback Fallback
}

// NewMessageRouter creates a MessageRouter.
func NewMessageRouter(source SnapshotSource, fallback Fallback, logger zerolog.Logger) *MessageRouter {
	return &MessageRouter{
		source:   source,
		fallback: fallback,
		logger:   logger.With().Str("component", "routing.router").Logger(),
	}
}

// Fallback returns the configured fallback.
func (r *MessageRouter) Fallback() Fallback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// SetFallback replaces the fallback used for unmatched messages.
func (r *MessageRouter) SetFallback(f Fallback) {
	r.mu.Lock()
	r.fallback = f
	r.mu.Unlock()
}

// Classify implements TextClassifier.
func (r *MessageRouter) Classify(ctx context.Context, in Input) (Decision, error) {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("router: snapshot: %w", err)
	}

	d := Decide(in.Text, in.Channel, snap.Rules, r.Fallback())

	r.logger.Debug().
		Str("channel", in.Channel).
		Str("agent", d.AgentID).
		Str("rule", d.RuleID).
		Str("matched_by", d.MatchedBy).
		Bool("fallback", d.Fallback).
		Msg("message classified")

	return d, nil
}

// Decide runs MatchRule and turns the outcome into a Decision, applying
// fallback when nothing matched.
func Decide(message, channel string, rules []RoutingRule, fallback Fallback) Decision {
	m, ok := MatchRule(message, channel, rules)
	if !ok {
		return Decision{
			Classifier: ClassifierRouter,
			AgentID:    fallback.Agent,
			Fallback:   true,
			Notify:     fallback.Notify,
			Reasoning:  fmt.Sprintf("no routing rule matched; using fallback agent %q", fallback.Agent),
		}
	}

	d := Decision{
		Classifier: ClassifierRouter,
		AgentID:    m.Rule.Action.Agent,
		RuleID:     m.Rule.ID,
		RuleName:   m.Rule.Name,
		MatchedBy:  m.Via,
		Model:      m.Rule.Action.Model,
		SpawnNew:   m.Rule.Action.SpawnNew,
	}
	if m.Term != "" {
		d.MatchedRules = []string{m.Term}
	}

	switch m.Via {
	case MatchKeyword:
		d.Reasoning = fmt.Sprintf("rule %q (priority %d) matched keyword %q", ruleLabel(m.Rule), m.Rule.Priority, m.Term)
	case MatchChannel:
		if m.Term == "" {
			d.Reasoning = fmt.Sprintf("rule %q (priority %d) matched: keywords missed, no channel restriction", ruleLabel(m.Rule), m.Rule.Priority)
		} else {
			d.Reasoning = fmt.Sprintf("rule %q (priority %d) matched channel %q", ruleLabel(m.Rule), m.Rule.Priority, m.Term)
		}
	default:
		d.Reasoning = fmt.Sprintf("catch-all rule %q (priority %d) matched", ruleLabel(m.Rule), m.Rule.Priority)
	}
	return d
}

func ruleLabel(r RoutingRule) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
