package routing

import (
	"strings"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
)

// Conditions restrict which messages a RoutingRule accepts. An empty
// Channels or Keywords list does not restrict the match, so a rule with
// neither is a catch-all.
type Conditions struct {
	Channels []string `json:"channels,omitempty" yaml:"channels"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`

	// Sender is persisted and returned but does not take part in matching.
	Sender string `json:"sender,omitempty" yaml:"sender"`
}

// Action is the routing outcome of a matched rule.
type Action struct {
	Agent    string `json:"agent" yaml:"agent"`
	Model    string `json:"model,omitempty" yaml:"model"`
	SpawnNew bool   `json:"spawnNew" yaml:"spawnNew"`
}

// RoutingRule maps messages to an agent. Lower Priority values are evaluated
// first; equal priorities keep their list order.
type RoutingRule struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Enabled    bool       `json:"enabled" yaml:"enabled"`
	Priority   int        `json:"priority" yaml:"priority"`
	Conditions Conditions `json:"conditions" yaml:"conditions"`
	Action     Action     `json:"action" yaml:"action"`
}

// Fallback is applied by callers when no rule matches.
type Fallback struct {
	Agent  string `json:"agent" yaml:"agent"`
	Notify bool   `json:"notify" yaml:"notify"`
}

// Validate rejects rules the matcher must never see.
func (r RoutingRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return perrors.Invalid("rule", "id", "is required")
	}
	if r.Priority < 0 {
		return perrors.Invalid("rule", "priority", "must be >= 0")
	}
	if strings.TrimSpace(r.Action.Agent) == "" {
		return perrors.Invalid("rule", "action.agent", "is required")
	}
	return nil
}

// Normalize returns a copy with trimmed identity fields and blank
// channel/keyword entries removed. Non-blank terms are left untouched.
func (r RoutingRule) Normalize() RoutingRule {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	r.Conditions.Channels = cleanTerms(r.Conditions.Channels)
	r.Conditions.Keywords = cleanTerms(r.Conditions.Keywords)
	r.Conditions.Sender = strings.TrimSpace(r.Conditions.Sender)
	r.Action.Agent = strings.TrimSpace(r.Action.Agent)
	r.Action.Model = strings.TrimSpace(r.Action.Model)
	return r
}

// IsCatchAll reports whether the rule matches every message.
func (r RoutingRule) IsCatchAll() bool {
	return len(r.Conditions.Channels) == 0 && len(r.Conditions.Keywords) == 0
}
