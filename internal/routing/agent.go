package routing

import (
	"strings"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
)

// AgentDefinition describes one agent in the fleet. Only ID, Enabled and
// HandoffRules take part in classification; the rest is display metadata.
type AgentDefinition struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	HandoffRules []string `json:"handoffRules" yaml:"handoffRules"`

	Model        string   `json:"model,omitempty" yaml:"model"`
	Color        string   `json:"color,omitempty" yaml:"color"`
	Icon         string   `json:"icon,omitempty" yaml:"icon"`
	Skills       []string `json:"skills,omitempty" yaml:"skills"`
	Soul         string   `json:"soul,omitempty" yaml:"soul"`
	SystemPrompt string   `json:"systemPrompt,omitempty" yaml:"systemPrompt"`
}

// Validate rejects agent definitions the matcher must never see.
func (a AgentDefinition) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return perrors.Invalid("agent", "id", "is required")
	}
	return nil
}

// Normalize returns a copy with trimmed identity fields and blank handoff
// rules removed.
func (a AgentDefinition) Normalize() AgentDefinition {
	a.ID = strings.TrimSpace(a.ID)
	a.Name = strings.TrimSpace(a.Name)
	a.HandoffRules = cleanTerms(a.HandoffRules)
	a.Skills = cleanTerms(a.Skills)
	return a
}

// DisplayName returns Name, or ID when no name is set.
func (a AgentDefinition) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
