package routing

import (
	"context"
	"fmt"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
)

// Snapshot is one consistent, read-only view of the rules and agents.
// Classification never mutates it.
type Snapshot struct {
	Rules  []RoutingRule
	Agents []AgentDefinition
}

// NewSnapshot validates rules and agents and copies them into a Snapshot.
// Duplicate ids are rejected.
func NewSnapshot(rules []RoutingRule, agents []AgentDefinition) (Snapshot, error) {
	ruleIDs := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return Snapshot{}, err
		}
		if _, dup := ruleIDs[r.ID]; dup {
			return Snapshot{}, perrors.Invalid("snapshot", "", fmt.Sprintf("duplicate rule id %s", r.ID))
		}
		ruleIDs[r.ID] = struct{}{}
	}

	agentIDs := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		if err := a.Validate(); err != nil {
			return Snapshot{}, err
		}
		if _, dup := agentIDs[a.ID]; dup {
			return Snapshot{}, perrors.Invalid("snapshot", "", fmt.Sprintf("duplicate agent id %s", a.ID))
		}
		agentIDs[a.ID] = struct{}{}
	}

	return Snapshot{
		Rules:  append([]RoutingRule(nil), rules...),
		Agents: append([]AgentDefinition(nil), agents...),
	}, nil
}

// Agent looks up an agent by id.
func (s Snapshot) Agent(id string) (AgentDefinition, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentDefinition{}, false
}

// SnapshotSource hands out snapshots. Implementations must return a view
// that is not affected by concurrent edits.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// StaticSource serves a fixed snapshot, e.g. one loaded from a rules file.
type StaticSource struct {
	snap Snapshot
}

// NewStaticSource wraps snap.
func NewStaticSource(snap Snapshot) *StaticSource {
	return &StaticSource{snap: snap}
}

// Snapshot implements SnapshotSource.
func (s *StaticSource) Snapshot(_ context.Context) (Snapshot, error) {
	return s.snap, nil
}
