package dispatch_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/superclaw/internal/dispatch"
	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

func newService(t *testing.T) (*dispatch.Service, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "dispatch.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	_, err = st.CreateRule(ctx, routing.RoutingRule{
		ID: "bugs", Name: "Bugs", Enabled: true,
		Conditions: routing.Conditions{Channels: []string{"#bugs"}, Keywords: []string{"bug"}},
		Action:     routing.Action{Agent: "dev"},
	})
	require.NoError(t, err)
	_, err = st.CreateAgent(ctx, routing.AgentDefinition{ID: "dev", Enabled: true, HandoffRules: []string{"bug", "api"}})
	require.NoError(t, err)
	_, err = st.CreateAgent(ctx, routing.AgentDefinition{ID: "writer", Enabled: true, HandoffRules: []string{"blog"}})
	require.NoError(t, err)

	router := routing.NewMessageRouter(st, routing.Fallback{Agent: "main"}, zerolog.Nop())
	porter := routing.NewPorter(st, "main", zerolog.Nop())
	return dispatch.New(router, porter, st, metrics.New(), zerolog.Nop()), st
}

func TestService_RouteLogsDecision(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	d, err := svc.Route(ctx, store.SourceAPI, routing.Input{Text: "found a BUG", Channel: "#general"})
	require.NoError(t, err)
	assert.Equal(t, "dev", d.AgentID)
	assert.Equal(t, "bugs", d.RuleID)

	d, err = svc.Route(ctx, store.SourceAPI, routing.Input{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "main", d.AgentID)
	assert.True(t, d.Fallback)

	entries, err := st.ListRoutingLog(ctx, routing.ClassifierRouter, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Fallback)
	assert.Equal(t, "bugs", entries[1].RuleID)
}

func TestService_CreateTask_AutoAssigns(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, store.SourceAPI, store.Task{Title: "Fix API bug"})
	require.NoError(t, err)
	assert.Equal(t, "dev", task.AgentID)
	assert.Equal(t, dispatch.AssignedByPorter, task.AssignedBy)
	assert.Equal(t, 6, task.AssignmentScore)
	assert.Contains(t, task.AssignmentReason, "dev")

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "dev", got.AgentID)

	entries, err := st.ListRoutingLog(ctx, routing.ClassifierPorter, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.SourceTask, entries[0].Source)
}

func TestService_CreateTask_ManualOwner(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, store.SourceAPI, store.Task{Title: "Write a blog", AgentID: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "dev", task.AgentID)
	assert.Equal(t, dispatch.AssignedByManual, task.AssignedBy)

	entries, err := st.ListRoutingLog(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_Reassign(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, store.SourceAPI, store.Task{Title: "Write a blog post", AgentID: "dev"})
	require.NoError(t, err)

	a, err := svc.Reassign(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, "writer", a.AgentID)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "writer", got.AgentID)
	assert.Equal(t, dispatch.AssignedByPorter, got.AssignedBy)
}

type brokenSource struct{}

func (brokenSource) Snapshot(ctx context.Context) (routing.Snapshot, error) {
	return routing.Snapshot{}, errors.New("db closed")
}

func TestService_SnapshotError(t *testing.T) {
	_, st := newService(t)
	router := routing.NewMessageRouter(brokenSource{}, routing.Fallback{Agent: "main"}, zerolog.Nop())
	porter := routing.NewPorter(brokenSource{}, "main", zerolog.Nop())
	svc := dispatch.New(router, porter, st, nil, zerolog.Nop())

	_, err := svc.Route(context.Background(), store.SourceAPI, routing.Input{Text: "x"})
	assert.Error(t, err)

	_, err = svc.CreateTask(context.Background(), store.SourceAPI, store.Task{Title: "x"})
	assert.Error(t, err)
}
