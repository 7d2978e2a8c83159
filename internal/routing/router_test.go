package routing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/superclaw/internal/routing"
)

func rule(id string, priority int, agent string, channels, keywords []string) routing.RoutingRule {
	return routing.RoutingRule{
		ID:       id,
		Name:     id,
		Enabled:  true,
		Priority: priority,
		Conditions: routing.Conditions{
			Channels: channels,
			Keywords: keywords,
		},
		Action: routing.Action{Agent: agent},
	}
}

func TestRoute_PriorityOrdering(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("b", 2, "agent-b", nil, []string{"deploy"}),
		rule("a", 1, "agent-a", nil, []string{"deploy"}),
	}

	got := routing.Route("please deploy the api", "#ops", rules)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
}

func TestRoute_EqualPriorityKeepsInputOrder(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("first", 5, "one", nil, nil),
		rule("second", 5, "two", nil, nil),
		rule("third", 5, "three", nil, nil),
	}

	got := routing.Route("anything", "", rules)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ID)
}

func TestRoute_KeywordOverridesChannel(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("mkt", 1, "marketing-lead", []string{"#marketing"}, []string{"marketing"}),
	}

	m, ok := routing.MatchRule("update the marketing copy", "#dev", rules)
	require.True(t, ok)
	assert.Equal(t, "mkt", m.Rule.ID)
	assert.Equal(t, routing.MatchKeyword, m.Via)
	assert.Equal(t, "marketing", m.Term)
}

func TestRoute_ChannelFallbackWhenKeywordsMiss(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("billing", 1, "billing-bot", []string{"#support"}, []string{"invoice"}),
	}

	m, ok := routing.MatchRule("my login is broken", "#support", rules)
	require.True(t, ok)
	assert.Equal(t, routing.MatchChannel, m.Via)
	assert.Equal(t, "#support", m.Term)

	_, ok = routing.MatchRule("my login is broken", "#random", rules)
	assert.False(t, ok)
}

func TestRoute_KeywordsWithoutChannelsMatchOnMiss(t *testing.T) {
	// Keywords miss, but an empty channel list does not restrict the match.
	rules := []routing.RoutingRule{
		rule("kw-only", 1, "x", nil, []string{"invoice"}),
	}

	m, ok := routing.MatchRule("hello", "#anything", rules)
	require.True(t, ok)
	assert.Equal(t, routing.MatchChannel, m.Via)
}

func TestRoute_CatchAll(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("all", 10, "main", nil, nil),
	}

	for _, msg := range []string{"", "   ", "hello", "UPDATE THE MARKETING COPY"} {
		m, ok := routing.MatchRule(msg, "#whatever", rules)
		require.True(t, ok, "message %q", msg)
		assert.Equal(t, routing.MatchCatchAll, m.Via)
	}
}

func TestRoute_ChannelNormalization(t *testing.T) {
	tests := []struct {
		name     string
		ruleChan string
		msgChan  string
		want     bool
	}{
		{"bare rule, hash message", "dev", "#dev", true},
		{"hash rule, bare message", "#dev", "dev", true},
		{"case insensitive", "dev", "#DEV", true},
		{"upper rule", "#Dev", "dev", true},
		{"different channel", "#dev", "#devops", false},
		{"double hash only strips one", "##dev", "dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []routing.RoutingRule{rule("r", 1, "a", []string{tt.ruleChan}, nil)}
			_, ok := routing.MatchRule("hi", tt.msgChan, rules)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRoute_NoMatchReturnsNil(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("a", 1, "a", []string{"#dev"}, []string{"deploy"}),
		rule("b", 2, "b", []string{"#support"}, nil),
	}

	assert.Nil(t, routing.Route("good morning", "#general", rules))
	assert.Nil(t, routing.Route("anything", "#dev-null", nil))
}

func TestRoute_DisabledRuleNeverMatches(t *testing.T) {
	disabled := rule("off", 1, "ghost", nil, []string{"deploy"})
	disabled.Enabled = false
	rules := []routing.RoutingRule{
		disabled,
		rule("on", 2, "real", nil, []string{"deploy"}),
	}

	got := routing.Route("deploy now", "#ops", rules)
	require.NotNil(t, got)
	assert.Equal(t, "on", got.ID)

	assert.Nil(t, routing.Route("deploy now", "#ops", []routing.RoutingRule{disabled}))
}

func TestRoute_SenderIsInert(t *testing.T) {
	r := rule("vip", 1, "vip-agent", []string{"#dev"}, nil)
	r.Conditions.Sender = "alice"

	got := routing.Route("hi", "#dev", []routing.RoutingRule{r})
	require.NotNil(t, got)
	assert.Equal(t, "vip", got.ID)
}

func TestRoute_SubstringNotWordBoundary(t *testing.T) {
	rules := []routing.RoutingRule{rule("crm", 1, "sales", []string{"#nowhere"}, []string{"CRM"})}

	got := routing.Route("we sell crms to enterprises", "#general", rules)
	require.NotNil(t, got)
	assert.Equal(t, "crm", got.ID)
}

func TestRoute_DoesNotReorderInput(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("b", 2, "b", nil, nil),
		rule("a", 1, "a", nil, nil),
	}
	routing.Route("x", "", rules)
	assert.Equal(t, "b", rules[0].ID)
	assert.Equal(t, "a", rules[1].ID)
}

func TestRoute_EndToEndScenario(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("marketing", 1, "marketing-lead", nil, []string{"marketing"}),
		rule("dev", 2, "lead-developer", []string{"#dev"}, nil),
	}

	got := routing.Route("update the marketing copy", "#dev", rules)
	require.NotNil(t, got)
	assert.Equal(t, "marketing-lead", got.Action.Agent)

	// The marketing rule lists no channels, so it still matches when its
	// keyword misses and shadows the #dev rule.
	got = routing.Route("fix the flaky test", "#dev", rules)
	require.NotNil(t, got)
	assert.Equal(t, "marketing-lead", got.Action.Agent)
}

func TestRoute_ChannelRuleReachedWhenEarlierRuleIsRestricted(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("marketing", 1, "marketing-lead", []string{"#marketing"}, []string{"marketing"}),
		rule("dev", 2, "lead-developer", []string{"#dev"}, nil),
	}

	got := routing.Route("update the marketing copy", "#dev", rules)
	require.NotNil(t, got)
	assert.Equal(t, "marketing-lead", got.Action.Agent)

	got = routing.Route("fix the flaky test", "#dev", rules)
	require.NotNil(t, got)
	assert.Equal(t, "lead-developer", got.Action.Agent)

	assert.Nil(t, routing.Route("fix the flaky test", "#random", rules))
}

func TestDecide_Fallback(t *testing.T) {
	d := routing.Decide("hello", "#general", nil, routing.Fallback{Agent: "main", Notify: true})
	assert.True(t, d.Fallback)
	assert.Equal(t, "main", d.AgentID)
	assert.True(t, d.Notify)
	assert.Equal(t, routing.ClassifierRouter, d.Classifier)
	assert.Contains(t, d.Reasoning, "fallback")
}

func TestDecide_CarriesAction(t *testing.T) {
	r := rule("mkt", 1, "marketing-lead", nil, []string{"launch"})
	r.Action.Model = "sonnet"
	r.Action.SpawnNew = true

	d := routing.Decide("Plan the LAUNCH", "#x", []routing.RoutingRule{r}, routing.Fallback{Agent: "main"})
	assert.False(t, d.Fallback)
	assert.Equal(t, "marketing-lead", d.AgentID)
	assert.Equal(t, "sonnet", d.Model)
	assert.True(t, d.SpawnNew)
	assert.Equal(t, "mkt", d.RuleID)
	assert.Equal(t, routing.MatchKeyword, d.MatchedBy)
	assert.Equal(t, []string{"launch"}, d.MatchedRules)
	assert.Contains(t, d.Reasoning, `"launch"`)
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) (routing.Snapshot, error) {
	return routing.Snapshot{}, errors.New("db closed")
}

func TestMessageRouter_Classify(t *testing.T) {
	snap, err := routing.NewSnapshot([]routing.RoutingRule{
		rule("dev", 1, "lead-developer", []string{"dev"}, nil),
	}, nil)
	require.NoError(t, err)

	r := routing.NewMessageRouter(routing.NewStaticSource(snap), routing.Fallback{Agent: "main"}, zerolog.Nop())

	d, err := r.Classify(context.Background(), routing.Input{Text: "hi", Channel: "#DEV"})
	require.NoError(t, err)
	assert.Equal(t, "lead-developer", d.AgentID)

	d, err = r.Classify(context.Background(), routing.Input{Text: "hi", Channel: "#ops"})
	require.NoError(t, err)
	assert.Equal(t, "main", d.AgentID)
	assert.True(t, d.Fallback)
}

func TestMessageRouter_SnapshotError(t *testing.T) {
	r := routing.NewMessageRouter(failingSource{}, routing.Fallback{Agent: "main"}, zerolog.Nop())
	_, err := r.Classify(context.Background(), routing.Input{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db closed")
}

func TestMessageRouter_SetFallback(t *testing.T) {
	r := routing.NewMessageRouter(routing.NewStaticSource(routing.Snapshot{}), routing.Fallback{Agent: "main"}, zerolog.Nop())
	r.SetFallback(routing.Fallback{Agent: "triage", Notify: true})

	d, err := r.Classify(context.Background(), routing.Input{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "triage", d.AgentID)
	assert.True(t, d.Notify)
	assert.Equal(t, routing.Fallback{Agent: "triage", Notify: true}, r.Fallback())
}

func TestByPriority_KeepsDisabledAndInput(t *testing.T) {
	rules := []routing.RoutingRule{
		rule("c", 5, "x", nil, nil),
		rule("a", 1, "x", nil, nil),
		rule("b", 1, "x", nil, nil),
	}
	rules[1].Enabled = false

	got := routing.ByPriority(rules)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "c", rules[0].ID, "input must not be reordered")
}
