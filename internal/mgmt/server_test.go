package mgmt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/superclaw/internal/dispatch"
	"github.com/p-blackswan/superclaw/internal/health"
	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

type testEnv struct {
	app       *fiber.App
	store     *store.Store
	scheduler *countingScheduler
}

type countingScheduler struct{ reloads int }

func (s *countingScheduler) Reload(context.Context) error {
	s.reloads++
	return nil
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)

	st, err := store.New(filepath.Join(t.TempDir(), "superclaw.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	router := routing.NewMessageRouter(st, routing.Fallback{Agent: "general"}, logger)
	porter := routing.NewPorter(st, "general", logger)

	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(st))

	sched := &countingScheduler{}
	srv := NewServer(cfg, Deps{
		Store:     st,
		Dispatch:  dispatch.New(router, porter, st, m, logger),
		Scheduler: sched,
		Checker:   checker,
		Metrics:   m,
		Runtime:   &RuntimeConfig{Environment: "test", LogLevel: "info", AuthMode: cfg.AuthConfig.Mode},
	}, logger)
	t.Cleanup(func() { srv.Shutdown() })

	return &testEnv{app: srv.App(), store: st, scheduler: sched}
}

func testApp(t *testing.T, authMode, apiKey string) *fiber.App {
	t.Helper()
	return newTestEnv(t, ServerConfig{
		AuthConfig: AuthConfig{Mode: authMode, APIKey: apiKey},
	}).app
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.store.CreateAgent(ctx, routing.AgentDefinition{
		ID: "dev", Name: "Developer", Enabled: true, HandoffRules: []string{"bug", "fix the build"},
	})
	require.NoError(t, err)
	_, err = e.store.CreateAgent(ctx, routing.AgentDefinition{
		ID: "pm", Name: "Product", Enabled: true, HandoffRules: []string{"roadmap"},
	})
	require.NoError(t, err)
	_, err = e.store.CreateRule(ctx, routing.RoutingRule{
		ID: "deploys", Name: "Deploys", Enabled: true, Priority: 1,
		Conditions: routing.Conditions{Channels: []string{"#ops"}, Keywords: []string{"deploy"}},
		Action:     routing.Action{Agent: "dev", Model: "sonnet"},
	})
	require.NoError(t, err)
	_, err = e.store.CreateRule(ctx, routing.RoutingRule{
		ID: "product", Name: "Product channel", Enabled: true, Priority: 2,
		Conditions: routing.Conditions{Channels: []string{"#product"}},
		Action:     routing.Action{Agent: "pm"},
	})
	require.NoError(t, err)
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[health.Report](t, resp)
	assert.Equal(t, "ready", report.Status)
	assert.Equal(t, health.StatusOK, report.Checks["store"])

	resp = env.do(t, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[HealthDetailResponse](t, resp)
	assert.Equal(t, "ok", detail.Status)
	assert.Positive(t, detail.DBSizeBytes)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "GET", "/healthz", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, _ := http.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestRoute(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.seed(t)

	tests := []struct {
		name      string
		body      string
		wantAgent string
		wantRule  string
		fallback  bool
	}{
		{"keyword", `{"message":"please DEPLOY v2","channel":"#product"}`, "dev", "deploys", false},
		{"channel", `{"message":"what's next?","channel":"Product"}`, "pm", "product", false},
		{"fallback", `{"message":"hello","channel":"#random"}`, "general", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, "POST", "/api/v1/route", tt.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			got := decode[RouteResponse](t, resp)
			assert.Equal(t, tt.wantAgent, got.Decision.AgentID)
			assert.Equal(t, tt.wantRule, got.Decision.RuleID)
			assert.Equal(t, tt.fallback, got.Decision.Fallback)
			assert.NotEmpty(t, got.Decision.Reasoning)
		})
	}

	resp := env.do(t, "GET", "/api/v1/routing/log?classifier=router", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	log := decode[RoutingLogResponse](t, resp)
	assert.Equal(t, 3, log.Total)
}

func TestRoute_RequiresMessage(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "POST", "/api/v1/route", `{"channel":"#dev"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_message", decode[ProblemDetail](t, resp).Type)

	resp = env.do(t, "POST", "/api/v1/route", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoute_BlankMessageRoutesByChannel(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.seed(t)

	resp := env.do(t, "POST", "/api/v1/route", `{"message":"  ","channel":"#product"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[RouteResponse](t, resp)
	assert.Equal(t, "pm", got.Decision.AgentID)
	assert.Equal(t, "product", got.Decision.RuleID)

	resp = env.do(t, "POST", "/api/v1/route", `{"message":""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[RouteResponse](t, resp)
	assert.True(t, got.Decision.Fallback)
	assert.Equal(t, "general", got.Decision.AgentID)
}

func TestAssign(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.seed(t)

	resp := env.do(t, "POST", "/api/v1/assign", `{"title":"Fix the build","description":"CI bug on main"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[AssignResponse](t, resp)
	assert.Equal(t, "dev", got.Assignment.AgentID)
	assert.Equal(t, len("bug")+len("fix the build"), got.Assignment.Score)
	require.NotNil(t, got.Agent)
	assert.Equal(t, "Developer", got.Agent.Name)

	resp = env.do(t, "POST", "/api/v1/assign", `{"title":"lunch order"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[AssignResponse](t, resp)
	assert.True(t, got.Assignment.Fallback)
	assert.Equal(t, "general", got.Assignment.AgentID)
	assert.Nil(t, got.Agent)

	resp = env.do(t, "POST", "/api/v1/assign", `{"description":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentsCRUD(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "POST", "/api/v1/agents", `{"id":"ops","name":"Ops","enabled":true,"handoffRules":["outage"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/agents", `{"id":"ops","name":"Again","enabled":true}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/agents", `{"name":"No id"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	generated := decode[routing.AgentDefinition](t, resp)
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, "No id", generated.Name)

	resp = env.do(t, "PUT", "/api/v1/agents/ops", `{"name":"Operations","enabled":true,"handoffRules":["outage","pager"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[routing.AgentDefinition](t, resp)
	assert.Equal(t, "ops", updated.ID)
	assert.Equal(t, []string{"outage", "pager"}, updated.HandoffRules)

	resp = env.do(t, "PATCH", "/api/v1/agents/ops/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/v1/agents/ops/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/agents/ops", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[routing.AgentDefinition](t, resp).Enabled)

	resp = env.do(t, "GET", "/api/v1/agents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[AgentListResponse](t, resp).Total)

	resp = env.do(t, "DELETE", "/api/v1/agents/ops", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/agents/ops", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[ProblemDetail](t, resp).Type)
}

func TestCreate_EnabledByDefault(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "POST", "/api/v1/agents", `{"id":"ops","handoffRules":["outage"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, decode[routing.AgentDefinition](t, resp).Enabled)

	resp = env.do(t, "POST", "/api/v1/agents", `{"id":"off","enabled":false}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, decode[routing.AgentDefinition](t, resp).Enabled)

	resp = env.do(t, "POST", "/api/v1/rules", `{"id":"ops","conditions":{"channels":["#ops"]},"action":{"agent":"ops"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, decode[routing.RoutingRule](t, resp).Enabled)

	resp = env.do(t, "POST", "/api/v1/route", `{"message":"pager went off","channel":"#ops"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[RouteResponse](t, resp)
	assert.Equal(t, "ops", got.Decision.RuleID)
	assert.False(t, got.Decision.Fallback)
}

func TestUpdate_OmittedEnabledKeepsStoredValue(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.seed(t)

	resp := env.do(t, "PATCH", "/api/v1/rules/product/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, "PUT", "/api/v1/rules/product",
		`{"name":"Product","priority":2,"conditions":{"channels":["#product"]},"action":{"agent":"pm"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[routing.RoutingRule](t, resp).Enabled)

	resp = env.do(t, "PUT", "/api/v1/agents/dev", `{"name":"Dev","handoffRules":["bug"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[routing.AgentDefinition](t, resp).Enabled)

	resp = env.do(t, "PUT", "/api/v1/agents/ghost", `{"name":"Ghost"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRulesCRUD_ToggleAffectsRouting(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.seed(t)

	resp := env.do(t, "POST", "/api/v1/rules", `{"id":"bad","enabled":true,"priority":-1,"action":{"agent":"dev"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/v1/rules/deploys/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/route", `{"message":"deploy now","channel":"#random"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[RouteResponse](t, resp).Decision.Fallback)

	resp = env.do(t, "PUT", "/api/v1/rules/product",
		`{"name":"Product","enabled":true,"priority":0,"conditions":{"keywords":["deploy"]},"action":{"agent":"pm"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/route", `{"message":"deploy now"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pm", decode[RouteResponse](t, resp).Decision.AgentID)

	resp = env.do(t, "GET", "/api/v1/rules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rules := decode[RuleListResponse](t, resp)
	require.Equal(t, 2, rules.Total)
	assert.Equal(t, "deploys", rules.Rules[0].ID)

	resp = env.do(t, "DELETE", "/api/v1/rules/deploys", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, "DELETE", "/api/v1/rules/deploys", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTasks(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.seed(t)

	resp := env.do(t, "POST", "/api/v1/tasks", `{"title":"Fix the build","description":"flaky bug"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	auto := decode[TaskResponse](t, resp).Task
	assert.Equal(t, "dev", auto.AgentID)
	assert.Equal(t, dispatch.AssignedByPorter, auto.AssignedBy)
	assert.Equal(t, store.TaskTodo, auto.Status)

	resp = env.do(t, "POST", "/api/v1/tasks", `{"title":"Plan Q3","agentId":"pm"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	manual := decode[TaskResponse](t, resp).Task
	assert.Equal(t, "pm", manual.AgentID)
	assert.Equal(t, dispatch.AssignedByManual, manual.AssignedBy)

	resp = env.do(t, "POST", "/api/v1/tasks", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "PATCH", "/api/v1/tasks/"+auto.ID+"/status", `{"status":"done"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[TaskResponse](t, resp).Task
	assert.Equal(t, store.TaskDone, done.Status)
	assert.False(t, done.CompletedAt.IsZero())

	resp = env.do(t, "PATCH", "/api/v1/tasks/"+auto.ID+"/status", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "GET", "/api/v1/tasks?status=done", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[TaskListResponse](t, resp)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, auto.ID, list.Tasks[0].ID)

	resp = env.do(t, "GET", "/api/v1/tasks?agent=pm", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[TaskListResponse](t, resp).Total)

	resp = env.do(t, "GET", "/api/v1/tasks?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/tasks/"+manual.ID+"/reassign", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reassigned := decode[TaskResponse](t, resp).Task
	assert.Equal(t, "general", reassigned.AgentID)
	assert.Equal(t, dispatch.AssignedByPorter, reassigned.AssignedBy)

	resp = env.do(t, "GET", "/api/v1/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCronJobs(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "POST", "/api/v1/cron", `{"id":"standup","schedule":"0 9 * * 1-5","message":"standup time","channel":"#eng"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	job := decode[store.CronJob](t, resp)
	assert.True(t, job.Enabled)
	assert.Equal(t, 1, env.scheduler.reloads)

	resp = env.do(t, "POST", "/api/v1/cron", `{"id":"bad","schedule":"whenever","message":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/v1/cron", `{"id":"standup","schedule":"@daily","message":"dup"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/v1/cron/standup", `{"schedule":"30m","message":"standup now","enabled":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "30m", decode[store.CronJob](t, resp).Schedule)

	resp = env.do(t, "PATCH", "/api/v1/cron/standup/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[store.CronJob](t, resp).Enabled)

	resp = env.do(t, "GET", "/api/v1/cron", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[CronJobListResponse](t, resp).Total)

	resp = env.do(t, "DELETE", "/api/v1/cron/standup", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 4, env.scheduler.reloads)

	resp = env.do(t, "GET", "/api/v1/cron/standup", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutingLog_InvalidClassifier(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})

	resp := env.do(t, "GET", "/api/v1/routing/log?classifier=llm", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfig_PatchFallbacks(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	resp := env.do(t, "GET", "/api/v1/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decode[ConfigResponse](t, resp)
	assert.Equal(t, "general", cfg.FallbackAgent)
	assert.Equal(t, "general", cfg.PorterFallbackAgent)

	resp = env.do(t, "PATCH", "/api/v1/config",
		`{"log_level":"debug","fallback_agent":"triage","fallback_notify":true,"porter_fallback_agent":"backlog"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg = decode[ConfigResponse](t, resp)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "triage", cfg.FallbackAgent)
	assert.True(t, cfg.FallbackNotify)
	assert.Equal(t, "backlog", cfg.PorterFallbackAgent)

	resp = env.do(t, "POST", "/api/v1/route", `{"message":"anything"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decode[RouteResponse](t, resp).Decision
	assert.Equal(t, "triage", d.AgentID)
	assert.True(t, d.Notify)

	for _, body := range []string{`{"log_level":"loud"}`, `{"fallback_agent":"  "}`, `{"porter_fallback_agent":""}`} {
		resp = env.do(t, "PATCH", "/api/v1/config", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}})
	env.do(t, "POST", "/api/v1/route", `{"message":"hi"}`)

	resp := env.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "superclaw_routing_decisions_total")
	assert.Contains(t, string(body), "superclaw_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ServerConfig{
		AuthConfig: AuthConfig{Mode: "none"},
		RateLimit:  RateLimitConfig{RPS: 1, Burst: 2},
	})

	for i := 0; i < 2; i++ {
		resp := env.do(t, "GET", "/api/v1/agents", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := env.do(t, "GET", "/api/v1/agents", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Probes are never limited.
	resp = env.do(t, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
