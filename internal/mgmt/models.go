// Package mgmt provides the management API of the SuperClaw control plane:
// CRUD over agents, routing rules, tasks and cron jobs, plus the route and
// assign endpoints that expose the classifiers.
package mgmt

import (
	"sync"

	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// RuntimeConfig holds the runtime configuration shown by GET /config. Only
// the routing fallbacks and log level can be changed while running.
type RuntimeConfig struct {
	mu sync.RWMutex

	Environment    string
	LogLevel       string
	MgmtListenAddr string
	RateLimitRPS   int
	RateLimitBurst int
	AuthMode       string
	SlackEnabled   bool
	SchedulerOn    bool
}

func (rc *RuntimeConfig) snapshot() RuntimeConfig {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return RuntimeConfig{
		Environment:    rc.Environment,
		LogLevel:       rc.LogLevel,
		MgmtListenAddr: rc.MgmtListenAddr,
		RateLimitRPS:   rc.RateLimitRPS,
		RateLimitBurst: rc.RateLimitBurst,
		AuthMode:       rc.AuthMode,
		SlackEnabled:   rc.SlackEnabled,
		SchedulerOn:    rc.SchedulerOn,
	}
}

// --- Request DTOs ---

// RouteRequest is the payload for POST /api/v1/route. Message must be
// present but may be blank.
type RouteRequest struct {
	Message *string `json:"message"`
	Channel string `json:"channel,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

// AssignRequest is the payload for POST /api/v1/assign.
type AssignRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// EnabledRequest is the payload for the PATCH .../enabled endpoints.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// CreateTaskRequest is the payload for POST /api/v1/tasks. Without agentId
// the task is assigned by Porter.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	AgentID     string `json:"agentId,omitempty"`
}

// TaskStatusRequest is the payload for PATCH /api/v1/tasks/:id/status.
type TaskStatusRequest struct {
	Status string `json:"status"`
}

// ConfigPatchRequest is the payload for PATCH /api/v1/config.
type ConfigPatchRequest struct {
	LogLevel            *string `json:"log_level,omitempty"`
	FallbackAgent       *string `json:"fallback_agent,omitempty"`
	FallbackNotify      *bool   `json:"fallback_notify,omitempty"`
	PorterFallbackAgent *string `json:"porter_fallback_agent,omitempty"`
}

// --- Response DTOs ---

// RouteResponse is the response for POST /api/v1/route.
type RouteResponse struct {
	Decision routing.Decision         `json:"decision"`
	Agent    *routing.AgentDefinition `json:"agent,omitempty"`
}

// AssignResponse is the response for POST /api/v1/assign.
type AssignResponse struct {
	Assignment routing.Assignment       `json:"assignment"`
	Agent      *routing.AgentDefinition `json:"agent,omitempty"`
}

// AgentListResponse wraps a list of agents.
type AgentListResponse struct {
	Agents []routing.AgentDefinition `json:"agents"`
	Total  int                       `json:"total"`
}

// RuleListResponse wraps a list of rules in list order.
type RuleListResponse struct {
	Rules []routing.RoutingRule `json:"rules"`
	Total int                   `json:"total"`
}

// TaskResponse wraps a Task for API responses.
type TaskResponse struct {
	Task store.Task `json:"task"`
}

// TaskListResponse wraps a list of tasks.
type TaskListResponse struct {
	Tasks []store.Task `json:"tasks"`
	Total int          `json:"total"`
	Limit int          `json:"limit"`
}

// CronJobListResponse wraps a list of cron jobs.
type CronJobListResponse struct {
	Jobs  []store.CronJob `json:"jobs"`
	Total int             `json:"total"`
}

// RoutingLogResponse wraps recent routing decisions.
type RoutingLogResponse struct {
	Entries []store.RoutingLogEntry `json:"entries"`
	Total   int                     `json:"total"`
}

// HealthDetailResponse is the response for GET /api/v1/health.
type HealthDetailResponse struct {
	Status       string            `json:"status"`
	Integrations map[string]string `json:"integrations"`
	Uptime       string            `json:"uptime"`
	Version      string            `json:"version"`
	DBSizeBytes  int64             `json:"db_size_bytes"`
}

// ConfigResponse is the response for GET /api/v1/config.
type ConfigResponse struct {
	Environment         string `json:"environment"`
	LogLevel            string `json:"log_level"`
	MgmtListenAddr      string `json:"mgmt_listen_addr"`
	RateLimitRPS        int    `json:"rate_limit_rps"`
	RateLimitBurst      int    `json:"rate_limit_burst"`
	AuthMode            string `json:"auth_mode"`
	SlackEnabled        bool   `json:"slack_enabled"`
	SchedulerEnabled    bool   `json:"scheduler_enabled"`
	FallbackAgent       string `json:"fallback_agent"`
	FallbackNotify      bool   `json:"fallback_notify"`
	PorterFallbackAgent string `json:"porter_fallback_agent"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// CronJobRequest is the body of POST /api/v1/cron and PUT /api/v1/cron/:id.
// A job is enabled unless the request says otherwise.
type CronJobRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Enabled  *bool  `json:"enabled"`
}

func (r CronJobRequest) job() store.CronJob {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return store.CronJob{
		ID:       r.ID,
		Name:     r.Name,
		Schedule: r.Schedule,
		Message:  r.Message,
		Channel:  r.Channel,
		Enabled:  enabled,
	}
}
