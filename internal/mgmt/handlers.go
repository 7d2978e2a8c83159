package mgmt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/superclaw/internal/errors"
	"github.com/p-blackswan/superclaw/internal/health"
	"github.com/p-blackswan/superclaw/internal/requestid"
	"github.com/p-blackswan/superclaw/internal/routing"
)

// Version is reported by GET /api/v1/health.
var Version = "dev"

// JobScheduler is notified when cron jobs change.
type JobScheduler interface {
	Reload(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	deps      Deps
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger zerolog.Logger) *Handlers {
	if deps.Runtime == nil {
		deps.Runtime = &RuntimeConfig{}
	}
	return &Handlers{
		deps:      deps,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return problemResponse(c, fiber.StatusBadRequest,
		"invalid_body", "Bad Request",
		"Invalid request body: "+err.Error())
}

// errorResponse maps store and validation errors to problem responses.
func (h *Handlers) errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_input", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrConflict):
		return problemResponse(c, fiber.StatusConflict, "conflict", "Conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, perrors.ErrTimeout):
		return problemResponse(c, fiber.StatusGatewayTimeout, "timeout", "Gateway Timeout", "The operation timed out")
	}

	logger := requestid.Logger(c.UserContext(), h.logger)
	logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return problemResponse(c, fiber.StatusInternalServerError,
		"internal_error", "Internal Server Error",
		"An internal error occurred")
}

// lookupAgent returns the agent definition for id, or nil if it is not
// defined (fallback agents need not be).
func (h *Handlers) lookupAgent(ctx context.Context, id string) *routing.AgentDefinition {
	a, err := h.deps.Store.GetAgent(ctx, id)
	if err != nil {
		return nil
	}
	return &a
}

func (h *Handlers) reloadScheduler(ctx context.Context) {
	if h.deps.Scheduler == nil {
		return
	}
	if err := h.deps.Scheduler.Reload(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("scheduler reload failed")
	}
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	report := h.deps.Checker.Check(c.UserContext())

	integrations := make(map[string]string, len(report.Checks))
	overall := "ok"
	for name, status := range report.Checks {
		integrations[name] = string(status)
		if status == health.StatusDown {
			overall = "degraded"
		}
	}

	size, err := h.deps.Store.DBSizeBytes()
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read database size")
	}

	return c.JSON(HealthDetailResponse{
		Status:       overall,
		Integrations: integrations,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Version:      Version,
		DBSizeBytes:  size,
	})
}

// GetConfig handles GET /api/v1/config.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	cfg := h.deps.Runtime.snapshot()
	fb := h.deps.Dispatch.Router().Fallback()
	return c.JSON(ConfigResponse{
		Environment:         cfg.Environment,
		LogLevel:            cfg.LogLevel,
		MgmtListenAddr:      cfg.MgmtListenAddr,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		AuthMode:            cfg.AuthMode,
		SlackEnabled:        cfg.SlackEnabled,
		SchedulerEnabled:    cfg.SchedulerOn,
		FallbackAgent:       fb.Agent,
		FallbackNotify:      fb.Notify,
		PorterFallbackAgent: h.deps.Dispatch.Porter().FallbackAgent(),
	})
}

// PatchConfig handles PATCH /api/v1/config.
func (h *Handlers) PatchConfig(c *fiber.Ctx) error {
	var req ConfigPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	var level zerolog.Level
	if req.LogLevel != nil {
		l, err := zerolog.ParseLevel(strings.ToLower(*req.LogLevel))
		if err != nil || *req.LogLevel == "" {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_log_level", "Bad Request",
				"Unknown log level: "+*req.LogLevel)
		}
		level = l
	}
	if req.FallbackAgent != nil && strings.TrimSpace(*req.FallbackAgent) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_fallback", "Bad Request",
			"fallback_agent must not be empty")
	}
	if req.PorterFallbackAgent != nil && strings.TrimSpace(*req.PorterFallbackAgent) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_fallback", "Bad Request",
			"porter_fallback_agent must not be empty")
	}

	if req.LogLevel != nil {
		zerolog.SetGlobalLevel(level)
		h.deps.Runtime.mu.Lock()
		h.deps.Runtime.LogLevel = level.String()
		h.deps.Runtime.mu.Unlock()
	}

	router := h.deps.Dispatch.Router()
	if req.FallbackAgent != nil || req.FallbackNotify != nil {
		fb := router.Fallback()
		if req.FallbackAgent != nil {
			fb.Agent = strings.TrimSpace(*req.FallbackAgent)
		}
		if req.FallbackNotify != nil {
			fb.Notify = *req.FallbackNotify
		}
		router.SetFallback(fb)
	}
	if req.PorterFallbackAgent != nil {
		h.deps.Dispatch.Porter().SetFallbackAgent(strings.TrimSpace(*req.PorterFallbackAgent))
	}

	h.logger.Info().Msg("runtime config updated")
	return h.GetConfig(c)
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	report := h.deps.Checker.Check(c.UserContext())
	if !report.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}
