package mgmt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/superclaw/internal/dispatch"
	"github.com/p-blackswan/superclaw/internal/health"
	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/requestid"
	"github.com/p-blackswan/superclaw/internal/store"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr   string
	AuthConfig   AuthConfig
	RateLimit    RateLimitConfig
	CORSOrigins  string
	TLSCert      string
	TLSKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the services the API exposes. Scheduler and Metrics may be nil.
type Deps struct {
	Store     *store.Store
	Dispatch  *dispatch.Service
	Scheduler JobScheduler
	Checker   *health.Checker
	Metrics   *metrics.Metrics
	Runtime   *RuntimeConfig
}

// Server is the management API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
	cancel context.CancelFunc
}

// NewServer creates and configures a new management API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "mgmt_server").Logger(),
		config: cfg,
		cancel: cancel,
	}

	s.setupMiddleware(ctx, cfg, deps.Metrics)
	s.setupRoutes(NewHandlers(deps, logger), deps.Metrics)

	return s
}

func (s *Server) setupMiddleware(ctx context.Context, cfg ServerConfig, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID: honour the caller's, otherwise mint one.
	s.app.Use(func(c *fiber.Ctx) error {
		reqCtx := c.UserContext()
		reqID := c.Get(requestid.Header)
		if reqID != "" {
			reqCtx = requestid.WithRequestID(reqCtx, reqID)
		} else {
			reqCtx, reqID = requestid.New(reqCtx)
		}
		c.SetUserContext(reqCtx)
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(ctx, cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, s.logger))

	// Audit and request metrics.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		if m != nil {
			m.RecordHTTP(c.Method(), c.Route().Path, status, time.Since(start).Seconds())
		}

		reqLogger := requestid.Logger(c.UserContext(), s.logger)
		reqLogger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("mgmt api request")

		return err
	})
}

func (s *Server) setupRoutes(h *Handlers, m *metrics.Metrics) {
	// Probe endpoints (no auth required, handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")
	operator := requireRole(RoleOperator)

	// Classifiers
	v1.Post("/route", h.Route)
	v1.Post("/assign", h.Assign)

	// Agents
	v1.Get("/agents", h.ListAgents)
	v1.Post("/agents", operator, h.CreateAgent)
	v1.Get("/agents/:id", h.GetAgent)
	v1.Put("/agents/:id", operator, h.UpdateAgent)
	v1.Patch("/agents/:id/enabled", operator, h.SetAgentEnabled)
	v1.Delete("/agents/:id", operator, h.DeleteAgent)

	// Routing rules
	v1.Get("/rules", h.ListRules)
	v1.Post("/rules", operator, h.CreateRule)
	v1.Get("/rules/:id", h.GetRule)
	v1.Put("/rules/:id", operator, h.UpdateRule)
	v1.Patch("/rules/:id/enabled", operator, h.SetRuleEnabled)
	v1.Delete("/rules/:id", operator, h.DeleteRule)

	// Tasks
	v1.Get("/tasks", h.ListTasks)
	v1.Post("/tasks", operator, h.CreateTask)
	v1.Get("/tasks/:id", h.GetTask)
	v1.Patch("/tasks/:id/status", operator, h.UpdateTaskStatus)
	v1.Post("/tasks/:id/reassign", operator, h.ReassignTask)

	// Cron jobs
	v1.Get("/cron", h.ListCronJobs)
	v1.Post("/cron", operator, h.CreateCronJob)
	v1.Get("/cron/:id", h.GetCronJob)
	v1.Put("/cron/:id", operator, h.UpdateCronJob)
	v1.Patch("/cron/:id/enabled", operator, h.SetCronJobEnabled)
	v1.Delete("/cron/:id", operator, h.DeleteCronJob)

	// Routing log
	v1.Get("/routing/log", h.RoutingLog)

	// Health & config
	v1.Get("/health", h.HealthDetail)
	v1.Get("/config", h.GetConfig)
	v1.Patch("/config", requireRole(RoleAdmin), h.PatchConfig)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("management API server starting")

	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		return s.app.ListenTLS(addr, s.config.TLSCert, s.config.TLSKey)
	}
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	s.cancel()
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errType := "internal_error"
		title := "Internal Server Error"
		// Don't leak internal details.
		detail := "An internal error occurred"

		if e, ok := err.(*fiber.Error); ok && e.Code != fiber.StatusInternalServerError {
			code = e.Code
			errType = "http_error"
			title = utils.StatusMessage(code)
			detail = e.Message
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		return c.Status(code).JSON(ProblemDetail{
			Type:     errType,
			Title:    title,
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
