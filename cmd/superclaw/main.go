package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/superclaw/internal/config"
	"github.com/p-blackswan/superclaw/internal/dispatch"
	"github.com/p-blackswan/superclaw/internal/health"
	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/mgmt"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/rulesfile"
	"github.com/p-blackswan/superclaw/internal/scheduler"
	slackpkg "github.com/p-blackswan/superclaw/internal/slack"
	"github.com/p-blackswan/superclaw/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Str("db_path", cfg.DBPath).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Bool("scheduler_enabled", cfg.SchedulerEnabled).
		Msg("starting superclaw")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	fallback := routing.Fallback{Agent: cfg.FallbackAgent, Notify: cfg.FallbackNotify}
	porterFallback := cfg.PorterFallback()

	if cfg.RulesFile != "" {
		file, err := rulesfile.Load(cfg.RulesFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RulesFile).Msg("failed to load rules file")
		}
		seeded, err := file.Seed(ctx, st)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed store from rules file")
		}
		logger.Info().
			Str("path", cfg.RulesFile).
			Bool("seeded", seeded).
			Int("rules", len(file.Rules)).
			Int("agents", len(file.Agents)).
			Msg("rules file loaded")
		fallback, porterFallback = file.Fallbacks(fallback, porterFallback)
	}

	m := metrics.New()
	router := routing.NewMessageRouter(st, fallback, logger)
	porter := routing.NewPorter(st, porterFallback, logger)
	svc := dispatch.New(router, porter, st, m, logger)

	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(st))

	var wg sync.WaitGroup

	// Slack Socket Mode (optional, only if tokens provided)
	var poster *slackpkg.Poster
	if cfg.SlackEnabled() {
		client := slackpkg.NewClient(cfg.SlackBotToken, cfg.SlackAppToken)
		poster = slackpkg.NewPoster(client, slackpkg.DefaultPosterConfig(), m, logger)
		handler := slackpkg.NewHandler(slackpkg.HandlerDeps{
			Router:          svc,
			Agents:          st,
			Poster:          poster,
			Channels:        slackpkg.NewChannelNames(client, cfg.SlackChannelCache, logger),
			Middleware:      slackpkg.NewMiddleware(logger, cfg.SlackUserRateLimit, time.Minute),
			AllowedChannels: cfg.SlackAllowedChannelList(),
			Metrics:         m,
		}, logger)
		app := slackpkg.NewApp(client, handler, logger)

		logger.Info().Msg("Slack Socket Mode enabled")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Slack Socket Mode error")
			}
		}()
	} else {
		logger.Info().Msg("Slack not configured, running in API-only mode")
	}

	var sched *scheduler.Scheduler
	deps := mgmt.Deps{
		Store:    st,
		Dispatch: svc,
		Checker:  checker,
		Metrics:  m,
		Runtime: &mgmt.RuntimeConfig{
			Environment:    cfg.Environment,
			LogLevel:       cfg.LogLevel,
			MgmtListenAddr: cfg.MgmtListenAddr,
			RateLimitRPS:   cfg.MgmtRateLimitRPS,
			RateLimitBurst: cfg.MgmtRateLimitBurst,
			AuthMode:       cfg.MgmtAuthMode,
			SlackEnabled:   cfg.SlackEnabled(),
			SchedulerOn:    cfg.SchedulerEnabled,
		},
	}
	if cfg.SchedulerEnabled {
		var dispatcher scheduler.Dispatcher
		if poster != nil {
			dispatcher = poster
		}
		sched = scheduler.New(st, svc, dispatcher, m, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start scheduler")
		}
		deps.Scheduler = sched
	}

	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
			JWTIssuer: cfg.MgmtJWTIssuer,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins:  cfg.MgmtCORSOrigins,
		TLSCert:      cfg.MgmtTLSCert,
		TLSKey:       cfg.MgmtTLSKey,
		ReadTimeout:  cfg.MgmtReadTimeout,
		WriteTimeout: cfg.MgmtWriteTimeout,
	}, deps, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	// Periodic cleanup of routing history and finished tasks
	wg.Add(1)
	go func() {
		defer wg.Done()
		runRetention(ctx, st, cfg, logger)
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if sched != nil {
		sched.Stop()
	}

	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("superclaw stopped")
}

func runRetention(ctx context.Context, st *store.Store, cfg *config.Config, logger zerolog.Logger) {
	if cfg.RetentionInterval <= 0 {
		return
	}
	policy := store.RetentionPolicy{
		RoutingLog: cfg.RoutingLogRetention,
		DoneTasks:  cfg.DoneTaskRetention,
	}
	ticker := time.NewTicker(cfg.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := st.RunRetention(ctx, policy)
			if err != nil {
				logger.Error().Err(err).Msg("retention run failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int64("removed", removed).Msg("retention cleanup")
			}
		}
	}
}
