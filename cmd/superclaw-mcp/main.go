// superclaw-mcp exposes the SuperClaw router to fleet agents over MCP.
//
// Usage:
//
//	superclaw-mcp            # serve over stdio
//	superclaw-mcp version
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/superclaw/internal/config"
	"github.com/p-blackswan/superclaw/internal/dispatch"
	"github.com/p-blackswan/superclaw/internal/mcptools"
	"github.com/p-blackswan/superclaw/internal/metrics"
	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/rulesfile"
	"github.com/p-blackswan/superclaw/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("superclaw-mcp %s\n", version)
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			os.Exit(1)
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// stdout carries the MCP stream, so logs go to stderr.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "mcp").Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	// The main binary owns seeding; only the fallbacks are read here.
	fallback := routing.Fallback{Agent: cfg.FallbackAgent, Notify: cfg.FallbackNotify}
	porterFallback := cfg.PorterFallback()
	if cfg.RulesFile != "" {
		file, err := rulesfile.Load(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("loading rules file: %w", err)
		}
		fallback, porterFallback = file.Fallbacks(fallback, porterFallback)
	}

	router := routing.NewMessageRouter(st, fallback, logger)
	porter := routing.NewPorter(st, porterFallback, logger)
	svc := dispatch.New(router, porter, st, metrics.New(), logger)

	logger.Info().Str("db_path", cfg.DBPath).Msg("serving MCP over stdio")
	return server.ServeStdio(mcptools.NewServer(version, svc, st))
}
