package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Persistence
	DBPath    string `envconfig:"SUPERCLAW_DB_PATH" default:"superclaw.db"`
	RulesFile string `envconfig:"SUPERCLAW_RULES_FILE"` // optional YAML/JSON seed for an empty store

	// Routing
	FallbackAgent       string `envconfig:"SUPERCLAW_FALLBACK_AGENT" default:"general"`
	FallbackNotify      bool   `envconfig:"SUPERCLAW_FALLBACK_NOTIFY" default:"false"`
	PorterFallbackAgent string `envconfig:"SUPERCLAW_PORTER_FALLBACK_AGENT"` // defaults to FallbackAgent

	// Retention
	RoutingLogRetention time.Duration `envconfig:"SUPERCLAW_ROUTING_LOG_RETENTION" default:"720h"`
	DoneTaskRetention   time.Duration `envconfig:"SUPERCLAW_DONE_TASK_RETENTION" default:"168h"`
	RetentionInterval   time.Duration `envconfig:"SUPERCLAW_RETENTION_INTERVAL" default:"1h"`

	// Scheduler
	SchedulerEnabled bool `envconfig:"SUPERCLAW_SCHEDULER_ENABLED" default:"true"`

	// Slack (optional; the control plane starts without Slack in API-only mode)
	SlackBotToken        string `envconfig:"SUPERCLAW_SLACK_BOT_TOKEN"`
	SlackAppToken        string `envconfig:"SUPERCLAW_SLACK_APP_TOKEN"`        // xapp- token for Socket Mode
	SlackAllowedChannels string `envconfig:"SUPERCLAW_SLACK_ALLOWED_CHANNELS"` // comma-separated channel IDs
	SlackUserRateLimit   int    `envconfig:"SUPERCLAW_SLACK_USER_RATE_LIMIT" default:"20"` // messages per minute per user
	SlackChannelCache    int    `envconfig:"SUPERCLAW_SLACK_CHANNEL_CACHE" default:"512"`

	// Management API
	MgmtListenAddr     string        `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string        `envconfig:"MGMT_AUTH_MODE" default:"api-key"` // none | api-key | jwt
	MgmtAPIKey         string        `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string        `envconfig:"MGMT_JWT_SECRET"`
	MgmtJWTIssuer      string        `envconfig:"MGMT_JWT_ISSUER" default:"superclaw"`
	MgmtRateLimitRPS   int           `envconfig:"MGMT_RATE_LIMIT_RPS" default:"100"`
	MgmtRateLimitBurst int           `envconfig:"MGMT_RATE_LIMIT_BURST" default:"200"`
	MgmtTLSCert        string        `envconfig:"MGMT_TLS_CERT"`
	MgmtTLSKey         string        `envconfig:"MGMT_TLS_KEY"`
	MgmtCORSOrigins    string        `envconfig:"MGMT_CORS_ORIGINS"`
	MgmtReadTimeout    time.Duration `envconfig:"MGMT_READ_TIMEOUT" default:"15s"`
	MgmtWriteTimeout   time.Duration `envconfig:"MGMT_WRITE_TIMEOUT" default:"15s"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// SlackAllowedChannelList returns the parsed list of allowed Slack channel IDs.
// Returns nil if not configured (fail-closed: only DMs and mentions are handled).
func (c *Config) SlackAllowedChannelList() []string {
	return splitList(c.SlackAllowedChannels)
}

// CORSOriginList returns the parsed list of allowed CORS origins.
func (c *Config) CORSOriginList() []string {
	return splitList(c.MgmtCORSOrigins)
}

// TLSEnabled returns true if a certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.MgmtTLSCert != "" && c.MgmtTLSKey != ""
}

// PorterFallback returns the agent Porter assigns when no handoff rule matches.
func (c *Config) PorterFallback() string {
	if c.PorterFallbackAgent != "" {
		return c.PorterFallbackAgent
	}
	return c.FallbackAgent
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.MgmtAuthMode {
	case "none":
	case "api-key":
		if c.MgmtAPIKey == "" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key")
		}
	case "jwt":
		if len(c.MgmtJWTSecret) < 32 {
			return fmt.Errorf("MGMT_JWT_SECRET must be at least 32 bytes when MGMT_AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q (want none, api-key or jwt)", c.MgmtAuthMode)
	}
	if strings.TrimSpace(c.FallbackAgent) == "" {
		return fmt.Errorf("SUPERCLAW_FALLBACK_AGENT must not be empty")
	}
	if (c.MgmtTLSCert == "") != (c.MgmtTLSKey == "") {
		return fmt.Errorf("MGMT_TLS_CERT and MGMT_TLS_KEY must be set together")
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
