// Package rulesfile loads routing rules, agent definitions and scheduled jobs
// from a YAML or JSON file. Values may reference environment variables via
// ${VAR}, ${VAR:-default} or $VAR.
package rulesfile

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/superclaw/internal/routing"
	"github.com/p-blackswan/superclaw/internal/store"
)

// File is the top-level document. JSON is valid YAML, so rules files
// exported by the dashboard load unchanged.
type File struct {
	Fallback routing.Fallback          `yaml:"fallback"`
	Porter   PorterSettings            `yaml:"porter"`
	Rules    []routing.RoutingRule     `yaml:"rules"`
	Agents   []routing.AgentDefinition `yaml:"agents"`
	Cron     []CronEntry               `yaml:"cron"`
}

// PorterSettings configures task assignment.
type PorterSettings struct {
	FallbackAgent string `yaml:"fallbackAgent"`
}

// CronEntry defines a scheduled message.
type CronEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression, e.g. "@every 5m"
	Message  string `yaml:"message"`
	Channel  string `yaml:"channel"`
	Enabled  *bool  `yaml:"enabled"`
}

// Load reads and parses a rules file, expanding env vars.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rulesfile: read %s: %w", path, err)
	}
	f, err := LoadBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("rulesfile: %s: %w", path, err)
	}
	return f, nil
}

// LoadBytes parses a rules document from bytes.
func LoadBytes(data []byte) (*File, error) {
	expanded := expandEnvVars(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	for i := range f.Rules {
		f.Rules[i] = f.Rules[i].Normalize()
	}
	for i := range f.Agents {
		f.Agents[i] = f.Agents[i].Normalize()
	}
	f.Fallback.Agent = strings.TrimSpace(f.Fallback.Agent)
	f.Porter.FallbackAgent = strings.TrimSpace(f.Porter.FallbackAgent)

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks rules, agents and cron entries.
func (f *File) Validate() error {
	if _, err := f.Snapshot(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(f.Cron))
	for i, c := range f.Cron {
		j := c.job()
		if err := j.Validate(); err != nil {
			return fmt.Errorf("cron[%d]: %w", i, err)
		}
		if _, dup := seen[j.ID]; dup {
			return fmt.Errorf("cron[%d]: duplicate id %s", i, j.ID)
		}
		seen[j.ID] = struct{}{}
	}
	return nil
}

// Snapshot returns the rules and agents as a routing snapshot.
func (f *File) Snapshot() (routing.Snapshot, error) {
	return routing.NewSnapshot(f.Rules, f.Agents)
}

// Fallbacks overlays the file's fallback settings on the given defaults.
// Blank entries in the file leave the defaults in place.
func (f *File) Fallbacks(fallback routing.Fallback, porterFallback string) (routing.Fallback, string) {
	if f.Fallback.Agent != "" {
		fallback = f.Fallback
	}
	if f.Porter.FallbackAgent != "" {
		porterFallback = f.Porter.FallbackAgent
	}
	return fallback, porterFallback
}

func (c CronEntry) job() store.CronJob {
	enabled := true
	if c.Enabled != nil {
		enabled = *c.Enabled
	}
	id := c.ID
	if id == "" {
		id = c.Name
	}
	return store.CronJob{
		ID:       strings.TrimSpace(id),
		Name:     c.Name,
		Schedule: strings.TrimSpace(c.Schedule),
		Message:  c.Message,
		Channel:  c.Channel,
		Enabled:  enabled,
	}
}

// Seeder is the subset of the store used for seeding.
type Seeder interface {
	IsEmpty(ctx context.Context) (bool, error)
	Seed(ctx context.Context, snap routing.Snapshot) error
	CreateCronJob(ctx context.Context, j store.CronJob) (store.CronJob, error)
}

// Seed writes the file's contents into an empty store. It returns false
// without writing anything when the store already holds rules or agents.
func (f *File) Seed(ctx context.Context, s Seeder) (bool, error) {
	empty, err := s.IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	if !empty {
		return false, nil
	}

	snap, err := f.Snapshot()
	if err != nil {
		return false, err
	}
	if err := s.Seed(ctx, snap); err != nil {
		return false, err
	}
	for _, c := range f.Cron {
		if _, err := s.CreateCronJob(ctx, c.job()); err != nil {
			return true, fmt.Errorf("seed cron %s: %w", c.Name, err)
		}
	}
	return true, nil
}

// envVarPattern matches ${VAR_NAME}, ${VAR_NAME:-default} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces env references with their values. Missing vars
// without a default become empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")

		def := ""
		if i := strings.Index(name, ":-"); i >= 0 {
			name, def = name[:i], name[i+2:]
		}
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		return def
	})
}
