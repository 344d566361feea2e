// Package config parses the automation daemon's YAML configuration and
// applies defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livingstone45/stayspot-sub007/workflow"
)

const (
	defaultLogLevel        = "info"
	defaultAuditDSN        = "file:automation.db?_pragma=journal_mode(WAL)"
	defaultShutdownTimeout = 10 * time.Second
	defaultStepTimeout     = 30 * time.Second
	defaultJobTimeout      = 2 * time.Minute
	defaultPollInterval    = time.Second
	defaultLeaseDuration   = 5 * time.Minute
	defaultMaxAttempts     = 3
	defaultBackoffBase     = 5 * time.Second
	defaultScheduleTimeout = 5 * time.Minute
	defaultScheduleRetries = 0
	defaultCleanupDaysOld  = 7
)

// Logging controls log output format and verbosity.
type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Redis locates the queue backing store. An empty Addr selects the
// in-memory store, for development and tests.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Audit locates the durable audit log.
type Audit struct {
	DSN string `yaml:"dsn"`
}

// Queue tunes the worker framework shared by all three queues.
type Queue struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	CleanupDays   int           `yaml:"cleanup_days"`
}

// ScheduledJob is one recurring publication of a trigger event.
type ScheduledJob struct {
	Name    string         `yaml:"name"`
	Cron    string         `yaml:"cron"`
	Trigger string         `yaml:"trigger"`
	Data    map[string]any `yaml:"data"`
}

// Scheduler tunes the recurring job runner shared by every schedule.
type Scheduler struct {
	JobTimeout time.Duration `yaml:"job_timeout"`
	JobRetries int           `yaml:"job_retries"`
}

// Config is the full daemon configuration.
type Config struct {
	Logging   Logging        `yaml:"logging"`
	Redis     Redis          `yaml:"redis"`
	Audit     Audit          `yaml:"audit"`
	Queue     Queue          `yaml:"queue"`
	Engine    Engine         `yaml:"engine"`
	Scheduler Scheduler      `yaml:"scheduler"`
	Schedules []ScheduledJob `yaml:"schedules"`

	// Workflows declared in config run alongside the built-in definitions.
	Workflows []workflow.Definition `yaml:"workflows"`
	// Bindings maps trigger names to workflow ids, merged over the
	// built-in binding table.
	Bindings map[string][]string `yaml:"bindings"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Engine tunes workflow execution.
type Engine struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// Parse decodes YAML, applies defaults and env overrides, and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a config file. A missing path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Config{}
		cfg.applyDefaults()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Audit.DSN == "" {
		c.Audit.DSN = defaultAuditDSN
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultPollInterval
	}
	if c.Queue.LeaseDuration <= 0 {
		c.Queue.LeaseDuration = defaultLeaseDuration
	}
	if c.Queue.JobTimeout <= 0 {
		c.Queue.JobTimeout = defaultJobTimeout
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultMaxAttempts
	}
	if c.Queue.BackoffBase <= 0 {
		c.Queue.BackoffBase = defaultBackoffBase
	}
	if c.Queue.CleanupDays <= 0 {
		c.Queue.CleanupDays = defaultCleanupDaysOld
	}
	if c.Engine.StepTimeout <= 0 {
		c.Engine.StepTimeout = defaultStepTimeout
	}
	if c.Scheduler.JobTimeout <= 0 {
		c.Scheduler.JobTimeout = defaultScheduleTimeout
	}
	if c.Scheduler.JobRetries < 0 {
		c.Scheduler.JobRetries = defaultScheduleRetries
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "automation:"
	}
	if len(c.Schedules) == 0 {
		c.Schedules = DefaultSchedules()
	}
}

// applyEnv lets deployment environments override connection details
// without editing the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("AUTOMATION_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("AUTOMATION_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AUTOMATION_AUDIT_DSN"); v != "" {
		c.Audit.DSN = v
	}
	if v := os.Getenv("AUTOMATION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// DefaultSchedules publishes the periodic system triggers that drive
// recurring workflows.
func DefaultSchedules() []ScheduledJob {
	return []ScheduledJob{
		{Name: "daily-maintenance", Cron: "0 2 * * *", Trigger: "system.daily"},
		{Name: "weekly-reporting", Cron: "0 3 * * 1", Trigger: "system.weekly"},
		{Name: "monthly-billing", Cron: "0 4 1 * *", Trigger: "system.monthly"},
	}
}

// Validate rejects configurations the daemon could not start with.
func (c Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}

	seen := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("config: schedule %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("config: duplicate schedule name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Cron == "" {
			return fmt.Errorf("config: schedule %q has no cron expression", s.Name)
		}
		if s.Trigger == "" {
			return fmt.Errorf("config: schedule %q has no trigger", s.Name)
		}
	}

	for _, def := range c.Workflows {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for trigger, ids := range c.Bindings {
		if trigger == "" {
			return fmt.Errorf("config: binding with empty trigger name")
		}
		if len(ids) == 0 {
			return fmt.Errorf("config: binding %q names no workflows", trigger)
		}
	}
	return nil
}
