package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lifxd/internal/geo"
)

// Config represents the application configuration
type Config struct {
	LIFX            LIFXConfig      `yaml:"lifx"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	Actions         ActionsConfig   `yaml:"actions"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	Webhook         ServerConfig    `yaml:"webhook"`
	Healthcheck     ServerConfig    `yaml:"healthcheck"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Script          string          `yaml:"script"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LIFXConfig contains LIFX cloud API settings
type LIFXConfig struct {
	Token     string   `yaml:"token"`
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"` // HTTP timeout for a single API exchange
	UserAgent string   `yaml:"user_agent"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// ActionsConfig contains action invocation settings
type ActionsConfig struct {
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // Local pacing of action invocations, 0 = unlimited
	Burst        int     `yaml:"burst"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// ServerConfig contains settings for an optional HTTP listener
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// SchedulerConfig contains scheduler settings and statically defined schedules
type SchedulerConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Timezone  string           `yaml:"timezone"`
	Location  *LocationConfig  `yaml:"location"` // required by sun schedules
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// LocationConfig holds coordinates in degrees
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// ScheduleConfig defines one schedule. Exactly one of At, Every or Sun must be set.
type ScheduleConfig struct {
	ID      string         `yaml:"id"`
	At      string         `yaml:"at"`     // "HH:MM" daily
	Every   Duration       `yaml:"every"`  // periodic interval
	Sun     string         `yaml:"sun"`    // dawn, sunrise, noon, sunset or dusk
	Offset  Duration       `yaml:"offset"` // shifts a sun schedule, e.g. "-30m"
	Action  string         `yaml:"action"`
	Args    map[string]any `yaml:"args"`
	Tag     string         `yaml:"tag"`
	Misfire string         `yaml:"misfire"` // "skip" (default) or "run_latest"
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lifxd.sqlite"
	}

	// LIFX defaults
	if cfg.LIFX.BaseURL == "" {
		cfg.LIFX.BaseURL = "https://api.lifx.com/v1/"
	}
	if cfg.LIFX.Timeout == 0 {
		cfg.LIFX.Timeout = Duration(30 * time.Second)
	}

	// Actions default to a burst equal to the rate
	if cfg.Actions.RateLimitRPS > 0 && cfg.Actions.Burst <= 0 {
		cfg.Actions.Burst = int(cfg.Actions.RateLimitRPS)
		if cfg.Actions.Burst < 1 {
			cfg.Actions.Burst = 1
		}
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Webhook defaults
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8080
	}
	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = "0.0.0.0"
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks settings that have no sensible default
func (cfg *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(cfg.LIFX.Token) == "" {
		errs = append(errs, errors.New("lifx.token is required (set it directly or via ${LIFX_TOKEN})"))
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	if loc := cfg.Scheduler.Location; loc != nil {
		if _, err := geo.NewCalculator(loc.Latitude, loc.Longitude); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.location: %w", err))
		}
	}

	seen := make(map[string]bool)
	for i, s := range cfg.Scheduler.Schedules {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: id is required", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true

		if s.Action == "" {
			errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: action is required", i))
		}
		kinds := 0
		for _, set := range []bool{s.At != "", s.Every != 0, s.Sun != ""} {
			if set {
				kinds++
			}
		}
		if kinds != 1 {
			errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: exactly one of at, every or sun must be set", i))
		}
		if s.Sun != "" {
			if !geo.IsEvent(s.Sun) {
				errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: unknown sun event %q", i, s.Sun))
			}
			if cfg.Scheduler.Location == nil {
				errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: sun schedules need scheduler.location", i))
			}
		}
		if s.Every < 0 {
			errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: every must be positive", i))
		}
		switch s.Misfire {
		case "", "skip", "run_latest":
		default:
			errs = append(errs, fmt.Errorf("scheduler.schedules[%d]: unknown misfire policy %q", i, s.Misfire))
		}
	}

	return errors.Join(errs...)
}

// GetShutdownTimeout returns the shutdown timeout as time.Duration
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
