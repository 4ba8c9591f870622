// Package config provides centralized configuration loaded from environment
// variables, plus the tunable rules file. Shared by cmd/api and cmd/pcosctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ovaria/pcos-tracker/internal/eligibility"
	"github.com/ovaria/pcos-tracker/internal/prediction"
	"github.com/ovaria/pcos-tracker/internal/reminders"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string        `envconfig:"DATABASE_URL" required:"true"`
	DBPoolMinConns int           `envconfig:"DB_POOL_MIN_CONNS" default:"2"`
	DBPoolMaxConns int           `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMaxLife  time.Duration `envconfig:"DB_POOL_MAX_LIFE" default:"30m"`
	AutoMigrate    bool          `envconfig:"AUTO_MIGRATE" default:"true"`

	// API server
	APIHost     string `envconfig:"API_HOST" default:"0.0.0.0"`
	APIPort     int    `envconfig:"API_PORT" default:"8000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"` // development, staging, production
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// CORS
	CORSAllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`

	// Rate limiting
	RateLimitEnabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`

	// Cache
	CacheEnabled       bool          `envconfig:"CACHE_ENABLED" default:"true"`
	PredictionCacheTTL time.Duration `envconfig:"PREDICTION_CACHE_TTL" default:"10m"`

	// Redis dedup; empty address uses the in-process claimer
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Event publishing; empty URL disables it
	AMQPURL         string `envconfig:"AMQP_URL"`
	DispatchEnabled bool   `envconfig:"DISPATCH_ENABLED" default:"true"`

	// Reminders
	RemindersEnabled bool          `envconfig:"REMINDERS_ENABLED" default:"true"`
	ReminderCron     string        `envconfig:"REMINDER_CRON" default:"0 * * * *"`
	ReminderWorkers  int           `envconfig:"REMINDER_WORKERS" default:"4"`
	ReminderTimeout  time.Duration `envconfig:"REMINDER_TIMEOUT" default:"5m"`

	// Maintenance
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`

	// Rules file; empty uses built-in defaults
	RulesFile string `envconfig:"RULES_FILE"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Hosting platforms set PORT.
	if _, set := os.LookupEnv("API_PORT"); !set {
		if v, ok := os.LookupEnv("PORT"); ok {
			port, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
			}
			cfg.APIPort = port
		}
	}
	return &cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Rules file
// --------------------------------------------------------------------------

// Rules holds the tunable thresholds. Every field is optional in the file;
// missing fields keep their defaults.
type Rules struct {
	Prediction       prediction.Rules   `yaml:"prediction"`
	QuietHoursPolicy eligibility.Policy `yaml:"quiet_hours_policy"`
	Reminders        reminders.Rules    `yaml:"reminders"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() Rules {
	return Rules{
		Prediction:       prediction.DefaultRules(),
		QuietHoursPolicy: eligibility.PolicyOvernightSafe,
		Reminders:        reminders.DefaultRules(),
	}
}

// LoadRules reads a YAML rules file over the defaults. An empty path returns
// the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks every section.
func (r Rules) Validate() error {
	if err := r.Prediction.Validate(); err != nil {
		return fmt.Errorf("prediction: %w", err)
	}
	if _, err := eligibility.ParsePolicy(string(r.QuietHoursPolicy)); err != nil {
		return err
	}
	if err := r.Reminders.Validate(); err != nil {
		return fmt.Errorf("reminders: %w", err)
	}
	return nil
}
