// Package config provides YAML-based configuration loading for workcfg.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tallyflow/workcfg/internal/reingest"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the top-level configuration, loaded from workcfg.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Reingest  ReingestConfig  `yaml:"reingest"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the configuration store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite only
}

// HTTPConfig controls the HTTP server started by `workcfg serve`.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	// Timeout bounds a whole reconcile transaction when the caller set no deadline.
	Timeout time.Duration `yaml:"timeout"`
	// VetoRemovedSteps also runs removed workflow step names through the
	// dependency scanner. Off by default.
	VetoRemovedSteps bool `yaml:"veto_removed_steps"`
}

// ReingestConfig holds the fallback schedule for datasources without one.
type ReingestConfig struct {
	DefaultSchedule string `yaml:"default_schedule"`
}

// NotifyConfig holds optional chat webhooks for dependency conflicts.
type NotifyConfig struct {
	SlackWebhookURL     string `yaml:"slack_webhook_url"`
	DiscordWebhookID    string `yaml:"discord_webhook_id"`
	DiscordWebhookToken string `yaml:"discord_webhook_token"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	case DriverPostgres:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.User == "" {
			c.Database.User = "postgres"
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Reconcile.Timeout == 0 {
		c.Reconcile.Timeout = 2 * time.Minute
	}
	if c.Reingest.DefaultSchedule == "" {
		c.Reingest.DefaultSchedule = "*/30 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port %d is out of range", c.HTTP.Port))
	}
	if c.Reconcile.Timeout < 0 {
		errs = append(errs, "reconcile.timeout must not be negative")
	}
	if !reingest.ValidSchedule(c.Reingest.DefaultSchedule) {
		errs = append(errs, fmt.Sprintf("reingest.default_schedule %q is not a 5-field cron expression", c.Reingest.DefaultSchedule))
	}
	if (c.Notify.DiscordWebhookID == "") != (c.Notify.DiscordWebhookToken == "") {
		errs = append(errs, "notify.discord_webhook_id and notify.discord_webhook_token must be set together")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
