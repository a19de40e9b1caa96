// Package config loads finauto settings from config.yaml, a .env file and
// FINAUTO_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Mail      MailConfig      `yaml:"mail"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds bearer-token settings for the HTTP surface.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// MailConfig holds outbound SMTP settings. An empty host disables email.
type MailConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	From          string        `yaml:"from"`
	FromName      string        `yaml:"from_name"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Retries       int           `yaml:"retries"`     // re-sends when the relay refuses before DATA; 0 disables
	RetryDelay    time.Duration `yaml:"retry_delay"` // first backoff, doubled each retry
}

// SchedulerConfig holds settings for the periodic sweep.
type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Cron          string        `yaml:"cron"`           // 6-field, seconds first
	Timezone      string        `yaml:"timezone"`       // IANA zone for cron; empty is UTC
	MaxParallel   int           `yaml:"max_parallel"`   // automations processed concurrently
	ActionTimeout time.Duration `yaml:"action_timeout"` // per action
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Auth: AuthConfig{Issuer: "finauto"},
		Mail: MailConfig{
			Port:          587,
			FromName:      "finauto",
			Timeout:       20 * time.Second,
			RatePerSecond: 5,
			RetryDelay:    time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			Cron:          "0 */15 * * * *",
			MaxParallel:   4,
			ActionTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
// Environment overrides are applied on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads ".env" (if present) into the environment, then tries
// "config.yaml" from the current directory. If the file does not exist,
// defaults plus environment overrides are returned.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			if err := cfg.applyEnv(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"FINAUTO_DATABASE_URL":  &c.Database.URL,
		"FINAUTO_JWT_SECRET":    &c.Auth.JWTSecret,
		"FINAUTO_SMTP_HOST":     &c.Mail.Host,
		"FINAUTO_SMTP_USERNAME": &c.Mail.Username,
		"FINAUTO_SMTP_PASSWORD": &c.Mail.Password,
		"FINAUTO_SMTP_FROM":     &c.Mail.From,
		"FINAUTO_LOG_LEVEL":     &c.Log.Level,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"FINAUTO_PORT":      &c.Server.Port,
		"FINAUTO_SMTP_PORT": &c.Mail.Port,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level; unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
