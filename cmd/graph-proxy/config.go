package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/graph-api-client/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config is the proxy configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	Port           string        `yaml:"port"`
	RedisURL       string        `yaml:"redis_url"`
	UserAgent      string        `yaml:"user_agent"`
	AccessToken    string        `yaml:"access_token"`
	BaseURL        string        `yaml:"base_url"`
	RateLimit      float64       `yaml:"rate_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	MaxPages       int           `yaml:"max_pages"`
	LogLevel       string        `yaml:"log_level"`
	LogPretty      bool          `yaml:"log_pretty"`
}

// DefaultConfig returns the proxy defaults. Redis is off unless configured.
func DefaultConfig() Config {
	return Config{
		Port:           "8080",
		UserAgent:      "graph-api-client/0.1.0",
		BaseURL:        "https://graph.facebook.com",
		RequestTimeout: 30 * time.Second,
		MaxPages:       10,
		LogLevel:       "info",
	}
}

// loadConfig builds the configuration from path (may be empty) and the
// environment.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.AccessToken = getEnv("GRAPH_ACCESS_TOKEN", cfg.AccessToken)
	cfg.BaseURL = getEnv("GRAPH_BASE_URL", cfg.BaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = f
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_PAGES: %w", err)
		}
		cfg.MaxPages = n
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_PRETTY: %w", err)
		}
		cfg.LogPretty = b
	}
	return nil
}

func (c Config) validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0 (got %v)", c.RateLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be >= 1 (got %d)", c.MaxPages)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0 (got %v)", c.RequestTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
