package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
port: "9090"
redis_url: redis:6379
user_agent: my-app/2.0
rate_limit: 5
request_timeout: 10s
max_retries: 2
max_pages: 3
log_level: debug
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.RedisURL != "redis:6379" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.RateLimit != 5 {
		t.Errorf("RateLimit = %v, want 5", cfg.RateLimit)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.MaxRetries != 2 || cfg.MaxPages != 3 {
		t.Errorf("MaxRetries/MaxPages = %d/%d, want 2/3", cfg.MaxRetries, cfg.MaxPages)
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.BaseURL)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "port: \"9090\"\nmax_pages: 3\n")
	t.Setenv("PORT", "7070")
	t.Setenv("MAX_PAGES", "20")
	t.Setenv("GRAPH_ACCESS_TOKEN", "secret")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want 7070", cfg.Port)
	}
	if cfg.MaxPages != 20 {
		t.Errorf("MaxPages = %d, want 20", cfg.MaxPages)
	}
	if cfg.AccessToken != "secret" {
		t.Errorf("AccessToken = %q, want secret", cfg.AccessToken)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty = false, want true")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		env      map[string]string
		errorMsg string
	}{
		{name: "unknown field", file: "colour: blue\n", errorMsg: "field colour not found"},
		{name: "bad duration env", env: map[string]string{"REQUEST_TIMEOUT": "soon"}, errorMsg: "REQUEST_TIMEOUT"},
		{name: "bad rate env", env: map[string]string{"RATE_LIMIT": "fast"}, errorMsg: "RATE_LIMIT"},
		{name: "negative retries", file: "max_retries: -1\n", errorMsg: "max_retries must be >= 0"},
		{name: "zero pages", file: "max_pages: 0\n", errorMsg: "max_pages must be >= 1"},
		{name: "unknown log level", env: map[string]string{"LOG_LEVEL": "chatty"}, errorMsg: "unknown log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			_, err := loadConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "open config file") {
		t.Errorf("error = %v, want open config file error", err)
	}
}
