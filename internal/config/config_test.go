// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers defaults, YAML loading, env var expansion, overrides, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.Timeout != 180*time.Second {
		t.Errorf("API.Timeout = %v, want 180s", cfg.API.Timeout)
	}
	if cfg.API.MaxRetries != 3 {
		t.Errorf("API.MaxRetries = %d, want 3", cfg.API.MaxRetries)
	}
	if cfg.Server.ProtocolVersion != "2024-11-05" {
		t.Errorf("Server.ProtocolVersion = %q", cfg.Server.ProtocolVersion)
	}
	if cfg.Server.MaxConcurrentRequests != 10 {
		t.Errorf("Server.MaxConcurrentRequests = %d, want 10", cfg.Server.MaxConcurrentRequests)
	}
	if !cfg.Features.TimeAwareness || !cfg.Features.OntologySupport ||
		!cfg.Features.AsyncMemory || !cfg.Features.SelfImproving || !cfg.Features.AdvancedAnalytics {
		t.Error("all features should default to enabled")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled should default to true")
	}
	if cfg.History.MaxRows != 10000 {
		t.Errorf("History.MaxRows = %d, want 10000", cfg.History.MaxRows)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
api:
  base_url: "https://graph.example.com"
  key: "sk-test"
  key_header: "X-Api-Key"
  key_scheme: ""
  timeout: "90s"
  max_retries: 5
  retry_delay: "2s"
  rate_limit_per_minute: 30

server:
  name: "test-server"
  max_concurrent_requests: 4
  request_timeout: "15s"

features:
  time_awareness: false
  self_improving: false

logging:
  level: "debug"
  format: "json"

history:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://graph.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Key != "sk-test" {
		t.Errorf("API.Key = %q", cfg.API.Key)
	}
	if cfg.API.KeyHeader != "X-Api-Key" {
		t.Errorf("API.KeyHeader = %q", cfg.API.KeyHeader)
	}
	if cfg.API.Timeout != 90*time.Second {
		t.Errorf("API.Timeout = %v, want 90s", cfg.API.Timeout)
	}
	if cfg.API.RetryDelay != 2*time.Second {
		t.Errorf("API.RetryDelay = %v, want 2s", cfg.API.RetryDelay)
	}
	if cfg.Server.Name != "test-server" {
		t.Errorf("Server.Name = %q", cfg.Server.Name)
	}
	if cfg.Server.MaxConcurrentRequests != 4 {
		t.Errorf("Server.MaxConcurrentRequests = %d", cfg.Server.MaxConcurrentRequests)
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("Server.RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Features.TimeAwareness {
		t.Error("Features.TimeAwareness should be disabled")
	}
	if !cfg.Features.OntologySupport {
		t.Error("Features.OntologySupport should keep its default")
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_COGNEE_KEY", "expanded-secret")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
api:
  base_url: "http://localhost:8000"
  key: "${TEST_COGNEE_KEY}"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Key != "expanded-secret" {
		t.Errorf("API.Key = %q, want expanded value", cfg.API.Key)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("COGNEE_API_URL", "https://env.example.com")
	t.Setenv("COGNEE_TIMEOUT", "45")
	t.Setenv("MCP_MAX_CONCURRENT_REQUESTS", "3")
	t.Setenv("FEATURE_ONTOLOGY_SUPPORT", "false")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
api:
  base_url: "https://file.example.com"
  timeout: "120s"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("API.BaseURL = %q, env should win", cfg.API.BaseURL)
	}
	// Bare integer env durations read as seconds.
	if cfg.API.Timeout != 45*time.Second {
		t.Errorf("API.Timeout = %v, want 45s", cfg.API.Timeout)
	}
	if cfg.Server.MaxConcurrentRequests != 3 {
		t.Errorf("Server.MaxConcurrentRequests = %d, want 3", cfg.Server.MaxConcurrentRequests)
	}
	if cfg.Features.OntologySupport {
		t.Error("Features.OntologySupport should be disabled via env")
	}
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	t.Setenv("COGNEE_API_URL", "not a url")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected validation error for invalid base_url")
	}
	if !strings.Contains(err.Error(), "base_url") {
		t.Errorf("error = %v, want mention of base_url", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
api:
  timeout: "ninety seconds"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidate_MaxConcurrent(t *testing.T) {
	cfg := Default()
	cfg.Server.MaxConcurrentRequests = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for max_concurrent_requests = 0")
	}
}

func TestAuthConfigured(t *testing.T) {
	cfg := Default()
	if cfg.AuthConfigured() {
		t.Error("no credentials should mean not configured")
	}
	cfg.API.Key = "sk-x"
	if !cfg.AuthConfigured() {
		t.Error("key should count as configured")
	}
	cfg.API.Key = ""
	cfg.API.Email = "a@b.c"
	cfg.API.Password = "pw"
	if !cfg.AuthConfigured() {
		t.Error("email+password should count as configured")
	}
}

func TestSanitized_MasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.API.Key = "sk-live-abcdefghijklmnop"
	cfg.API.Password = "hunter2"

	s := cfg.Sanitized()
	api := s["api"].(map[string]any)

	if api["key"] == cfg.API.Key {
		t.Error("key must be masked")
	}
	if api["password"] == cfg.API.Password {
		t.Error("password must be masked")
	}
	if !strings.HasPrefix(api["key"].(string), "sk-l") {
		t.Errorf("masked key should keep a short prefix, got %q", api["key"])
	}
}
