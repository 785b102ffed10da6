// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"
  token_ttl: "24h"

webhook:
  secret: "hook-secret"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr mismatch: %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path mismatch: %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret mismatch: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL mismatch: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Webhook.Secret != "hook-secret" {
		t.Errorf("Webhook.Secret mismatch: %q", cfg.Webhook.Secret)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level mismatch: %q", cfg.Logging.Level)
	}
}

func TestLoad_DefaultTokenTTL(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "test-secret"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("expected default TTL, got %v", cfg.Auth.TokenTTL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PAPERGATE_TEST_SECRET", "expanded-secret")

	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${PAPERGATE_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("env var not expanded: %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "{{{not yaml")
	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
  token_ttl: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "token_ttl") {
		t.Fatalf("expected token_ttl parse error, got %v", err)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
`,
			wantErr: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
auth:
  jwt_secret: "s"
`,
			wantErr: "database.path",
		},
		{
			name: "missing jwt secret",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
`,
			wantErr: "auth.jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
