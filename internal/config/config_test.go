package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validConfig = `{
  "server": {"port": "9090", "environment": "test"},
  "postgres": {"dsn": "host=localhost"},
  "beta": {"program_cap": 50},
  "waves": [
    {"number": 0, "max_seats": 10, "price_usd": 49.0},
    {"number": 1, "max_seats": 20, "price_usd": 79.0},
    {"number": 2, "max_seats": 0, "price_usd": 99.0}
  ],
  "rate_limit": {
    "store": "memory",
    "rules": [
      {"name": "beta_validate", "limit": 10, "window_ms": 60000, "fail_mode": "closed"}
    ]
  }
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Server.Port)
	}
	if len(cfg.Waves) != 3 {
		t.Fatalf("expected 3 waves, got %d", len(cfg.Waves))
	}

	rule := cfg.Rule("beta_validate")
	if rule == nil {
		t.Fatal("expected beta_validate rule")
	}
	if rule.Window() != time.Minute {
		t.Fatalf("expected 1m window, got %v", rule.Window())
	}
	if cfg.Rule("nonexistent") != nil {
		t.Fatal("unknown rule name should return nil")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"waves": [{"number": 0, "max_seats": 0, "price_usd": 0}]}`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Auth.ExpiryHours != 24 {
		t.Fatalf("expected default expiry 24h, got %d", cfg.Auth.ExpiryHours)
	}
	if cfg.Beta.ProgramCap != 50 {
		t.Fatalf("expected default program cap 50, got %d", cfg.Beta.ProgramCap)
	}
	if cfg.RateLimit.Store != "memory" {
		t.Fatalf("expected default store memory, got %s", cfg.RateLimit.Store)
	}
}

func TestSecretsComeFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("POSTGRES_DSN", "host=envhost")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatal("JWT secret should come from the environment")
	}
	if cfg.Postgres.DSN != "host=envhost" {
		t.Fatal("POSTGRES_DSN should override the config file")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "no waves",
			body:    `{"waves": []}`,
			wantErr: "at least one wave",
		},
		{
			name: "waves out of order",
			body: `{"waves": [
				{"number": 1, "max_seats": 10, "price_usd": 49},
				{"number": 0, "max_seats": 0, "price_usd": 99}
			]}`,
			wantErr: "out of order",
		},
		{
			name: "unbounded wave not last",
			body: `{"waves": [
				{"number": 0, "max_seats": 0, "price_usd": 49},
				{"number": 1, "max_seats": 10, "price_usd": 99}
			]}`,
			wantErr: "unbounded",
		},
		{
			name:    "negative price",
			body:    `{"waves": [{"number": 0, "max_seats": 0, "price_usd": -1}]}`,
			wantErr: "negative price",
		},
		{
			name: "rule without name",
			body: `{
				"waves": [{"number": 0, "max_seats": 0, "price_usd": 0}],
				"rate_limit": {"rules": [{"limit": 10, "window_ms": 1000}]}
			}`,
			wantErr: "empty name",
		},
		{
			name: "bad fail mode",
			body: `{
				"waves": [{"number": 0, "max_seats": 0, "price_usd": 0}],
				"rate_limit": {"rules": [{"name": "x", "limit": 10, "window_ms": 1000, "fail_mode": "maybe"}]}
			}`,
			wantErr: "fail_mode",
		},
		{
			name: "unknown store",
			body: `{
				"waves": [{"number": 0, "max_seats": 0, "price_usd": 0}],
				"rate_limit": {"store": "etcd"}
			}`,
			wantErr: "rate limit store",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
