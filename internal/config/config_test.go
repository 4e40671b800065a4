package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-collectord
database:
  host: localhost
  port: 5432
  name: reach_test
  user: testuser
  password: testpass
providers:
  finnhub:
    api_key: fh-key
    quota: 60
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-collectord" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-collectord")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if cfg.Providers.Finnhub.APIKey != "fh-key" {
		t.Errorf("Providers.Finnhub.APIKey = %q, want %q", cfg.Providers.Finnhub.APIKey, "fh-key")
	}
	if cfg.Providers.Finnhub.Quota != 60 {
		t.Errorf("Providers.Finnhub.Quota = %d, want 60", cfg.Providers.Finnhub.Quota)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DART_KEY", "dart-secret")

	yaml := `
instance:
  id: test-collectord
database:
  host: localhost
  name: reach_test
  user: testuser
  password: testpass
providers:
  dart:
    api_key: ${TEST_DART_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Providers.Dart.APIKey != "dart-secret" {
		t.Errorf("Providers.Dart.APIKey = %q, want %q", cfg.Providers.Dart.APIKey, "dart-secret")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-collectord
database:
  host: localhost
  name: reach_test
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Providers.Finnhub.BaseURL != DefaultFinnhubBaseURL {
		t.Errorf("Finnhub.BaseURL = %q, want default %q", cfg.Providers.Finnhub.BaseURL, DefaultFinnhubBaseURL)
	}
	if cfg.Providers.Finnhub.Quota != DefaultFinnhubQuota {
		t.Errorf("Finnhub.Quota = %d, want default %d", cfg.Providers.Finnhub.Quota, DefaultFinnhubQuota)
	}
	if cfg.Providers.TwelveData.Quota != DefaultTwelveDataQuota {
		t.Errorf("TwelveData.Quota = %d, want default %d", cfg.Providers.TwelveData.Quota, DefaultTwelveDataQuota)
	}
	if cfg.Providers.Dart.QuotaInterval != DefaultQuotaInterval {
		t.Errorf("Dart.QuotaInterval = %v, want default %v", cfg.Providers.Dart.QuotaInterval, DefaultQuotaInterval)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Collector.Concurrency != DefaultConcurrency {
		t.Errorf("Collector.Concurrency = %d, want default %d", cfg.Collector.Concurrency, DefaultConcurrency)
	}
	if cfg.Collector.DefaultWindowDays != DefaultWindowDays {
		t.Errorf("Collector.DefaultWindowDays = %d, want default %d", cfg.Collector.DefaultWindowDays, DefaultWindowDays)
	}
	if len(cfg.Collector.USTickers) == 0 {
		t.Error("Collector.USTickers should default to the sample universe")
	}
	if cfg.Scheduler.KoreaCron != DefaultKoreaCron {
		t.Errorf("Scheduler.KoreaCron = %q, want default %q", cfg.Scheduler.KoreaCron, DefaultKoreaCron)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultServerPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() ServiceConfig {
		cfg := ServiceConfig{
			Instance: InstanceConfig{ID: "test"},
			Database: DBConfig{Host: "localhost", Name: "db", User: "u", Password: "p"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ServiceConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *ServiceConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *ServiceConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing database host",
			mutate:  func(c *ServiceConfig) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "missing database password",
			mutate:  func(c *ServiceConfig) { c.Database.Password = "" },
			wantErr: "database.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *ServiceConfig) { c.Database.MinConns = 20 },
			wantErr: "database.min_conns must not exceed max_conns",
		},
		{
			name:    "zero provider quota",
			mutate:  func(c *ServiceConfig) { c.Providers.KRX.Quota = -1 },
			wantErr: "providers.krx.quota must be >= 1",
		},
		{
			name:    "negative quota interval",
			mutate:  func(c *ServiceConfig) { c.Providers.Dart.QuotaInterval = -time.Second },
			wantErr: "providers.dart.quota_interval must be positive",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *ServiceConfig) { c.Collector.Concurrency = -1 },
			wantErr: "collector.concurrency must be >= 1",
		},
		{
			name:    "bad server port",
			mutate:  func(c *ServiceConfig) { c.Server.Port = 70000 },
			wantErr: "server.port must be in 1-65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
