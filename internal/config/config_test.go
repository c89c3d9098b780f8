package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Service.Port)
	}
	if cfg.Service.BatchLimit != 100 {
		t.Errorf("BatchLimit = %d, want 100", cfg.Service.BatchLimit)
	}
	if cfg.Enrichment.Mode != ModeAsync {
		t.Errorf("Mode = %q, want async", cfg.Enrichment.Mode)
	}
	if cfg.Enrichment.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Enrichment.MaxAttempts)
	}
	if cfg.Enrichment.ReviewThreshold != 0.6 {
		t.Errorf("ReviewThreshold = %v, want 0.6", cfg.Enrichment.ReviewThreshold)
	}
	if cfg.Enrichment.JobTTL != 30*24*time.Hour {
		t.Errorf("JobTTL = %v, want 720h", cfg.Enrichment.JobTTL)
	}
	if cfg.Sweeper.Interval != time.Hour {
		t.Errorf("Sweeper.Interval = %v, want 1h", cfg.Sweeper.Interval)
	}
	if cfg.Redis.Stream != "archgee:jobs:moderation" {
		t.Errorf("Stream = %q", cfg.Redis.Stream)
	}
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	path := writeConfigFile(t, `
service:
  port: 9000
  batch_limit: 50
enrichment:
  mode: inline
  max_attempts: 5
  backoff_base: 10s
providers:
  max_input_chars: 500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Service.Port)
	}
	if cfg.Service.BatchLimit != 50 {
		t.Errorf("BatchLimit = %d, want 50", cfg.Service.BatchLimit)
	}
	if cfg.Enrichment.Mode != ModeInline {
		t.Errorf("Mode = %q, want inline", cfg.Enrichment.Mode)
	}
	if cfg.Enrichment.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Enrichment.MaxAttempts)
	}
	if cfg.Enrichment.BackoffBase != 10*time.Second {
		t.Errorf("BackoffBase = %v, want 10s", cfg.Enrichment.BackoffBase)
	}
	if cfg.Providers.MaxInputChars != 500 {
		t.Errorf("MaxInputChars = %d, want 500", cfg.Providers.MaxInputChars)
	}

	// Unset sections still receive defaults.
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENGINE_PORT", "7070")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("INGEST_API_TOKEN", "secret-token")
	t.Setenv("ENRICHMENT_MODE", "inline")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Service.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want env override", cfg.Database.Host)
	}
	if cfg.Auth.IngestToken != "secret-token" {
		t.Errorf("IngestToken = %q", cfg.Auth.IngestToken)
	}
	if cfg.Enrichment.Mode != ModeInline {
		t.Errorf("Mode = %q, want inline", cfg.Enrichment.Mode)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "service: [not a map"},
		{"unknown enrichment mode", "enrichment:\n  mode: eager\n"},
		{"review threshold above one", "enrichment:\n  review_threshold: 1.2\n"},
		{"approve below review", "enrichment:\n  review_threshold: 0.9\n  approve_threshold: 0.5\n"},
		{"port out of range", "service:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "pw",
		Database: "archgee",
		SSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=postgres password=pw dbname=archgee sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
