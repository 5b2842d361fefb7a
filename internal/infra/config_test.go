package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig succeeded without GEMINI_API_KEY")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "")
	t.Setenv("JOB_TTL_SECONDS", "")
	t.Setenv("JOB_MAX_ATTEMPTS", "")
	t.Setenv("JOB_RETRY_BASE_MS", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.JobTTL != time.Hour {
		t.Fatalf("JobTTL = %v, want %v", cfg.JobTTL, time.Hour)
	}
	if cfg.JobMaxAttempts != 3 {
		t.Fatalf("JobMaxAttempts = %d, want 3", cfg.JobMaxAttempts)
	}
	if cfg.JobRetryBase != 1500*time.Millisecond {
		t.Fatalf("JobRetryBase = %v, want 1.5s", cfg.JobRetryBase)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %#v, want two localhost defaults", cfg.CORSOrigins)
	}
}

func TestLoadConfigParsesOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "1919")
	t.Setenv("JOB_TTL_SECONDS", "120")
	t.Setenv("JOB_MAX_WORKERS", "8")
	t.Setenv("CORS_ORIGINS", "https://viz.example.com, https://app.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "1919" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "1919")
	}
	if cfg.JobTTL != 2*time.Minute {
		t.Fatalf("JobTTL = %v, want 2m", cfg.JobTTL)
	}
	if cfg.JobMaxWorkers != 8 {
		t.Fatalf("JobMaxWorkers = %d, want 8", cfg.JobMaxWorkers)
	}
	want := []string{"https://viz.example.com", "https://app.example.com"}
	if len(cfg.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %#v, want %#v", cfg.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.CORSOrigins[i] != origin {
			t.Fatalf("CORSOrigins[%d] = %q, want %q", i, cfg.CORSOrigins[i], origin)
		}
	}
}

func TestLoadConfigIgnoresMalformedInt(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("JOB_MAX_ATTEMPTS", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobMaxAttempts != 3 {
		t.Fatalf("JobMaxAttempts = %d, want fallback 3", cfg.JobMaxAttempts)
	}
}
