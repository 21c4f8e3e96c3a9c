package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected default addr: %q", cfg.HTTPAddr)
	}
	if cfg.RateBurst != 50 || cfg.RatePerSec != 25 {
		t.Fatalf("unexpected rate defaults: %d/%d", cfg.RateBurst, cfg.RatePerSec)
	}
	if cfg.MaxHistoryDays != "" {
		t.Fatalf("expected empty history window by default, got %q", cfg.MaxHistoryDays)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CLINIC_HTTP_ADDR", ":9090")
	t.Setenv("CLINIC_SYNC_MAX_HISTORY_DAYS", "30")
	t.Setenv("CLINIC_S3_BUCKET", "audit-archive")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("unexpected addr: %q", cfg.HTTPAddr)
	}
	if cfg.MaxHistoryDays != "30" {
		t.Fatalf("unexpected history days: %q", cfg.MaxHistoryDays)
	}
	if cfg.S3Bucket != "audit-archive" {
		t.Fatalf("unexpected bucket: %q", cfg.S3Bucket)
	}
}
