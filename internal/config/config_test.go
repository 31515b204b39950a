package config

import (
	"testing"
	"time"
)

func TestLoadIncludesBlobDefaults(t *testing.T) {
	t.Setenv("BLOB_BASE_URL", "")
	t.Setenv("BLOB_URL_TTL", "")
	t.Setenv("JOIN_CONCURRENCY", "")

	cfg := Load()
	if cfg.BlobBaseURL != "http://localhost:8080" {
		t.Fatalf("expected default blob base url, got %q", cfg.BlobBaseURL)
	}
	if cfg.BlobURLTTL != 15*time.Minute {
		t.Fatalf("expected default blob url ttl 15m, got %s", cfg.BlobURLTTL)
	}
	if cfg.JoinConcurrency != 8 {
		t.Fatalf("expected default join concurrency 8, got %d", cfg.JoinConcurrency)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("BLOB_URL_TTL", "5m")
	t.Setenv("API_RATE_LIMIT_RPS", "25")
	t.Setenv("API_MAX_IN_FLIGHT_WAIT", "250ms")
	t.Setenv("NATS_STAGED_SUBJECT", "docs.staged.v2")

	cfg := Load()
	if cfg.BlobURLTTL != 5*time.Minute {
		t.Fatalf("expected blob url ttl override 5m, got %s", cfg.BlobURLTTL)
	}
	if cfg.APIRateLimitRPS != 25 {
		t.Fatalf("expected rate limit rps 25, got %d", cfg.APIRateLimitRPS)
	}
	if cfg.APIMaxInFlightWait != 250*time.Millisecond {
		t.Fatalf("expected in-flight wait 250ms, got %s", cfg.APIMaxInFlightWait)
	}
	if cfg.NATSStagedSubject != "docs.staged.v2" {
		t.Fatalf("expected staged subject override, got %q", cfg.NATSStagedSubject)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("BLOB_URL_TTL", "soon")
	t.Setenv("API_RATE_LIMIT_BURST", "many")

	cfg := Load()
	if cfg.BlobURLTTL != 15*time.Minute {
		t.Fatalf("expected fallback ttl on malformed value, got %s", cfg.BlobURLTTL)
	}
	if cfg.APIRateLimitBurst != 0 {
		t.Fatalf("expected fallback burst on malformed value, got %d", cfg.APIRateLimitBurst)
	}
}
