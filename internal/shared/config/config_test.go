package config

import (
	"testing"
	"time"
)

func TestLoadSignupDefaults(t *testing.T) {
	t.Setenv("SIGNUP_UPLOAD_TRANSPORT", "")
	t.Setenv("SIGNUP_TICK_INTERVAL", "")
	t.Setenv("SIGNUP_NOTICE_TTL", "")

	cfg := Load()
	if cfg.Signup.UploadTransport != "simulated" {
		t.Fatalf("expected simulated transport, got %q", cfg.Signup.UploadTransport)
	}
	if cfg.Signup.TickIncrement != 10 {
		t.Fatalf("expected increment 10, got %d", cfg.Signup.TickIncrement)
	}
	if cfg.Signup.NoticeTTL != 5*time.Second {
		t.Fatalf("expected notice ttl 5s, got %s", cfg.Signup.NoticeTTL)
	}
	if cfg.Signup.MaxFileBytes != 10<<20 {
		t.Fatalf("expected 10MB limit, got %d", cfg.Signup.MaxFileBytes)
	}
}

func TestLoadSignupOverrides(t *testing.T) {
	t.Setenv("SIGNUP_UPLOAD_TRANSPORT", "STORE")
	t.Setenv("SIGNUP_TICK_INTERVAL", "50ms")
	t.Setenv("SIGNUP_TICK_INCREMENT", "25")
	t.Setenv("SIGNUP_SESSION_TTL", "not-a-duration")

	cfg := Load()
	if cfg.Signup.UploadTransport != "store" {
		t.Fatalf("expected store transport, got %q", cfg.Signup.UploadTransport)
	}
	if cfg.Signup.TickInterval != 50*time.Millisecond {
		t.Fatalf("expected 50ms tick, got %s", cfg.Signup.TickInterval)
	}
	if cfg.Signup.TickIncrement != 25 {
		t.Fatalf("expected increment 25, got %d", cfg.Signup.TickIncrement)
	}
	if cfg.Signup.SessionTTL != 2*time.Hour {
		t.Fatalf("expected fallback session ttl, got %s", cfg.Signup.SessionTTL)
	}
}
