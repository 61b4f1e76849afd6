package configs

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_RETENTION", "90m")
	if got := getEnvDuration("TEST_RETENTION", time.Hour); got != 90*time.Minute {
		t.Fatalf("expected 90m, got %v", got)
	}

	t.Setenv("TEST_RETENTION", "not-a-duration")
	if got := getEnvDuration("TEST_RETENTION", time.Hour); got != time.Hour {
		t.Fatalf("expected fallback 1h, got %v", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_TYPES", " Application/PDF , image/png,,")
	got := getEnvList("TEST_TYPES", nil)
	if len(got) != 2 || got[0] != "application/pdf" || got[1] != "image/png" {
		t.Fatalf("unexpected list: %v", got)
	}

	t.Setenv("TEST_TYPES", " , ")
	got = getEnvList("TEST_TYPES", []string{"image/jpeg"})
	if len(got) != 1 || got[0] != "image/jpeg" {
		t.Fatalf("expected default list, got %v", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Cleanup(applyDefaults)
	t.Setenv("MAX_BILLS_PER_USER", "")
	t.Setenv("BILL_RETENTION", "")
	t.Setenv("MAX_UPLOAD_MB", "10")
	applyDefaults()

	if MAX_BILLS_PER_USER != 4 {
		t.Fatalf("expected quota 4, got %d", MAX_BILLS_PER_USER)
	}
	if BILL_RETENTION != 24*time.Hour {
		t.Fatalf("expected 24h retention, got %v", BILL_RETENTION)
	}
	if MaxUploadBytes() != 10<<20 {
		t.Fatalf("expected 10MB cap, got %d", MaxUploadBytes())
	}
}
