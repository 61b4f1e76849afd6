package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTryAcquireConsumesBurst(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	if !rl.TryAcquire() || !rl.TryAcquire() {
		t.Fatalf("expected burst of 2 tokens")
	}
	if rl.TryAcquire() {
		t.Fatalf("expected bucket to be empty")
	}
}

func TestWaitRefills(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	rl.pollInterval = 5 * time.Millisecond
	if !rl.TryAcquire() {
		t.Fatalf("expected initial token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("expected token after refill, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	rl.pollInterval = 5 * time.Millisecond
	rl.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPerMinute(t *testing.T) {
	rl := PerMinute(60)
	if rl.maxTokens != 60 || rl.refillRate != time.Second {
		t.Fatalf("unexpected limiter: max=%d refill=%v", rl.maxTokens, rl.refillRate)
	}
}
