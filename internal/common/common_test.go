package common

import (
	"errors"
	"testing"
)

func TestServerStateTransitions(t *testing.T) {
	s := NewServerState()
	if s.Status() != StatusWarming {
		t.Fatalf("expected warming, got %s", s.Status())
	}
	if !s.MarkReady() {
		t.Fatalf("expected first MarkReady to transition")
	}
	if s.MarkReady() {
		t.Fatalf("expected second MarkReady to be a no-op")
	}
	if s.Status() != StatusReady {
		t.Fatalf("expected ready, got %s", s.Status())
	}
}

func TestRequestContextAccumulatesTokens(t *testing.T) {
	rc := NewRequestContext("req-1", "user-1")

	rc.StartStep("analyze")
	rc.EndStep("success", &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, nil)
	rc.AddTokens(&TokenUsage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2})
	rc.StartStep("persist")
	rc.EndStep("failed", nil, errors.New("boom"))

	if rc.TotalTokens.TotalTokens != 17 {
		t.Fatalf("expected 17 tokens, got %d", rc.TotalTokens.TotalTokens)
	}
	if len(rc.Steps) != 2 || rc.Steps[1].Error != "boom" {
		t.Fatalf("unexpected steps: %+v", rc.Steps)
	}

	summary := rc.GetSummary()
	if summary.RequestID != "req-1" || summary.StepCount != 2 || summary.Tokens.TotalTokens != 17 {
		t.Fatalf("unexpected summary: %v", summary)
	}
}

func TestNewRequestContextGeneratesID(t *testing.T) {
	rc := NewRequestContext("", "user-1")
	if len(rc.RequestID) != 36 {
		t.Fatalf("expected uuid request id, got %q", rc.RequestID)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int]string{7: "7", 999: "999", 1234: "1,234", 123456: "123,456", 1234567: "1,234,567", -4500: "-4,500"}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Fatalf("formatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}
