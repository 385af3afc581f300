package domain

import (
	"testing"
	"time"
)

func TestResponseStatusTerminal(t *testing.T) {
	if ResponsePending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
	for _, s := range []ResponseStatus{ResponseAccepted, ResponseDeclined, ResponseIgnored, ResponseExpired} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
}

func TestResponseLatencyPrefersNotificationTime(t *testing.T) {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	notified := start.Add(5 * time.Minute)

	a := Assignment{PhaseStartedAt: start, NotifiedAt: &notified}
	if got := ResponseLatency(a, notified.Add(90*time.Second)); got != 90 {
		t.Fatalf("latency = %v, want 90", got)
	}

	a.NotifiedAt = nil
	if got := ResponseLatency(a, start.Add(2*time.Minute)); got != 120 {
		t.Fatalf("fallback latency = %v, want 120", got)
	}
}

func TestResponseLatencyClampsNegative(t *testing.T) {
	start := time.Now().UTC()
	a := Assignment{PhaseStartedAt: start}
	if got := ResponseLatency(a, start.Add(-time.Minute)); got != 0 {
		t.Fatalf("negative latency must clamp to 0, got %v", got)
	}
}
