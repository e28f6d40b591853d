package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.RecordSessionClosed()
	m.RecordNavigate()
	m.RecordQuery()
	m.RecordQuery()
	m.RecordAction(true, 100*time.Millisecond)
	m.RecordAction(false, 300*time.Millisecond)

	snap := m.Snapshot()
	if snap.SessionsCreated != 2 || snap.SessionsClosed != 1 || snap.ActiveSessions != 1 {
		t.Fatalf("unexpected session counters: %+v", snap)
	}
	if snap.NavigateCount != 1 || snap.QueryCount != 2 {
		t.Fatalf("unexpected query counters: %+v", snap)
	}
	if snap.ActionCount != 2 || snap.ActionSuccessCount != 1 || snap.ActionFailureCount != 1 {
		t.Fatalf("unexpected action counters: %+v", snap)
	}
	if snap.AverageActionLatency != 200*time.Millisecond {
		t.Fatalf("expected 200ms average latency, got %v", snap.AverageActionLatency)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionCreated()
	m.RecordAction(true, time.Second)
	if snap := m.Snapshot(); snap.ActionCount != 0 {
		t.Fatalf("nil metrics should snapshot to zero, got %+v", snap)
	}
}

func TestErrorFormatting(t *testing.T) {
	plain := NewError("click", "no element matches #login")
	if got := plain.Error(); got != "driver click: no element matches #login" {
		t.Fatalf("unexpected message: %q", got)
	}

	wrapped := WrapError("wait_visible", "timeout waiting for .spinner", ErrTimeout)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Fatal("wrapped error should match its cause")
	}
	if !IsDriverError(wrapped) {
		t.Fatal("wrapped error should classify as a driver error")
	}
	if !IsDriverError(fmt.Errorf("outer: %w", wrapped)) {
		t.Fatal("classification should see through wrapping")
	}
}

func TestIsTimeout(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrTimeout, true},
		{context.DeadlineExceeded, true},
		{WrapError("navigate", "page load", context.DeadlineExceeded), true},
		{NewError("click", "detached"), false},
	}
	for _, tc := range cases {
		if got := IsTimeout(tc.err); got != tc.want {
			t.Errorf("IsTimeout(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Headless || !cfg.NoSandbox {
		t.Fatalf("expected headless no-sandbox defaults, got %+v", cfg)
	}
	if cfg.ViewportWidth != 1280 || cfg.ViewportHeight != 720 {
		t.Fatalf("unexpected viewport defaults: %+v", cfg)
	}
}
