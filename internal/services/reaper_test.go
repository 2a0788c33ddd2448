package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStaleStopper struct {
	calls   int
	lastAge time.Duration
	stopped int
	err     error
}

func (s *stubStaleStopper) StopStale(ctx context.Context, maxAge time.Duration) (int, error) {
	s.calls++
	s.lastAge = maxAge
	return s.stopped, s.err
}

func TestStaleSessionReaper_RunOnce(t *testing.T) {
	stub := &stubStaleStopper{stopped: 2}
	reaper := NewStaleSessionReaper(stub, 12*time.Hour, time.Minute)

	if got := reaper.runOnce(context.Background()); got != 2 {
		t.Fatalf("Expected 2 stopped, got %d", got)
	}
	if stub.lastAge != 12*time.Hour {
		t.Fatalf("Expected max age 12h, got %s", stub.lastAge)
	}

	stub.err = errors.New("db down")
	if got := reaper.runOnce(context.Background()); got != 0 {
		t.Fatalf("Expected 0 on error, got %d", got)
	}
}

func TestStaleSessionReaper_StartDisabled(t *testing.T) {
	stub := &stubStaleStopper{}
	reaper := NewStaleSessionReaper(stub, 0, time.Minute)
	reaper.Start()
	reaper.Stop()
	reaper.Stop() // idempotent

	if stub.calls != 0 {
		t.Fatalf("disabled reaper must not run, got %d calls", stub.calls)
	}
}
