package services

import (
	"context"
	"log"
	"time"
)

type staleStopper interface {
	StopStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// StaleSessionReaper stops sessions that were left running past the
// maximum duration, e.g. by a client that went away without stopping.
type StaleSessionReaper struct {
	timer    staleStopper
	maxAge   time.Duration
	interval time.Duration
	stopChan chan struct{}
}

func NewStaleSessionReaper(timer staleStopper, maxAge, interval time.Duration) *StaleSessionReaper {
	return &StaleSessionReaper{
		timer:    timer,
		maxAge:   maxAge,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (r *StaleSessionReaper) Start() {
	if r.timer == nil || r.maxAge <= 0 || r.interval <= 0 {
		return
	}

	go r.loop()
	log.Printf("Stale session reaper started (max age %s, every %s)", r.maxAge, r.interval)
}

func (r *StaleSessionReaper) Stop() {
	select {
	case <-r.stopChan:
		return
	default:
		close(r.stopChan)
	}
}

func (r *StaleSessionReaper) loop() {
	// Run on startup as well as by interval.
	r.runOnce(context.Background())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.runOnce(context.Background())
		}
	}
}

func (r *StaleSessionReaper) runOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stopped, err := r.timer.StopStale(ctx, r.maxAge)
	if err != nil {
		log.Printf("stale sessions: %v", err)
		return 0
	}
	if stopped > 0 {
		log.Printf("stale sessions: auto-stopped %d session(s)", stopped)
	}
	return stopped
}
