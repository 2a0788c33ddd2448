package timer

import (
	"sync"
	"time"
)

// TickSource produces ticks every interval until stop is called.
type TickSource func(interval time.Duration) (ticks <-chan time.Time, stop func())

func realTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Ticker is a single repeating timer. Each Arm starts a new generation;
// callbacks receive the generation they were armed with so a caller can
// drop ticks that raced with a Disarm.
type Ticker struct {
	interval time.Duration
	source   TickSource

	mu   sync.Mutex
	gen  uint64
	stop chan struct{}
}

func NewTicker(interval time.Duration, source TickSource) *Ticker {
	if source == nil {
		source = realTicks
	}
	return &Ticker{interval: interval, source: source}
}

// Arm disarms any running generation and starts a new one calling fn on
// every tick.
func (t *Ticker) Arm(fn func(gen uint64)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disarmLocked()

	t.gen++
	gen := t.gen
	stop := make(chan struct{})
	t.stop = stop

	ticks, halt := t.source(t.interval)
	go func() {
		defer halt()
		for {
			select {
			case <-stop:
				return
			case <-ticks:
				select {
				case <-stop:
					return
				default:
				}
				fn(gen)
			}
		}
	}()

	return gen
}

// Disarm stops the current generation. It does not wait for an in-flight
// callback to return.
func (t *Ticker) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *Ticker) disarmLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
	t.gen++
}

func (t *Ticker) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Live reports whether gen is the generation currently armed.
func (t *Ticker) Live(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil && t.gen == gen
}
