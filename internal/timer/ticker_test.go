package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTicker_ArmDisarm(t *testing.T) {
	ticks := &manualTicks{}
	tk := NewTicker(time.Second, ticks.source)

	if tk.Armed() {
		t.Fatalf("new ticker must not be armed")
	}
	tk.Disarm() // no-op when idle

	var fired int32
	gen := tk.Arm(func(g uint64) { atomic.AddInt32(&fired, 1) })
	if !tk.Armed() || !tk.Live(gen) {
		t.Fatalf("ticker should be armed with generation %d", gen)
	}
	if !ticks.tick() {
		t.Fatalf("tick not consumed")
	}
	eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, "callback to fire")

	tk.Disarm()
	tk.Disarm()
	if tk.Armed() || tk.Live(gen) {
		t.Fatalf("generation %d must be dead after disarm", gen)
	}
}

func TestTicker_RearmReplacesGeneration(t *testing.T) {
	ticks := &manualTicks{}
	tk := NewTicker(time.Second, ticks.source)
	defer tk.Disarm()

	first := tk.Arm(func(uint64) {})
	var seen uint64
	second := tk.Arm(func(g uint64) { atomic.StoreUint64(&seen, g) })

	if first == second || tk.Live(first) || !tk.Live(second) {
		t.Fatalf("re-arm must retire generation %d for %d", first, second)
	}
	ticks.tick()
	eventually(t, func() bool { return atomic.LoadUint64(&seen) == second }, "latest generation to tick")
}

func TestTicker_RealSource(t *testing.T) {
	tk := NewTicker(5*time.Millisecond, nil)
	defer tk.Disarm()

	var fired int32
	tk.Arm(func(uint64) { atomic.AddInt32(&fired, 1) })
	eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 2 }, "real ticks")
}
