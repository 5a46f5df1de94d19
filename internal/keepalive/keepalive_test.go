package keepalive

import (
	"testing"
	"time"
)

func TestDeadAfterLimit(t *testing.T) {
	m := New(time.Hour, 3)
	defer m.Stop()
	m.Start()

	if m.Tick() {
		t.Fatal("dead after 1 tick")
	}
	if m.Tick() {
		t.Fatal("dead after 2 ticks")
	}
	if !m.Tick() {
		t.Fatal("expected dead after 3 ticks")
	}
	if m.Timer() != nil {
		t.Fatal("timer should be disarmed once dead")
	}
}

func TestReceivedResets(t *testing.T) {
	m := New(time.Hour, 3)
	defer m.Stop()
	m.Start()

	m.Tick()
	m.Tick()
	if m.Missed() != 2 {
		t.Fatalf("expected 2 missed, got %d", m.Missed())
	}
	m.Received()
	if m.Missed() != 0 {
		t.Fatalf("expected 0 missed after reply, got %d", m.Missed())
	}
	if m.Tick() || m.Tick() {
		t.Fatal("counter should have restarted from zero")
	}
}

func TestTimerFires(t *testing.T) {
	m := New(5*time.Millisecond, 3)
	defer m.Stop()

	if m.Timer() != nil {
		t.Fatal("timer should be nil before Start")
	}
	m.Start()

	select {
	case <-m.Timer():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if m.Tick() {
		t.Fatal("one tick should not be fatal")
	}
	select {
	case <-m.Timer():
	case <-time.After(time.Second):
		t.Fatal("timer was not re-armed by Tick")
	}
}

func TestDisabled(t *testing.T) {
	m := New(0, 3)
	defer m.Stop()
	m.Start()

	if m.Enabled() {
		t.Fatal("zero rate should disable the monitor")
	}
	if m.Timer() != nil {
		t.Fatal("disabled monitor must not arm a timer")
	}
}

func TestSetRate(t *testing.T) {
	m := New(time.Hour, 3)
	defer m.Stop()
	m.Start()

	m.SetRate(5 * time.Millisecond)
	select {
	case <-m.Timer():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire at the new rate")
	}

	m.SetRate(0)
	if m.Timer() != nil {
		t.Fatal("zero rate should stop the timer")
	}
}
