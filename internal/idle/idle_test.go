package idle

import (
	"testing"
	"time"

	"github.com/sonroyaalmerol/cuebot/internal/queue"
)

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("idle callback did not run")
	}
}

func noFire(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("idle callback ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArmFiresOnce(t *testing.T) {
	m := NewManual()
	r := NewReclaimer(m, nil)
	q := queue.New("g1", nil)
	fired := make(chan struct{}, 4)

	if err := r.Arm(q, time.Second, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	if !q.IdleArmed() {
		t.Fatal("IdleArmed() = false after Arm")
	}
	m.Advance(999 * time.Millisecond)
	noFire(t, fired)

	m.Advance(time.Millisecond)
	wait(t, fired)
	if q.IdleArmed() {
		t.Error("IdleArmed() = true after fire")
	}

	m.Advance(time.Hour)
	noFire(t, fired)
}

func TestCancelPreventsFire(t *testing.T) {
	m := NewManual()
	r := NewReclaimer(m, nil)
	q := queue.New("g1", nil)
	fired := make(chan struct{}, 1)

	_ = r.Arm(q, time.Second, func() { fired <- struct{}{} })
	r.Cancel(q)
	m.Advance(2 * time.Second)
	noFire(t, fired)

	// nothing armed
	r.Cancel(q)
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestRearmReplacesTimer(t *testing.T) {
	m := NewManual()
	r := NewReclaimer(m, nil)
	q := queue.New("g1", nil)
	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)

	_ = r.Arm(q, time.Second, func() { first <- struct{}{} })
	_ = r.Arm(q, 3*time.Second, func() { second <- struct{}{} })
	if m.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", m.Pending())
	}

	m.Advance(time.Second)
	noFire(t, first)
	m.Advance(2 * time.Second)
	wait(t, second)
}

func TestArmRejectsInvalidDuration(t *testing.T) {
	tests := []time.Duration{0, -time.Second, 1500 * time.Microsecond, time.Nanosecond}
	for _, d := range tests {
		m := NewManual()
		r := NewReclaimer(m, nil)
		q := queue.New("g1", nil)
		if err := r.Arm(q, d, func() {}); err == nil {
			t.Errorf("Arm(%v) error = nil, want error", d)
		}
		if q.IdleArmed() || m.Pending() != 0 {
			t.Errorf("Arm(%v) left a timer armed", d)
		}
	}
}

func TestInvalidArmCancelsPrevious(t *testing.T) {
	m := NewManual()
	r := NewReclaimer(m, nil)
	q := queue.New("g1", nil)
	fired := make(chan struct{}, 1)

	_ = r.Arm(q, time.Second, func() { fired <- struct{}{} })
	_ = r.Arm(q, 0, func() {})
	m.Advance(time.Minute)
	noFire(t, fired)
}

func TestCallbackPanicIsContained(t *testing.T) {
	m := NewManual()
	r := NewReclaimer(m, nil)
	q := queue.New("g1", nil)
	after := make(chan struct{}, 1)

	_ = r.Arm(q, time.Millisecond, func() { panic("boom") })
	m.Advance(time.Millisecond)

	_ = r.Arm(q, time.Millisecond, func() { after <- struct{}{} })
	m.Advance(time.Millisecond)
	wait(t, after)
}

func TestRealTime(t *testing.T) {
	r := NewReclaimer(RealTime{}, nil)
	q := queue.New("g1", nil)
	fired := make(chan struct{}, 1)
	_ = r.Arm(q, 10*time.Millisecond, func() { fired <- struct{}{} })
	wait(t, fired)
}
