package lock

import (
	"testing"
	"time"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	m := New(time.Minute)
	ticket := m.Lock("round-trip")
	m.Unlock("round-trip", ticket)

	// The mutex must be free again for the next caller.
	done := make(chan struct{})
	go func() {
		t2 := m.Lock("second")
		m.Unlock("second", t2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mutex was not released by the first Unlock")
	}
}

// TestForceReleaseFreesWedgedLock simulates a session operation that
// never unlocks: the deadline must free the mutex so later callers
// proceed, and the wedged holder's late Unlock must be a no-op.
func TestForceReleaseFreesWedgedLock(t *testing.T) {
	m := New(10 * time.Millisecond)
	wedged := m.Lock("wedged-holder")

	done := make(chan struct{})
	go func() {
		t2 := m.Lock("waiting-caller")
		m.Unlock("waiting-caller", t2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never force-released the wedged lock")
	}

	// The wedged holder eventually wakes up and unlocks; the stale
	// ticket must not unlock the mutex out from under anyone.
	m.Unlock("wedged-holder", wedged)
	t3 := m.Lock("after-late-unlock")
	m.Unlock("after-late-unlock", t3)
}

func TestTicketsAreDistinct(t *testing.T) {
	m := New(time.Minute)
	a := m.Lock("first")
	m.Unlock("first", a)
	b := m.Lock("second")
	m.Unlock("second", b)
	if a == b {
		t.Errorf("consecutive acquisitions shared ticket %d", a)
	}
}
