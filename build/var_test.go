package build

import (
	"testing"
	"time"
)

// withRelease runs fn with Release temporarily overridden.
func withRelease(t *testing.T, release string, fn func()) {
	t.Helper()
	old := Release
	Release = release
	defer func() { Release = old }()
	fn()
}

// recovered reports whether fn panicked.
func recovered(fn func()) (panicked bool) {
	defer func() { panicked = recover() != nil }()
	fn()
	return
}

// TestSelectFollowsRelease checks Select against the kind of Var the
// scheduler actually declares: a per-variant poll interval.
func TestSelectFollowsRelease(t *testing.T) {
	interval := Var{
		Standard: 10 * time.Second,
		Dev:      time.Second,
		Testing:  50 * time.Millisecond,
	}
	want := map[string]time.Duration{
		"standard": 10 * time.Second,
		"dev":      time.Second,
		"testing":  50 * time.Millisecond,
	}
	for release, expected := range want {
		withRelease(t, release, func() {
			if got := Select(interval).(time.Duration); got != expected {
				t.Errorf("Select under %q = %v, want %v", release, got, expected)
			}
		})
	}
}

func TestSelectPanicsOnMissingValue(t *testing.T) {
	incomplete := []Var{
		{},
		{Standard: time.Second},
		{Standard: time.Second, Dev: time.Second},
		{Dev: time.Second, Testing: time.Second},
	}
	for i, v := range incomplete {
		if !recovered(func() { Select(v) }) {
			t.Errorf("case %d: Select accepted a Var with a missing variant value", i)
		}
	}
}

func TestSelectPanicsOnUnknownRelease(t *testing.T) {
	v := Var{Standard: 1, Dev: 1, Testing: 1}
	withRelease(t, "nightly", func() {
		if !recovered(func() { Select(v) }) {
			t.Error("Select accepted an unrecognized Release")
		}
	})
}
