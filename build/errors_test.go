package build

import (
	"errors"
	"testing"
)

// TestExtendErr checks the component-tagging helper the daemons'
// shutdown sequences wrap every close result with.
func TestExtendErr(t *testing.T) {
	if err := ExtendErr("closing operator API", nil); err != nil {
		t.Errorf("extending nil should stay nil, got %v", err)
	}
	err := ExtendErr("closing repository", errors.New("file already closed"))
	if err == nil || err.Error() != "closing repository: file already closed" {
		t.Errorf("got %v", err)
	}
}

// TestJoinErrors mirrors coordinatord's shutdown: several tagged close
// errors collapsed into one loggable line.
func TestJoinErrors(t *testing.T) {
	if err := JoinErrors(nil, "\n"); err != nil {
		t.Errorf("joining nothing should be nil, got %v", err)
	}
	if err := JoinErrors([]error{nil, nil}, "\n"); err != nil {
		t.Errorf("joining only nils should be nil, got %v", err)
	}

	errs := []error{
		ExtendErr("closing PoA engine", errors.New("stop timed out")),
		nil, // the scheduler closed cleanly
		ExtendErr("closing repository", errors.New("file already closed")),
	}
	err := JoinErrors(errs, "\n")
	want := "closing PoA engine: stop timed out\nclosing repository: file already closed"
	if err == nil || err.Error() != want {
		t.Errorf("got %q, want %q", err, want)
	}
}

// TestComposeErrors checks the two-error one-liner desktopd's shutdown
// uses for its listener-close and supervisor-stop results.
func TestComposeErrors(t *testing.T) {
	if err := ComposeErrors(nil, nil); err != nil {
		t.Errorf("composing only nils should be nil, got %v", err)
	}
	err := ComposeErrors(errors.New("close tcp: in use"), nil, errors.New("daemon would not die"))
	want := "close tcp: in use; daemon would not die"
	if err == nil || err.Error() != want {
		t.Errorf("got %q, want %q", err, want)
	}
}
