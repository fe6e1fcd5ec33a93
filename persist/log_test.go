package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spknetwork/storage-coordinator/build"
)

// nonEmptyLines splits raw log file contents into its non-empty lines.
func nonEmptyLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// TestLoggerBracketsOutput checks that a process lifetime reads as
// STARTUP banner, the coordinator's own lines, SHUTDOWN banner.
func TestLoggerBracketsOutput(t *testing.T) {
	dir := build.TempDir(persistDir, t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "coordinator.log")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Println("poa: tick error: daemon offline")
	logger.Println("jobqueue: reaper requeued 1 job")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := nonEmptyLines(data)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], "STARTUP") {
		t.Errorf("first line %q is not the startup banner", lines[0])
	}
	if !strings.Contains(lines[1], "poa: tick error") || !strings.Contains(lines[2], "jobqueue: reaper") {
		t.Error("logged lines did not appear between the banners in order")
	}
	if !strings.Contains(lines[3], "SHUTDOWN") {
		t.Errorf("last line %q is not the shutdown banner", lines[3])
	}
}

// TestLoggerAppendsAcrossRestarts checks that a daemon restart appends
// a second bracketed lifetime instead of truncating the history an
// operator may still need.
func TestLoggerAppendsAcrossRestarts(t *testing.T) {
	dir := build.TempDir(persistDir, t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "coordinator.log")

	for i := 0; i < 2; i++ {
		logger, err := NewLogger(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := logger.Close(); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "STARTUP"); got != 2 {
		t.Errorf("found %d STARTUP banners, want 2", got)
	}
	if got := strings.Count(string(data), "SHUTDOWN"); got != 2 {
		t.Errorf("found %d SHUTDOWN banners, want 2", got)
	}
}
