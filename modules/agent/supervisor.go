// Package agent implements the desktop agent runtime: local supervision
// of a content-addressed storage daemon process (spawn, repo init,
// config patch, health, graceful shutdown) and the challenge responder
// that computes proofs on the storage operator's own machine.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/NebulousLabs/errors"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/persist"
)

// Config holds the supervisor's daemon-launch parameters.
type Config struct {
	// BinaryCandidates is resolved in order; the first path that exists
	// and is executable is spawned. If none exist, Start returns an
	// explicit error rather than falling back silently.
	BinaryCandidates []string
	RepoPath         string
	APIPort          int
	GatewayPort      int
	ConnMgrLow       int
	ConnMgrHigh      int
	ConnMgrGrace     time.Duration
	ReadyBanner      string
	ReadyTimeout     time.Duration
	ShutdownGrace    time.Duration
}

// DefaultConfig returns the standard launch parameters.
func DefaultConfig(repoPath string) Config {
	return Config{
		BinaryCandidates: []string{"/usr/local/bin/ipfs", "/usr/bin/ipfs", "ipfs"},
		RepoPath:         repoPath,
		APIPort:          5001,
		GatewayPort:      8080,
		ConnMgrLow:       50,
		ConnMgrHigh:      200,
		ConnMgrGrace:     20 * time.Second,
		ReadyBanner:      "Daemon is ready",
		ReadyTimeout:     30 * time.Second,
		ShutdownGrace:    5 * time.Second,
	}
}

// ErrNoBinaryFound is returned by Start when none of Config's candidate
// daemon binaries exist.
var ErrNoBinaryFound = errors.Extend(fmt.Errorf("no storage daemon binary found"), modules.ErrFatal)

// ErrNotReady is returned by Start when the daemon process did not emit
// its ready banner within Config.ReadyTimeout.
var ErrNotReady = errors.Extend(fmt.Errorf("storage daemon did not become ready in time"), modules.ErrFatal)

// Supervisor spawns and supervises a single daemon process.
type Supervisor struct {
	cfg    Config
	logger *persist.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	running  bool
	degraded bool
}

// New constructs a Supervisor. logger may be nil.
func New(cfg Config, logger *persist.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, logger: logger}
}

// resolveBinary returns the first candidate that exists on disk and
// looks executable.
func resolveBinary(candidates []string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return c, nil
		}
	}
	return "", ErrNoBinaryFound
}

// hasRepo reports whether the daemon's repo has already been
// initialized, judged by the presence of repoPath/config.
func (s *Supervisor) hasRepo() bool {
	_, err := os.Stat(filepath.Join(s.cfg.RepoPath, "config"))
	return err == nil
}

// Start resolves the daemon binary, initializes and patches the repo if
// needed, and spawns the daemon process, blocking until it reports
// ready or ReadyTimeout elapses.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binary, err := resolveBinary(s.cfg.BinaryCandidates)
	if err != nil {
		return err
	}

	if !s.hasRepo() {
		initCmd := exec.CommandContext(ctx, binary, "init")
		initCmd.Env = append(os.Environ(), "IPFS_PATH="+s.cfg.RepoPath)
		if out, err := initCmd.CombinedOutput(); err != nil {
			return errors.Extend(fmt.Errorf("repo init failed: %v: %s", err, out), modules.ErrFatal)
		}
	}

	if err := PatchConfig(filepath.Join(s.cfg.RepoPath, "config"), s.cfg); err != nil {
		return errors.Extend(fmt.Errorf("config patch failed: %v", err), modules.ErrFatal)
	}

	cmd := exec.Command(binary, "daemon", "--enable-gc")
	cmd.Env = append(os.Environ(), "IPFS_PATH="+s.cfg.RepoPath)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return errors.Extend(err, modules.ErrFatal)
	}

	ready := make(chan struct{})
	go s.scanForReady(stdoutPipe, ready)

	select {
	case <-ready:
		s.cmd = cmd
		s.running = true
		s.degraded = false
		if s.logger != nil {
			s.logger.Println("agent: storage daemon ready, pid", cmd.Process.Pid)
		}
		return nil
	case <-time.After(s.cfg.ReadyTimeout):
		cmd.Process.Kill()
		cmd.Wait()
		return ErrNotReady
	}
}

// scanForReady reads the daemon's combined stdout/stderr for its ready
// banner, closing ready exactly once if found. It keeps draining the
// pipe for the life of the process so the daemon is never blocked
// writing to a full pipe buffer.
func (s *Supervisor) scanForReady(r io.Reader, ready chan struct{}) {
	scanner := bufio.NewScanner(r)
	var fired bool
	banner := s.cfg.ReadyBanner
	for scanner.Scan() {
		line := scanner.Text()
		if s.logger != nil {
			s.logger.Println("daemon:", line)
		}
		if !fired && strings.Contains(line, banner) {
			fired = true
			close(ready)
		}
	}
}

// Stop sends SIGTERM and waits up to ShutdownGrace before escalating to
// SIGKILL.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil && s.logger != nil {
		s.logger.Println("agent: SIGTERM failed:", err)
	}

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.cmd.Process.Kill()
		<-done
	}

	s.running = false
	if s.logger != nil {
		s.logger.Println("agent: storage daemon stopped")
	}
	return nil
}

// Status reports whether the daemon is currently supervised as running,
// and whether it has been marked degraded. A degraded agent keeps
// serving its API; only the status surface changes.
func (s *Supervisor) Status() (running, degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.degraded
}

// MarkDegraded flips the degraded flag, used when the daemon stops
// answering health checks without the supervisor itself observing the
// process exit.
func (s *Supervisor) MarkDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = degraded
}
