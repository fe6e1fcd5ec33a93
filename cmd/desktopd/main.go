// Command desktopd is the desktop storage agent entrypoint: it
// supervises a local storage daemon process, answers proof challenges
// against it, tracks earnings, and exposes a loopback HTTP API the
// desktop UI talks to.
//
// Exit codes: 0 on a clean shutdown, 1 on an initialization failure,
// 2 when no storage daemon binary could be found.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NebulousLabs/errors"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules/agent"
	"github.com/spknetwork/storage-coordinator/modules/daemonclient"
	"github.com/spknetwork/storage-coordinator/persist"
)

const agentVersion = "0.1.0"

func main() {
	var (
		repoPath   = flag.String("repo", defaultRepoPath(), "path to the local storage daemon's repo directory")
		apiPort    = flag.Int("port", 5111, "loopback API port (advances on conflict)")
		logPath    = flag.String("log", "desktopd.log", "path to the log file")
		daemonAddr = flag.String("daemon-addr", envOr("STORAGE_DAEMON_API_URL", "http://127.0.0.1:5001"), "base URL of the supervised storage daemon's API")
		earnings   = flag.String("earnings", "earnings.json", "path to the earnings state file")
		config     = flag.String("config", "agent.json", "path to the agent config file")
	)
	flag.Parse()

	logger, err := persist.NewLogger(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "desktopd: opening log:", err)
		os.Exit(1)
	}
	defer logger.Close()

	supCfg := agent.DefaultConfig(*repoPath)
	supervisor := agent.New(supCfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), supCfg.ReadyTimeout+5*time.Second)
	defer cancel()
	if err := supervisor.Start(ctx); err != nil {
		logger.Println("starting supervised daemon:", err)
		fmt.Fprintln(os.Stderr, "desktopd:", err)
		if errors.Contains(err, agent.ErrNoBinaryFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	daemonClient := daemonclient.New(*daemonAddr)
	earningsStore := agent.NewEarningsStore(*earnings)
	configStore := agent.NewConfigStore(*config)
	responder := agent.NewChallengeResponder(daemonClient, earningsStore)

	defaultCfg := agent.AgentConfig{
		IPFSRepoPath: *repoPath,
		APIPort:      *apiPort,
		AutoStart:    true,
	}

	srv := agent.NewServer(supervisor, daemonClient, responder, earningsStore, configStore, defaultCfg, agentVersion, logger)
	listener, boundPort, err := agent.Listen(*apiPort, srv.Handler(), logger)
	if err != nil {
		logger.Fatalln("binding loopback API:", err)
	}

	go func() {
		if err := http.Serve(listener, srv.Handler()); err != nil && err != http.ErrServerClosed {
			logger.Println("loopback API serve error:", err)
		}
	}()

	logger.Println("desktopd ready on port", boundPort)
	fmt.Println("desktopd ready, loopback API on port", boundPort)

	waitForSignal()

	fmt.Println("desktopd shutting down...")
	closeErr := build.ExtendErr("closing loopback listener", listener.Close())
	stopErr := build.ExtendErr("stopping supervised daemon", supervisor.Stop())
	if err := build.ComposeErrors(closeErr, stopErr); err != nil {
		logger.Println("shutdown:", err)
	}
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}

func defaultRepoPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storage-agent"
	}
	return home + "/.storage-agent"
}

// envOr returns the environment variable named by key, or def when it
// is unset or empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
