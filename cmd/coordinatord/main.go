// Command coordinatord is the coordinator daemon entrypoint: it wires
// the repository, PoA engine, job scheduler, payout builder and session
// manager together behind the operator HTTP API and runs until
// interrupted.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NebulousLabs/fastrand"

	"github.com/spknetwork/storage-coordinator/api"
	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules/daemonclient"
	"github.com/spknetwork/storage-coordinator/modules/identity"
	"github.com/spknetwork/storage-coordinator/modules/jobqueue"
	"github.com/spknetwork/storage-coordinator/modules/payout"
	"github.com/spknetwork/storage-coordinator/modules/poa"
	"github.com/spknetwork/storage-coordinator/modules/validatorchannel"
	"github.com/spknetwork/storage-coordinator/persist"
	"github.com/spknetwork/storage-coordinator/sessions"
)

func main() {
	var (
		addr              = flag.String("addr", ":9980", "operator API listen address")
		dbPath            = flag.String("db", "coordinator.db", "path to the bbolt repository file")
		logPath           = flag.String("log", "coordinator.log", "path to the log file")
		requiredUserAgent = flag.String("agent", "storage-coordinator", "required client User-Agent prefix, empty to disable")
		identityURL       = flag.String("identity-url", "http://127.0.0.1:8081", "base URL of the witness/identity ledger service")
		daemonURL         = flag.String("daemon-url", envOr("STORAGE_DAEMON_API_URL", "http://127.0.0.1:5001"), "base URL of this validator's storage daemon API")
		channelURL        = flag.String("channel-url", envOr("VALIDATOR_CHANNEL_URL", "http://127.0.0.1:8082"), "base URL of the validator-node challenge channel")
		validatorName     = flag.String("validator", "", "Hive username this process validates as (required)")
		secretHex         = flag.String("hmac-secret", os.Getenv("AGENT_HMAC_SECRET"), "hex-encoded HMAC secret for agent lease signatures, random if empty")
		mode              = flag.String("mode", string(poa.ModeLive), "PoA engine mode: live or simulation")
		demoMode          = flag.Bool("demo-mode", false, "let demo_user log in without signature or witness checks (local development only)")
	)
	flag.Parse()

	if *validatorName == "" {
		fmt.Fprintln(os.Stderr, "coordinatord: -validator is required")
		os.Exit(1)
	}

	logger, err := persist.NewLogger(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "coordinatord: opening log:", err)
		os.Exit(1)
	}
	defer logger.Close()

	fmt.Printf("(1/6) Loading repository...\n")
	repo, err := persist.OpenBoltRepository(*dbPath)
	if err != nil {
		logger.Fatalln("opening repository:", err)
	}

	fmt.Printf("(2/6) Loading session manager...\n")
	identityClient := identity.New(*identityURL)
	if key := os.Getenv("IDENTITY_POSTING_KEY"); key != "" {
		identityClient.SetPostingKey(key)
	}
	sm := sessions.New(identityClient)
	if *demoMode {
		logger.Println("WARN: demo mode enabled, demo_user bypasses identity checks")
		sm.EnableDemoMode()
	}

	fmt.Printf("(3/6) Loading PoA engine...\n")
	daemonClient := daemonclient.New(*daemonURL)
	channel := validatorchannel.New(*channelURL)
	validator, err := repo.GetValidator(context.Background(), *validatorName)
	if err != nil {
		logger.Fatalln("looking up validator", *validatorName, ":", err)
	}
	poaCfg := poa.DefaultConfig()
	poaCfg.Mode = poa.Mode(*mode)
	engine := poa.New(repo, daemonClient, channel, nil, logger, validator.ID, *validatorName, poaCfg)

	fmt.Printf("(4/6) Loading job scheduler...\n")
	secret, err := parseOrGenerateSecret(*secretHex)
	if err != nil {
		logger.Fatalln("hmac secret:", err)
	}
	scheduler := jobqueue.New(repo, logger, secret, jobqueue.DefaultConfig())

	fmt.Printf("(5/6) Loading payout builder...\n")
	payouts := payout.New(repo)

	fmt.Printf("(6/6) Loading operator API...\n")
	srv, err := api.NewServer(*addr, *requiredUserAgent, repo, sm, scheduler, payouts)
	if err != nil {
		logger.Fatalln("binding operator API:", err)
	}

	go engine.Run()
	go scheduler.Run()
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Println("operator API serve error:", err)
		}
	}()

	logger.Println("coordinatord ready, validator =", *validatorName, "addr =", *addr)
	fmt.Println("coordinatord ready, listening on", *addr)

	waitForSignal()

	fmt.Println("coordinatord shutting down...")
	if err := shutdown(logger, srv, engine, scheduler, sm, repo); err != nil {
		logger.Println("shutdown:", err)
	}
}

// waitForSignal blocks until the process receives SIGINT or SIGTERM.
func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}

// shutdown closes every component in dependency order, one at a time:
// the operator API first, then the PoA engine and the job scheduler,
// then the session manager and the repository. A slow or broken
// collaborator should never keep the rest of the process from shutting
// down. Every failure is tagged with the
// component it came from and joined into a single error for the
// caller to log, rather than aborting the sequence on the first one.
func shutdown(logger *persist.Logger, srv *api.Server, engine *poa.Engine, scheduler *jobqueue.Scheduler, sm *sessions.Manager, repo *persist.BoltRepository) error {
	var errs []error
	if err := build.ExtendErr("closing operator API", srv.Close()); err != nil {
		errs = append(errs, err)
	}
	if err := build.ExtendErr("closing PoA engine", engine.Close()); err != nil {
		errs = append(errs, err)
	}
	if err := build.ExtendErr("closing job scheduler", scheduler.Close()); err != nil {
		errs = append(errs, err)
	}
	if err := build.ExtendErr("closing session manager", sm.Close()); err != nil {
		errs = append(errs, err)
	}
	if err := build.ExtendErr("closing repository", repo.Close()); err != nil {
		errs = append(errs, err)
	}
	return build.JoinErrors(errs, "\n")
}

// parseOrGenerateSecret decodes hexSecret, or mints a fresh 32-byte
// random secret via fastrand when none was supplied.
func parseOrGenerateSecret(hexSecret string) ([]byte, error) {
	if hexSecret == "" {
		return fastrand.Bytes(32), nil
	}
	return hex.DecodeString(hexSecret)
}

// envOr returns the environment variable named by key, or def when it
// is unset or empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
