package modules

import (
	"context"
	"time"
)

// Per-operation deadlines daemonclient.Client adds to every Refs and
// Block call; a shorter deadline already on the caller's ctx still
// applies.
const (
	DaemonRefsDeadline  = 2 * time.Second
	DaemonBlockDeadline = 2 * time.Second
)

// DaemonStat is the daemon's self-reported repository and bandwidth
// snapshot.
type DaemonStat struct {
	RepoSize      uint64
	NumObjects    uint64
	BandwidthIn   uint64
	BandwidthOut  uint64
}

// StorageDaemonClient is a thin HTTP client over a co-resident
// content-addressed storage daemon. Every method carries
// its own deadline via ctx; callers that don't need a custom deadline
// should derive one with context.WithTimeout using the constants above.
type StorageDaemonClient interface {
	// Add stores data and returns its CID.
	Add(ctx context.Context, data []byte) (cid string, err error)
	// Cat returns the complete bytes behind cid.
	Cat(ctx context.Context, cid string) ([]byte, error)
	// Refs returns the ordered block CIDs that make up cid. An object
	// with no block children returns an empty, non-nil slice.
	Refs(ctx context.Context, cid string) ([]string, error)
	// Block returns the bytes behind a single block CID.
	Block(ctx context.Context, blockCid string) ([]byte, error)
	// Pin asks the daemon to keep cid out of garbage collection.
	Pin(ctx context.Context, cid string) error
	// Unpin releases a previous pin on cid.
	Unpin(ctx context.Context, cid string) error
	// Pins lists every CID the daemon currently pins.
	Pins(ctx context.Context) ([]string, error)
	// Stat reports the daemon's repository and bandwidth counters.
	Stat(ctx context.Context) (DaemonStat, error)
	// IsOnline reports whether the daemon currently answers requests.
	IsOnline(ctx context.Context) bool
	// PeerID returns the daemon's network identity.
	PeerID(ctx context.Context) (string, error)
}
