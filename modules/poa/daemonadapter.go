package poa

import (
	"context"

	"github.com/spknetwork/storage-coordinator/crypto"
	"github.com/spknetwork/storage-coordinator/modules"
)

// daemonFetcher adapts a modules.StorageDaemonClient to
// crypto.BlockFetcher: the two interfaces evolved independently (the
// daemon client mirrors the daemon's own add/cat/refs/block verbs; the
// fetcher only needs whole-object and single-block reads), so only the
// engine bridges them.
type daemonFetcher struct {
	daemon modules.StorageDaemonClient
}

func (f daemonFetcher) FetchWhole(ctx context.Context, cid string) ([]byte, error) {
	return f.daemon.Cat(ctx, cid)
}

func (f daemonFetcher) FetchBlock(ctx context.Context, blockCid string) ([]byte, error) {
	return f.daemon.Block(ctx, blockCid)
}

var _ crypto.BlockFetcher = daemonFetcher{}
