package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/NebulousLabs/errors"

	"github.com/spknetwork/storage-coordinator/modules"
)

// refsDeadline and blockDeadline bound the responder's two daemon
// calls; a slow daemon counts as a failed challenge.
const (
	refsDeadline  = 2 * time.Second
	blockDeadline = 2 * time.Second
)

// ChallengeResponse is the result of a challenge round: the computed
// proof, the block it covers, and how long the computation took.
type ChallengeResponse struct {
	Success      bool
	Proof        string
	BlockCID     string
	ResponseTime time.Duration
}

// ChallengeResponder answers incoming proof requests from validators,
// computing the proof over a single named block instead of
// ProofHasher's multi-block sample: the validator already knows which
// block it expects, since it is the one that requested the challenge.
type ChallengeResponder struct {
	daemon   modules.StorageDaemonClient
	earnings *EarningsStore
}

// NewChallengeResponder constructs a responder backed by daemon and
// earnings.
func NewChallengeResponder(daemon modules.StorageDaemonClient, earnings *EarningsStore) *ChallengeResponder {
	return &ChallengeResponder{daemon: daemon, earnings: earnings}
}

// Respond implements the POST /api/challenge contract. On any deadline
// or daemon error it records a failed challenge and returns the error;
// the caller (the loopback API handler) maps that to a 500 response.
func (cr *ChallengeResponder) Respond(ctx context.Context, cid string, blockIndex int, salt, validatorID string) (ChallengeResponse, error) {
	start := time.Now()

	refsCtx, cancel := context.WithTimeout(ctx, refsDeadline)
	blockCids, err := cr.daemon.Refs(refsCtx, cid)
	cancel()
	if err != nil {
		cr.earnings.RecordFailure(time.Now())
		return ChallengeResponse{}, err
	}
	if blockIndex < 0 || blockIndex >= len(blockCids) {
		cr.earnings.RecordFailure(time.Now())
		return ChallengeResponse{}, errors.Extend(fmt.Errorf("blockIndex %d out of range for %d blocks", blockIndex, len(blockCids)), modules.ErrInvalid)
	}
	blockCid := blockCids[blockIndex]

	blockCtx, cancel := context.WithTimeout(ctx, blockDeadline)
	block, err := cr.daemon.Block(blockCtx, blockCid)
	cancel()
	if err != nil {
		cr.earnings.RecordFailure(time.Now())
		return ChallengeResponse{}, err
	}

	proof := hashSaltThenBlock(salt, block)

	now := time.Now()
	if _, err := cr.earnings.RecordSuccess(now); err != nil {
		return ChallengeResponse{}, err
	}

	return ChallengeResponse{
		Success:      true,
		Proof:        proof,
		BlockCID:     blockCid,
		ResponseTime: now.Sub(start),
	}, nil
}

// hashSaltThenBlock computes sha256(salt || block) hex-encoded. This is
// the reverse concatenation order from ProofHasher's per-block
// sha256(block || salt); the two proof flavors are independent and not
// meant to interoperate.
func hashSaltThenBlock(salt string, block []byte) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write(block)
	return hex.EncodeToString(h.Sum(nil))
}
