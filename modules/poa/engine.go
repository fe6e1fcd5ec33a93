// Package poa implements the proof-of-access engine: the tick loop that
// periodically challenges a random (node, file) pair, verifies the
// response, and writes the resulting reputation delta and settlement
// event back through the Repository.
package poa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/NebulousLabs/threadgroup"
	"github.com/google/uuid"

	"github.com/spknetwork/storage-coordinator/crypto"
	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/persist"
	"github.com/spknetwork/storage-coordinator/types"
)

// Mode selects whether the engine dispatches real challenges over a
// ValidatorChannel or synthesizes outcomes locally.
type Mode string

const (
	ModeSimulation Mode = "simulation"
	ModeLive       Mode = "live"
)

// Config holds the engine's tuning knobs.
type Config struct {
	ChallengePeriod  time.Duration
	ChallengeTimeout time.Duration
	Mode             Mode
	BroadcastResults bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ChallengePeriod:  5 * time.Second,
		ChallengeTimeout: 2 * time.Second,
		Mode:             ModeLive,
		BroadcastResults: true,
	}
}

// baseReward is the reward paid for one successful challenge before the
// rarity multiplier is applied.
var baseReward = types.BaseReward

// SettlementEvent is emitted once per challenge outcome.
type SettlementEvent struct {
	Type        string // "transfer" or "slash"
	NodeID      uuid.UUID
	FileID      uuid.UUID
	ChallengeID uuid.UUID
	Amount      types.HBD
	Reason      string
	Block       int64
}

// SettlementSink receives every settlement event the engine emits. A nil
// sink is valid: events are simply dropped (e.g. BroadcastResults=false).
type SettlementSink interface {
	Emit(ctx context.Context, event SettlementEvent) error
}

// Engine runs the PoA tick loop for a single validator process.
type Engine struct {
	repo        modules.Repository
	hasher      *crypto.ProofHasher
	daemon      modules.StorageDaemonClient
	channel     modules.ValidatorChannel
	sink        SettlementSink
	logger      *persist.Logger
	cfg         Config
	validatorID uuid.UUID
	validator   string

	// lastEventHash chains settlement events into the salt construction.
	// There is no blockchain here, so the chaining entropy is the hash
	// of the engine's own most recent settlement event, seeded to 32
	// zero bytes before the first one.
	lastEventHash string
	blockNumber   int64

	tg threadgroup.ThreadGroup
}

// New constructs an Engine for validatorID/validator username. sink may
// be nil if cfg.BroadcastResults is false.
func New(repo modules.Repository, daemon modules.StorageDaemonClient, channel modules.ValidatorChannel, sink SettlementSink, logger *persist.Logger, validatorID uuid.UUID, validator string, cfg Config) *Engine {
	return &Engine{
		repo:          repo,
		hasher:        crypto.NewProofHasher(daemonFetcher{daemon: daemon}),
		daemon:        daemon,
		channel:       channel,
		sink:          sink,
		logger:        logger,
		cfg:           cfg,
		validatorID:   validatorID,
		validator:     validator,
		lastEventHash: hex.EncodeToString(make([]byte, 32)),
	}
}

// Run drives the tick loop until Close is called.
func (e *Engine) Run() {
	if err := e.tg.Add(); err != nil {
		return
	}
	defer e.tg.Done()

	ticker := time.NewTicker(e.cfg.ChallengePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-e.tg.StopChan():
			return
		case <-ticker.C:
			e.safeTick()
		}
	}
}

// Close stops the tick loop, draining any in-flight tick.
func (e *Engine) Close() error {
	return e.tg.Stop()
}

// safeTick runs one tick, logging and swallowing any error so a single
// bad iteration never stops the loop.
func (e *Engine) safeTick() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ChallengeTimeout+500*time.Millisecond)
	defer cancel()
	if err := e.tick(ctx); err != nil && e.logger != nil {
		e.logger.Println("poa: tick error:", err)
	}
}

// eligibleNodesAndFiles loads the validator's eligible set: active nodes
// and PoA-enabled pinned files. There is no separate per-validator
// blacklist; a node's own active/banned status is the eligibility gate.
func (e *Engine) eligibleNodesAndFiles(ctx context.Context) ([]types.StorageNode, []types.File, error) {
	nodes, err := e.repo.ListNodes(ctx, modules.ListFilter{Status: string(types.NodeActive)})
	if err != nil {
		return nil, nil, err
	}
	files, err := e.repo.ListFiles(ctx, modules.ListFilter{Status: string(types.FilePinned)})
	if err != nil {
		return nil, nil, err
	}
	var poaFiles []types.File
	for _, f := range files {
		if f.PoAEnabled {
			poaFiles = append(poaFiles, f)
		}
	}
	return nodes, poaFiles, nil
}

// buildSalt derives a challenge salt: sha256(random32 || lastEventHash
// || unixMillis), hex-encoded.
func buildSalt(lastEventHash string, now time.Time) string {
	buf := append([]byte{}, crypto.RandBytes(32)...)
	buf = append(buf, []byte(lastEventHash)...)
	buf = append(buf, []byte(fmt.Sprintf("%d", now.UnixMilli()))...)
	digest := sha256.Sum256(buf)
	return hex.EncodeToString(digest[:])
}

// tick performs one challenge attempt against a uniformly random
// (node, file) pair from the eligible set.
func (e *Engine) tick(ctx context.Context) error {
	nodes, files, err := e.eligibleNodesAndFiles(ctx)
	if err != nil {
		return err
	}
	if len(nodes) == 0 || len(files) == 0 {
		return nil
	}

	node := nodes[crypto.RandIntn(len(nodes))]
	file := files[crypto.RandIntn(len(files))]

	refs, err := e.daemon.Refs(ctx, file.CID)
	if err != nil {
		// the daemon is unreachable; the next tick retries once it
		// recovers.
		return err
	}

	now := time.Now()
	salt := buildSalt(e.lastEventHash, now)

	challenge := types.PoAChallenge{
		ID:          uuid.New(),
		ValidatorID: e.validatorID,
		NodeID:      node.ID,
		FileID:      file.ID,
		Salt:        salt,
		ChallengeData: types.ChallengeData{
			Salt:   salt,
			CID:    file.CID,
			Method: "computeProof",
		},
		CreatedAt: now,
	}
	challenge, err = e.repo.CreateChallenge(ctx, challenge)
	if err != nil {
		return err
	}

	expected, err := e.hasher.ComputeProof(ctx, salt, file.CID, refs)
	if err != nil {
		return e.recordOutcome(ctx, challenge, node, file, types.ChallengeFail, err.Error(), nil, nil)
	}

	result, failReason, latencyMs, response := e.verify(ctx, salt, file.CID, node.OperatorName, expected)
	var responsePtr *string
	if response != "" {
		responsePtr = &response
	}
	return e.recordOutcome(ctx, challenge, node, file, result, failReason, responsePtr, latencyMs)
}

// verify either simulates a response (ModeSimulation) or dispatches the
// challenge over the validator channel and compares its response
// against expected.
func (e *Engine) verify(ctx context.Context, salt, cid, validator, expected string) (result types.ChallengeResult, failReason string, latencyMs *int64, response string) {
	if e.cfg.Mode == ModeSimulation {
		return types.ChallengeSuccess, "", nil, expected
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ChallengeTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.channel.RequestProof(ctx, modules.ChallengeRequest{
		Type:   "RequestProof",
		Hash:   salt,
		CID:    cid,
		Status: "Pending",
		User:   validator,
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		if ctx.Err() != nil {
			return types.ChallengeFail, "TIMEOUT", nil, ""
		}
		return types.ChallengeFail, err.Error(), nil, ""
	}
	if resp.ProofHash != expected {
		return types.ChallengeFail, "PROOF_MISMATCH", nil, resp.ProofHash
	}
	return types.ChallengeSuccess, "", &elapsed, resp.ProofHash
}

// recordOutcome writes the challenge result, applies the reputation
// update, credits any reward, and emits a settlement event.
func (e *Engine) recordOutcome(ctx context.Context, challenge types.PoAChallenge, node types.StorageNode, file types.File, result types.ChallengeResult, failReason string, response *string, latencyMs *int64) error {
	if err := e.repo.UpdateChallengeResult(ctx, challenge.ID, result, failReason, response, latencyMs); err != nil {
		return err
	}

	node.TotalProofs++
	var event SettlementEvent
	if result == types.ChallengeSuccess {
		node.Reputation = min(100, node.Reputation+1)
		node.ConsecutiveFails = 0
		reward := baseReward.Mul(rarityMultiplier(file.ReplicationCount))
		node.TotalEarned = node.TotalEarned.Add(reward)
		file.Earned = file.Earned.Add(reward)
		event = SettlementEvent{Type: "transfer", NodeID: node.ID, FileID: file.ID, ChallengeID: challenge.ID, Amount: reward}
	} else {
		node.FailedProofs++
		node.ConsecutiveFails++
		penalty := penaltyFor(node.ConsecutiveFails)
		node.Reputation = max(0, node.Reputation-penalty)
		event = SettlementEvent{Type: "slash", NodeID: node.ID, FileID: file.ID, ChallengeID: challenge.ID, Amount: types.ZeroHBD, Reason: failReasonDescription(failReason)}
	}
	node.Status = deriveStatus(node.Reputation, node.ConsecutiveFails)
	if node.Status == types.NodeBanned {
		node.Reputation = 0
		event.Reason = fmt.Sprintf("BANNED: %d consecutive PoA failures", node.ConsecutiveFails)
	}
	node.LastSeen = time.Now()

	if err := e.repo.UpdateNode(ctx, node); err != nil {
		return err
	}
	if err := e.repo.UpdateFile(ctx, file); err != nil {
		return err
	}
	if err := e.updateAssignment(ctx, file.ID, node.ID, result); err != nil {
		return err
	}

	e.blockNumber++
	event.Block = time.Now().Unix()
	e.lastEventHash = hashEvent(event)

	if e.cfg.BroadcastResults && e.sink != nil {
		return e.sink.Emit(ctx, event)
	}
	return nil
}

func (e *Engine) updateAssignment(ctx context.Context, fileID, nodeID uuid.UUID, result types.ChallengeResult) error {
	a, err := e.repo.GetAssignment(ctx, fileID, nodeID)
	if err != nil && !modules.IsNotFound(err) {
		return err
	}
	a.FileID, a.NodeID = fileID, nodeID
	a.ProofCount++
	if result != types.ChallengeSuccess {
		a.FailCount++
	}
	a.LastProofAt = time.Now()
	return e.repo.UpsertAssignment(ctx, a)
}

// penaltyFor computes min(20, floor(5 * 1.5^consecutiveFails)), read
// with consecutiveFails already incremented for this failure.
func penaltyFor(consecutiveFails int) int {
	p := int(math.Floor(5 * math.Pow(1.5, float64(consecutiveFails))))
	return min(20, p)
}

// deriveStatus applies the status derivation order: 3+ consecutive
// fails bans outright; otherwise reputation bands decide.
func deriveStatus(reputation, consecutiveFails int) types.NodeStatus {
	switch {
	case consecutiveFails >= 3:
		return types.NodeBanned
	case reputation < 10:
		return types.NodeBanned
	case reputation < 30:
		return types.NodeProbation
	default:
		return types.NodeActive
	}
}

// rarityMultiplier implements 1 / max(1, replicationCount); a
// replication count of 0 pays the full base reward.
func rarityMultiplier(replicationCount int) float64 {
	if replicationCount < 1 {
		replicationCount = 1
	}
	return 1 / float64(replicationCount)
}

func failReasonDescription(reason string) string {
	if reason == "" {
		return "unknown failure"
	}
	return reason
}

func hashEvent(e SettlementEvent) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", e.Type, e.NodeID, e.FileID, e.ChallengeID, e.Block)))
	return hex.EncodeToString(digest[:])
}

