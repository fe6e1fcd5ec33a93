package poa

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/persist"
	"github.com/spknetwork/storage-coordinator/types"
)

func openTestRepo(t *testing.T) *persist.BoltRepository {
	t.Helper()
	dir := build.TempDir("poa", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	repo, err := persist.OpenBoltRepository(filepath.Join(dir, "repo.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// fakeDaemon serves a single block layout for every CID it's asked
// about: refs returns blockCids, cat/block return deterministic content
// keyed by the argument.
type fakeDaemon struct {
	blockCids []string
	content   map[string][]byte
}

func (d *fakeDaemon) Add(ctx context.Context, data []byte) (string, error) { return "", nil }
func (d *fakeDaemon) Cat(ctx context.Context, cid string) ([]byte, error)  { return d.content[cid], nil }
func (d *fakeDaemon) Refs(ctx context.Context, cid string) ([]string, error) {
	return d.blockCids, nil
}
func (d *fakeDaemon) Block(ctx context.Context, blockCid string) ([]byte, error) {
	return d.content[blockCid], nil
}
func (d *fakeDaemon) Pin(ctx context.Context, cid string) error   { return nil }
func (d *fakeDaemon) Unpin(ctx context.Context, cid string) error { return nil }
func (d *fakeDaemon) Pins(ctx context.Context) ([]string, error)  { return nil, nil }
func (d *fakeDaemon) Stat(ctx context.Context) (modules.DaemonStat, error) {
	return modules.DaemonStat{}, nil
}
func (d *fakeDaemon) IsOnline(ctx context.Context) bool        { return true }
func (d *fakeDaemon) PeerID(ctx context.Context) (string, error) { return "peer", nil }

var _ modules.StorageDaemonClient = (*fakeDaemon)(nil)

type fakeSink struct {
	events []SettlementEvent
}

func (s *fakeSink) Emit(ctx context.Context, e SettlementEvent) error {
	s.events = append(s.events, e)
	return nil
}

func seedNodeAndFile(t *testing.T, repo *persist.BoltRepository, reputation, consecutiveFails, replicationCount int) (types.StorageNode, types.File) {
	t.Helper()
	ctx := context.Background()
	node, err := repo.CreateNode(ctx, types.StorageNode{
		PeerID: "peer1", OperatorName: "alice", Status: types.NodeActive,
		Reputation: reputation, ConsecutiveFails: consecutiveFails, LastSeen: time.Now(),
		TotalEarned: types.ZeroHBD,
	})
	if err != nil {
		t.Fatal(err)
	}
	file, err := repo.CreateFile(ctx, types.File{
		CID: "Qm1", Name: "f1", Uploader: "alice", Status: types.FilePinned,
		ReplicationCount: replicationCount, PoAEnabled: true, Earned: types.ZeroHBD,
	})
	if err != nil {
		t.Fatal(err)
	}
	return node, file
}

func TestTickSuccessInSimulationMode(t *testing.T) {
	repo := openTestRepo(t)
	seedNodeAndFile(t, repo, 80, 0, 1)

	daemon := &fakeDaemon{blockCids: nil, content: map[string][]byte{"Qm1": []byte("whole object")}}
	sink := &fakeSink{}
	e := New(repo, daemon, nil, sink, nil, uuid.New(), "validator1", Config{
		ChallengePeriod: time.Second, ChallengeTimeout: time.Second,
		Mode: ModeSimulation, BroadcastResults: true,
	})

	if err := e.tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	nodes, err := repo.ListNodes(context.Background(), modules.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	if nodes[0].Reputation != 81 {
		t.Errorf("reputation = %d, want 81", nodes[0].Reputation)
	}
	if nodes[0].ConsecutiveFails != 0 {
		t.Errorf("consecutiveFails = %d, want 0", nodes[0].ConsecutiveFails)
	}
	if nodes[0].Status != types.NodeActive {
		t.Errorf("status = %v, want active", nodes[0].Status)
	}
	if len(sink.events) != 1 || sink.events[0].Type != "transfer" {
		t.Fatalf("expected one transfer event, got %+v", sink.events)
	}
	if !sink.events[0].Amount.Equal(types.BaseReward) {
		t.Errorf("amount = %v, want %v", sink.events[0].Amount, types.BaseReward)
	}
}

// TestRarityReward checks that replicationCount=4 applies a 0.25
// rarity multiplier to the 0.001 base reward. The exact product, 0.00025,
// sits on a rounding tie at the fourth decimal place; ties-to-even rounds
// it to 0.0002, the even candidate, not 0.0003.
func TestRarityReward(t *testing.T) {
	repo := openTestRepo(t)
	seedNodeAndFile(t, repo, 50, 0, 4)

	daemon := &fakeDaemon{content: map[string][]byte{"Qm1": []byte("whole object")}}
	sink := &fakeSink{}
	e := New(repo, daemon, nil, sink, nil, uuid.New(), "validator1", Config{
		ChallengePeriod: time.Second, ChallengeTimeout: time.Second,
		Mode: ModeSimulation, BroadcastResults: true,
	})

	if err := e.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := sink.events[0].Amount.String4(); got != "0.0002" {
		t.Errorf("reward = %q, want 0.0002", got)
	}
}

// fakeChannel always answers with a mismatching proof hash, forcing a
// PROOF_MISMATCH failure path through live mode.
type fakeChannel struct {
	proofHash string
	err       error
}

func (c *fakeChannel) RequestProof(ctx context.Context, req modules.ChallengeRequest) (modules.ChallengeResponse, error) {
	if c.err != nil {
		return modules.ChallengeResponse{}, c.err
	}
	return modules.ChallengeResponse{ProofHash: c.proofHash}, nil
}

// TestInstantBan checks that consecutiveFails=2 followed by a
// mismatch brings the node straight to banned with reputation 0.
func TestInstantBan(t *testing.T) {
	repo := openTestRepo(t)
	seedNodeAndFile(t, repo, 90, 2, 1)

	daemon := &fakeDaemon{content: map[string][]byte{"Qm1": []byte("whole object")}}
	channel := &fakeChannel{proofHash: "wrong"}
	sink := &fakeSink{}
	e := New(repo, daemon, channel, sink, nil, uuid.New(), "validator1", Config{
		ChallengePeriod: time.Second, ChallengeTimeout: time.Second,
		Mode: ModeLive, BroadcastResults: true,
	})

	if err := e.tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	nodes, err := repo.ListNodes(context.Background(), modules.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	n := nodes[0]
	if n.ConsecutiveFails != 3 {
		t.Errorf("consecutiveFails = %d, want 3", n.ConsecutiveFails)
	}
	if n.Reputation != 0 {
		t.Errorf("reputation = %d, want 0", n.Reputation)
	}
	if n.Status != types.NodeBanned {
		t.Errorf("status = %v, want banned", n.Status)
	}
	if len(sink.events) != 1 || sink.events[0].Type != "slash" {
		t.Fatalf("expected one slash event, got %+v", sink.events)
	}
}

func TestTickSkipsEmptyEligibleSet(t *testing.T) {
	repo := openTestRepo(t)
	daemon := &fakeDaemon{}
	e := New(repo, daemon, nil, nil, nil, uuid.New(), "validator1", DefaultConfig())
	e.cfg.Mode = ModeSimulation

	if err := e.tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	challenges, err := repo.ListChallenges(context.Background(), uuid.Nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(challenges) != 0 {
		t.Errorf("expected no challenge to be created, got %d", len(challenges))
	}
}

func TestPenaltyForGrowsWithConsecutiveFails(t *testing.T) {
	cases := []struct {
		fails int
		want  int
	}{
		{1, 7},
		{2, 11},
		{3, 16},
		{10, 20}, // clamped to the 20-point ceiling
	}
	for _, c := range cases {
		if got := penaltyFor(c.fails); got != c.want {
			t.Errorf("penaltyFor(%d) = %d, want %d", c.fails, got, c.want)
		}
	}
}

func TestRarityMultiplierTreatsZeroAsOne(t *testing.T) {
	if got := rarityMultiplier(0); got != 1 {
		t.Errorf("rarityMultiplier(0) = %v, want 1", got)
	}
	if got := rarityMultiplier(4); got != 0.25 {
		t.Errorf("rarityMultiplier(4) = %v, want 0.25", got)
	}
}
