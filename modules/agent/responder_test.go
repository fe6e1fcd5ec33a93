package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules"
)

// fakeDaemon serves a single fixed block layout, mirroring the fake
// used for ProofHasher's own tests, and records pin calls so the
// loopback pin endpoints can be checked for real delegation.
type fakeDaemon struct {
	blockCids []string
	content   map[string][]byte
	pinned    map[string]bool
}

func (d *fakeDaemon) Add(ctx context.Context, data []byte) (string, error) { return "", nil }
func (d *fakeDaemon) Cat(ctx context.Context, cid string) ([]byte, error)  { return d.content[cid], nil }
func (d *fakeDaemon) Refs(ctx context.Context, cid string) ([]string, error) {
	return d.blockCids, nil
}
func (d *fakeDaemon) Block(ctx context.Context, blockCid string) ([]byte, error) {
	return d.content[blockCid], nil
}
func (d *fakeDaemon) Pin(ctx context.Context, cid string) error {
	if d.pinned == nil {
		d.pinned = make(map[string]bool)
	}
	d.pinned[cid] = true
	return nil
}
func (d *fakeDaemon) Unpin(ctx context.Context, cid string) error {
	if !d.pinned[cid] {
		return modules.ErrNotFound
	}
	delete(d.pinned, cid)
	return nil
}
func (d *fakeDaemon) Pins(ctx context.Context) ([]string, error) {
	var pins []string
	for cid := range d.pinned {
		pins = append(pins, cid)
	}
	return pins, nil
}
func (d *fakeDaemon) Stat(ctx context.Context) (modules.DaemonStat, error) {
	return modules.DaemonStat{}, nil
}
func (d *fakeDaemon) IsOnline(ctx context.Context) bool          { return true }
func (d *fakeDaemon) PeerID(ctx context.Context) (string, error) { return "peer1", nil }

var _ modules.StorageDaemonClient = (*fakeDaemon)(nil)

func newTestEarningsStore(t *testing.T) *EarningsStore {
	t.Helper()
	dir := build.TempDir("agent", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	return NewEarningsStore(filepath.Join(dir, "earnings.json"))
}

func TestRespondComputesSaltThenBlockHash(t *testing.T) {
	daemon := &fakeDaemon{
		blockCids: []string{"QmBlockA", "QmBlockB"},
		content:   map[string][]byte{"QmBlockB": []byte("block contents")},
	}
	earnings := newTestEarningsStore(t)
	cr := NewChallengeResponder(daemon, earnings)

	resp, err := cr.Respond(context.Background(), "QmWhole", 1, "deadbeef", "validator1")
	if err != nil {
		t.Fatal(err)
	}

	h := sha256.New()
	h.Write([]byte("deadbeef"))
	h.Write([]byte("block contents"))
	want := hex.EncodeToString(h.Sum(nil))

	if resp.Proof != want {
		t.Errorf("proof = %q, want %q", resp.Proof, want)
	}
	if resp.BlockCID != "QmBlockB" {
		t.Errorf("blockCid = %q, want QmBlockB", resp.BlockCID)
	}
	if !resp.Success {
		t.Error("expected success = true")
	}
}

func TestRespondCreditsEarningsOnSuccess(t *testing.T) {
	daemon := &fakeDaemon{
		blockCids: []string{"QmBlockA"},
		content:   map[string][]byte{"QmBlockA": []byte("x")},
	}
	earnings := newTestEarningsStore(t)
	cr := NewChallengeResponder(daemon, earnings)

	if _, err := cr.Respond(context.Background(), "QmWhole", 0, "salt", "validator1"); err != nil {
		t.Fatal(err)
	}

	e, err := earnings.Load()
	if err != nil {
		t.Fatal(err)
	}
	if e.ChallengesPassed != 1 {
		t.Errorf("challengesPassed = %d, want 1", e.ChallengesPassed)
	}
	if e.TotalHBD != 0.001 {
		t.Errorf("totalHbd = %v, want 0.001", e.TotalHBD)
	}
	if e.ConsecutivePasses != 1 {
		t.Errorf("consecutivePasses = %d, want 1", e.ConsecutivePasses)
	}
}

func TestRespondOutOfRangeBlockIndexRecordsFailure(t *testing.T) {
	daemon := &fakeDaemon{blockCids: []string{"QmBlockA"}}
	earnings := newTestEarningsStore(t)
	cr := NewChallengeResponder(daemon, earnings)

	_, err := cr.Respond(context.Background(), "QmWhole", 5, "salt", "validator1")
	if !modules.IsInvalid(err) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	e, err := earnings.Load()
	if err != nil {
		t.Fatal(err)
	}
	if e.ChallengesFailed != 1 {
		t.Errorf("challengesFailed = %d, want 1", e.ChallengesFailed)
	}
}

func TestEarningsStorePersistsAcrossLoads(t *testing.T) {
	es := newTestEarningsStore(t)

	if _, err := es.RecordSuccess(time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := es.RecordSuccess(time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := es.RecordFailure(time.Now()); err != nil {
		t.Fatal(err)
	}

	e, err := es.Load()
	if err != nil {
		t.Fatal(err)
	}
	if e.ChallengesPassed != 2 || e.ChallengesFailed != 1 {
		t.Errorf("got passed=%d failed=%d, want 2/1", e.ChallengesPassed, e.ChallengesFailed)
	}
	if e.ConsecutivePasses != 0 {
		t.Errorf("consecutivePasses = %d, want 0 after a failure", e.ConsecutivePasses)
	}
}
