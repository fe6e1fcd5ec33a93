package types

import "testing"

// TestRarityReward checks the quarter-replication reward: 0.001 * 0.25
// is exactly 0.00025, a four-decimal tie that banker's rounding
// resolves to the even 0.0002.
func TestRarityReward(t *testing.T) {
	reward := BaseReward.Mul(1.0 / 4.0)
	if got := reward.String4(); got != "0.0002" {
		t.Errorf("got %s, want 0.0002", got)
	}
}

// TestHappyChallengeReward checks that a fully-replicated file pays the
// unscaled base reward.
func TestHappyChallengeReward(t *testing.T) {
	reward := BaseReward.Mul(1.0)
	if got := reward.String4(); got != "0.0010" {
		t.Errorf("got %s, want 0.0010", got)
	}
}

// TestPayoutStringFixed checks the three-decimal payout line-item
// format.
func TestPayoutStringFixed(t *testing.T) {
	amount := NewHBDFromString("0.001").Mul(10) // 10 successful proofs
	if got := amount.String(); got != "0.010" {
		t.Errorf("got %s, want 0.010", got)
	}
}

// TestHBDAddAndEqual exercises basic arithmetic used throughout payout
// aggregation.
func TestHBDAddAndEqual(t *testing.T) {
	a := NewHBDFromString("0.010")
	b := NewHBDFromString("0.007")
	sum := a.Add(b)
	if !sum.Equal(NewHBDFromString("0.017")) {
		t.Errorf("got %s, want 0.017", sum.String())
	}
}

// TestJobStatusIsLeased checks the lease-bearing status set.
func TestJobStatusIsLeased(t *testing.T) {
	leased := []JobStatus{JobAssigned, JobDownloading, JobEncoding, JobUploading}
	for _, s := range leased {
		if !s.IsLeased() {
			t.Errorf("%s should be a leased status", s)
		}
	}
	unleased := []JobStatus{JobQueued, JobCompleted, JobFailed, JobCancelled}
	for _, s := range unleased {
		if s.IsLeased() {
			t.Errorf("%s should not be a leased status", s)
		}
	}
}
