package sessions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spknetwork/storage-coordinator/modules"
)

// fakeIdentity is an in-memory modules.IdentityProvider stand-in: valid
// reports whether a signature verifies, and rank holds each username's
// current witness rank (0 meaning unranked).
type fakeIdentity struct {
	valid map[string]bool
	rank  map[string]int
}

func (f *fakeIdentity) VerifySignature(ctx context.Context, username, challenge, signature string) (bool, error) {
	return f.valid[username], nil
}

func (f *fakeIdentity) WitnessRank(ctx context.Context, username string) (int, bool, error) {
	r, ok := f.rank[username]
	return r, ok && r > 0, nil
}

func (f *fakeIdentity) IsTopWitness(ctx context.Context, username string, topN int) (bool, error) {
	r, ok := f.rank[username]
	return ok && r > 0 && r <= topN, nil
}

var _ modules.IdentityProvider = (*fakeIdentity)(nil)

func challengeAt(t time.Time) string {
	return fmt.Sprintf("%s%d", challengePrefix, t.UnixMilli())
}

func newTestManager(identity *fakeIdentity, now time.Time) *Manager {
	m := New(identity)
	m.now = func() time.Time { return now }
	return m
}

func TestLoginMintsTokenForTopWitness(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{"alice": true}, rank: map[string]int{"alice": 10}}
	m := newTestManager(identity, now)
	defer m.Close()

	token, err := m.Login(context.Background(), "alice", "sig", challengeAt(now))
	if err != nil {
		t.Fatal(err)
	}
	if len(token) == 0 {
		t.Fatal("expected a non-empty token")
	}

	session, err := m.Validate(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if session.Username != "alice" {
		t.Errorf("username = %q, want alice", session.Username)
	}
}

func TestLoginRejectsBadSignature(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{}, rank: map[string]int{"alice": 10}}
	m := newTestManager(identity, now)
	defer m.Close()

	_, err := m.Login(context.Background(), "alice", "sig", challengeAt(now))
	if !modules.IsUnauthorized(err) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestLoginRejectsNonTopWitness(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{"bob": true}, rank: map[string]int{"bob": 999}}
	m := newTestManager(identity, now)
	defer m.Close()

	_, err := m.Login(context.Background(), "bob", "sig", challengeAt(now))
	if !modules.IsUnauthorized(err) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestLoginRejectsStaleChallenge(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{"alice": true}, rank: map[string]int{"alice": 1}}
	m := newTestManager(identity, now)
	defer m.Close()

	stale := challengeAt(now.Add(-10 * time.Minute))
	_, err := m.Login(context.Background(), "alice", "sig", stale)
	if !modules.IsInvalid(err) {
		t.Errorf("expected invalid, got %v", err)
	}
}

func TestValidateRevokesWhenRankLost(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{"alice": true}, rank: map[string]int{"alice": 1}}
	m := newTestManager(identity, now)
	defer m.Close()

	token, err := m.Login(context.Background(), "alice", "sig", challengeAt(now))
	if err != nil {
		t.Fatal(err)
	}

	// alice falls out of the top cohort between login and validation.
	identity.rank["alice"] = 500

	if _, err := m.Validate(context.Background(), token); !modules.IsUnauthorized(err) {
		t.Errorf("expected session to be revoked, got %v", err)
	}
	// the session must actually be gone, not just rejected once.
	identity.rank["alice"] = 1
	if _, err := m.Validate(context.Background(), token); !modules.IsUnauthorized(err) {
		t.Errorf("expected evicted session to stay gone, got %v", err)
	}
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{"alice": true}, rank: map[string]int{"alice": 1}}
	m := newTestManager(identity, now)
	defer m.Close()

	token, err := m.Login(context.Background(), "alice", "sig", challengeAt(now))
	if err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return now.Add(25 * time.Hour) }
	if _, err := m.Validate(context.Background(), token); !modules.IsUnauthorized(err) {
		t.Errorf("expected expired session to be rejected, got %v", err)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	identity := &fakeIdentity{}
	m := newTestManager(identity, time.Now())
	defer m.Close()

	if _, err := m.Validate(context.Background(), "nonexistent"); !modules.IsUnauthorized(err) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestSweepRemovesEveryExpiredSession(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{valid: map[string]bool{"alice": true, "bob": true}, rank: map[string]int{"alice": 1, "bob": 2}}
	m := newTestManager(identity, now)
	defer m.Close()

	live, err := m.Login(context.Background(), "alice", "sig", challengeAt(now))
	if err != nil {
		t.Fatal(err)
	}
	expiring, err := m.Login(context.Background(), "bob", "sig", challengeAt(now))
	if err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return now.Add(25 * time.Hour) }
	if removed := m.sweep(); removed != 2 {
		t.Errorf("sweep removed %d, want 2", removed)
	}
	if _, found := m.sessions[live]; found {
		t.Error("expected live token to be swept once expired")
	}
	if _, found := m.sessions[expiring]; found {
		t.Error("expected second token to be swept once expired")
	}
}

func TestDemoModeOffByDefault(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	m := newTestManager(identity, now)
	defer m.Close()

	_, err := m.Login(context.Background(), DemoUser, "sig", challengeAt(now))
	if !modules.IsUnauthorized(err) {
		t.Errorf("expected unauthorized for demo_user with demo mode off, got %v", err)
	}
}

func TestDemoModeBypassesIdentityChecks(t *testing.T) {
	now := time.Now()
	identity := &fakeIdentity{}
	m := newTestManager(identity, now)
	defer m.Close()
	m.EnableDemoMode()

	token, err := m.Login(context.Background(), DemoUser, "", challengeAt(now))
	if err != nil {
		t.Fatal(err)
	}
	session, err := m.Validate(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if session.Username != DemoUser {
		t.Errorf("username = %q, want %q", session.Username, DemoUser)
	}

	// only the demo user bypasses; everyone else still fails.
	if _, err := m.Login(context.Background(), "alice", "sig", challengeAt(now)); !modules.IsUnauthorized(err) {
		t.Errorf("expected unauthorized for alice, got %v", err)
	}
}
