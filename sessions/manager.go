// Package sessions manages operator authentication sessions. The
// session store is a bounded in-memory cache protected by a single
// mutex, not a Repository-backed entity.
package sessions

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/fastrand"
	"github.com/NebulousLabs/threadgroup"

	"github.com/spknetwork/storage-coordinator/lock"
	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/types"
)

const (
	// tokenBytes is the entropy a minted token carries before
	// base64url-encoding.
	tokenBytes = 48

	// sessionTTL is how long a freshly minted session remains valid.
	sessionTTL = 24 * time.Hour

	// challengePrefix is the fixed prefix every login challenge string
	// must carry.
	challengePrefix = "SPK-Validator-Login-"

	// sweepInterval is how often the background sweep evicts expired
	// sessions.
	sweepInterval = time.Minute

	// maxLockTime bounds how long the session mutex may be held before
	// lock.Mutex force-releases it and logs a warning.
	maxLockTime = 10 * time.Second
)

// DemoUser is the username the demo-mode bypass recognizes. With demo
// mode off (the default) it is an ordinary username subject to every
// check.
const DemoUser = "demo_user"

// Manager mints, validates, and sweeps operator login sessions. It
// holds identity as its only external collaborator; everything else is
// in-memory state guarded by mu.
type Manager struct {
	identity modules.IdentityProvider
	demoMode bool

	mu       *lock.Mutex
	sessions map[string]types.Session

	tg threadgroup.ThreadGroup

	now func() time.Time
}

// New returns a Manager that verifies logins against identity. Call
// Close when the manager is no longer needed to stop its sweep loop.
func New(identity modules.IdentityProvider) *Manager {
	m := &Manager{
		identity: identity,
		mu:       lock.New(maxLockTime),
		sessions: make(map[string]types.Session),
		now:      time.Now,
	}
	go m.threadedSweep()
	return m
}

// EnableDemoMode lets DemoUser log in and validate without signature or
// witness checks. Off by default; intended for local development only.
func (m *Manager) EnableDemoMode() {
	m.demoMode = true
}

// demoBypass reports whether username skips identity checks entirely.
func (m *Manager) demoBypass(username string) bool {
	return m.demoMode && username == DemoUser
}

// Close stops the background sweep and waits for it to exit.
func (m *Manager) Close() error {
	return m.tg.Stop()
}

// validateChallenge checks that challenge has the form
// "SPK-Validator-Login-<unixMillis>" and is no older than
// modules.ChallengeMaxAge.
func validateChallenge(challenge string, now time.Time) error {
	if !strings.HasPrefix(challenge, challengePrefix) {
		return errors.Extend(fmt.Errorf("malformed challenge %q", challenge), modules.ErrInvalid)
	}
	ms, err := strconv.ParseInt(strings.TrimPrefix(challenge, challengePrefix), 10, 64)
	if err != nil {
		return errors.Extend(fmt.Errorf("malformed challenge timestamp: %v", err), modules.ErrInvalid)
	}
	issued := time.UnixMilli(ms)
	age := now.Sub(issued)
	if age < 0 || age > modules.ChallengeMaxAge*time.Second {
		return errors.Extend(fmt.Errorf("challenge age %v exceeds limit", age), modules.ErrInvalid)
	}
	return nil
}

// Login verifies the challenge, the signature, and top-witness status,
// then mints and stores a new session token.
func (m *Manager) Login(ctx context.Context, username, signature, challenge string) (string, error) {
	if err := validateChallenge(challenge, m.now()); err != nil {
		return "", err
	}

	if m.demoBypass(username) {
		return m.mint(username), nil
	}

	ok, err := m.identity.VerifySignature(ctx, username, challenge, signature)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Extend(fmt.Errorf("signature does not verify for %q", username), modules.ErrUnauthorized)
	}

	top, err := m.identity.IsTopWitness(ctx, username, modules.TopWitnessCount)
	if err != nil {
		return "", err
	}
	if !top {
		return "", errors.Extend(fmt.Errorf("%q is not a top-%d witness", username, modules.TopWitnessCount), modules.ErrUnauthorized)
	}

	return m.mint(username), nil
}

// mint creates, stores, and returns a fresh session token for username.
func (m *Manager) mint(username string) string {
	token := base64.URLEncoding.EncodeToString(fastrand.Bytes(tokenBytes))
	session := types.Session{
		Token:     token,
		Username:  username,
		ExpiresAt: m.now().Add(sessionTTL),
	}

	id := m.mu.Lock("Login")
	m.sessions[token] = session
	m.mu.Unlock("Login", id)

	return token
}

// Validate loads the session behind token, rejecting it if expired, and
// re-checks the holder's witness rank on every call: a witness that
// drops out of the top cohort loses its session immediately.
func (m *Manager) Validate(ctx context.Context, token string) (types.Session, error) {
	id := m.mu.Lock("Validate")
	session, found := m.sessions[token]
	m.mu.Unlock("Validate", id)

	if !found {
		return types.Session{}, modules.ErrUnauthorized
	}
	if session.ExpiresAt.Before(m.now()) {
		m.evict(token)
		return types.Session{}, modules.ErrUnauthorized
	}

	if m.demoBypass(session.Username) {
		return session, nil
	}

	top, err := m.identity.IsTopWitness(ctx, session.Username, modules.TopWitnessCount)
	if err != nil {
		return types.Session{}, err
	}
	if !top {
		m.evict(token)
		return types.Session{}, errors.Extend(fmt.Errorf("%q is no longer a top-%d witness", session.Username, modules.TopWitnessCount), modules.ErrUnauthorized)
	}

	return session, nil
}

func (m *Manager) evict(token string) {
	id := m.mu.Lock("evict")
	delete(m.sessions, token)
	m.mu.Unlock("evict", id)
}

// sweep removes every session past its TTL and returns how many were
// removed.
func (m *Manager) sweep() int {
	now := m.now()
	id := m.mu.Lock("sweep")
	defer m.mu.Unlock("sweep", id)

	removed := 0
	for token, session := range m.sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// threadedSweep periodically evicts expired sessions until the manager
// is closed.
func (m *Manager) threadedSweep() {
	if err := m.tg.Add(); err != nil {
		return
	}
	defer m.tg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.tg.StopChan():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
