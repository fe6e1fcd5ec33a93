// Package lock provides the instrumented mutex guarding the
// coordinator's in-memory session store. Session operations sit on the
// hot path of every authenticated operator request; a wedged store
// would freeze the whole API surface. The mutex therefore carries a
// hold deadline: a holder that keeps the lock past the deadline is
// logged by its call-site tag and the lock is force-released, so the
// API keeps answering while the offending code path is investigated.
package lock

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Mutex is a mutual-exclusion lock with a bounded hold time. Lock
// returns a ticket; Unlock must present the same ticket back. A holder
// that misses the deadline loses the lock and its late Unlock becomes a
// logged no-op instead of an unlock-of-unlocked-mutex panic.
type Mutex struct {
	mu sync.Mutex

	// holders maps outstanding tickets to the tag passed at Lock time,
	// so the force-release log line names the code path that wedged.
	holdersMu  sync.Mutex
	holders    map[uint64]string
	nextTicket uint64

	maxHold time.Duration
}

// New returns a Mutex that force-releases any hold lasting longer than
// maxHold.
func New(maxHold time.Duration) *Mutex {
	return &Mutex{
		holders: make(map[uint64]string),
		maxHold: maxHold,
	}
}

// Lock acquires the mutex and returns the ticket Unlock must present.
// tag names the caller in the force-release log line.
func (m *Mutex) Lock(tag string) uint64 {
	m.holdersMu.Lock()
	ticket := m.nextTicket
	m.nextTicket++
	m.holders[ticket] = tag
	m.holdersMu.Unlock()

	m.mu.Lock()

	time.AfterFunc(m.maxHold, func() {
		m.holdersMu.Lock()
		defer m.holdersMu.Unlock()
		if _, held := m.holders[ticket]; held {
			fmt.Fprintf(os.Stderr, "lock: %q held the session lock past %v, force-releasing (ticket %d)\n", tag, m.maxHold, ticket)
			delete(m.holders, ticket)
			m.mu.Unlock()
		}
	})

	return ticket
}

// Unlock releases the mutex. If the deadline already force-released
// this ticket, the call is logged and otherwise ignored.
func (m *Mutex) Unlock(tag string, ticket uint64) {
	m.holdersMu.Lock()
	defer m.holdersMu.Unlock()
	if _, held := m.holders[ticket]; !held {
		fmt.Fprintf(os.Stderr, "lock: %q unlocked ticket %d after it was already force-released\n", tag, ticket)
		return
	}
	delete(m.holders, ticket)
	m.mu.Unlock()
}
