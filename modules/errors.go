package modules

import "github.com/NebulousLabs/errors"

// Sentinel errors, one per branch of the outcome taxonomy.
// Every package that surfaces a failure across a module
// boundary wraps one of these with errors.Extend so callers can classify
// it with errors.Contains without caring which component raised it.
var (
	// ErrNotFound indicates the referenced id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the request collides with an existing
	// record: a duplicate (owner,permlink), a second claim of an
	// already-assigned job, a repeated deposit txHash.
	ErrConflict = errors.New("conflict")

	// ErrTransient indicates a timeout or temporary unavailability.
	// Callers retry with backoff; it is not user-visible unless
	// retries are exhausted.
	ErrTransient = errors.New("transient failure")

	// ErrInvalid indicates malformed input: an expired challenge
	// string, a bad lease signature, an out-of-range parameter.
	ErrInvalid = errors.New("invalid request")

	// ErrUnauthorized indicates a missing or expired session token, or
	// an operator that has fallen out of the top-witness set.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrFatal indicates a condition the process cannot route around:
	// the daemon binary is missing, the repo is corrupted. The
	// supervisor reports it to its status surface and keeps running.
	ErrFatal = errors.New("fatal")
)

// IsNotFound reports whether err (or anything it wraps) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Contains(err, ErrNotFound) }

// IsConflict reports whether err (or anything it wraps) is ErrConflict.
func IsConflict(err error) bool { return errors.Contains(err, ErrConflict) }

// IsTransient reports whether err (or anything it wraps) is ErrTransient.
func IsTransient(err error) bool { return errors.Contains(err, ErrTransient) }

// IsInvalid reports whether err (or anything it wraps) is ErrInvalid.
func IsInvalid(err error) bool { return errors.Contains(err, ErrInvalid) }

// IsUnauthorized reports whether err (or anything it wraps) is
// ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Contains(err, ErrUnauthorized) }

// IsFatal reports whether err (or anything it wraps) is ErrFatal.
func IsFatal(err error) bool { return errors.Contains(err, ErrFatal) }
