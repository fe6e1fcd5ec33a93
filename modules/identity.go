package modules

import "context"

// ChallengeMaxAge is how old a login challenge string may be before it
// is rejected.
const ChallengeMaxAge = 5 * 60 // seconds

// TopWitnessCount is the default "topN" cutoff for IsTopWitness.
const TopWitnessCount = 150

// IdentityProvider verifies Hive-style keypair signatures and reports an
// account's witness rank in the external ledger. It is
// stateless: every call is independent and any failure is reported, never
// swallowed.
type IdentityProvider interface {
	// VerifySignature reports whether signature is a valid signature of
	// challenge by username's posting key. Callers are responsible for
	// validating the challenge string's format and age before calling
	// this; VerifySignature itself does not parse the challenge.
	VerifySignature(ctx context.Context, username, challenge, signature string) (bool, error)

	// WitnessRank returns username's current rank in the external
	// witness ledger. ok is false if the account holds no rank at all.
	WitnessRank(ctx context.Context, username string) (rank int, ok bool, err error)

	// IsTopWitness reports whether username's rank is within the top
	// topN witnesses (1-indexed, so rank <= topN).
	IsTopWitness(ctx context.Context, username string, topN int) (bool, error)
}
