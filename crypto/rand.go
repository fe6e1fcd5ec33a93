package crypto

// rand.go wraps github.com/NebulousLabs/fastrand, which is faster than
// crypto/rand under concurrent callers and never returns an error.

import (
	"github.com/NebulousLabs/fastrand"
)

// RandBytes returns n bytes of cryptographically secure random data.
func RandBytes(n int) []byte {
	return fastrand.Bytes(n)
}

// RandIntn returns a uniform random value in [0,n). It panics if n <= 0.
func RandIntn(n int) int {
	return fastrand.Intn(n)
}

// Perm returns a random permutation of the integers [0,n).
func Perm(n int) []int {
	return fastrand.Perm(n)
}
