package crypto

// hash.go supplies a few general hashing functions, using the hashing
// algorithm SHA-256. Proof digests are plain SHA-256 over salt+block
// concatenations, so the whole system standardizes on the standard
// library's crypto/sha256.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
)

const (
	HashSize = 32
)

type (
	Hash [HashSize]byte

	// HashSlice is used for sorting
	HashSlice []Hash
)

var (
	ErrHashWrongLen = errors.New("encoded value has the wrong length to be a hash")
)

// NewHash returns a SHA-256 hasher.
func NewHash() hash.Hash {
	return sha256.New()
}

// HashAll takes a set of objects as input, JSON-encodes them, and hashes
// the concatenation of the encodings.
func HashAll(objs ...interface{}) (Hash, error) {
	var b []byte
	for _, obj := range objs {
		encoded, err := json.Marshal(obj)
		if err != nil {
			return Hash{}, err
		}
		b = append(b, encoded...)
	}
	return HashBytes(b), nil
}

// HashBytes takes a byte slice and returns its SHA-256 digest.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashObject JSON-encodes obj and hashes the result.
func HashObject(obj interface{}) (Hash, error) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(encoded), nil
}

// These functions implement sort.Interface, allowing hashes to be sorted.
func (hs HashSlice) Len() int           { return len(hs) }
func (hs HashSlice) Less(i, j int) bool { return bytes.Compare(hs[i][:], hs[j][:]) < 0 }
func (hs HashSlice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

// MarshalJSON marshals a hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// String prints the hash in hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// LoadString loads a hex-encoded hash into h.
func (h *Hash) LoadString(s string) error {
	if len(s) != HashSize*2 {
		return ErrHashWrongLen
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	copy(h[:], b)
	return nil
}

// UnmarshalJSON decodes the json hex string of the hash.
func (h *Hash) UnmarshalJSON(b []byte) error {
	// *2 because there are 2 hex characters per byte.
	// +2 because the encoded JSON string has a `"` added at the beginning and end.
	if len(b) != HashSize*2+2 {
		return ErrHashWrongLen
	}

	// b[1 : len(b)-1] cuts off the leading and trailing `"` in the JSON string.
	hBytes, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return errors.New("could not unmarshal crypto.Hash: " + err.Error())
	}
	copy(h[:], hBytes)
	return nil
}
