package crypto

// proof.go implements the deterministic Proof-of-Access challenge math:
// given a salt and the ordered block CIDs that make up a piece of content,
// compute the single digest that a storage node must reproduce to prove it
// still holds that content. Every step here is fixed exactly (salt
// entropy aside) so that two independent implementations reach the same
// digest for identical inputs.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"

	"golang.org/x/sync/errgroup"
)

// MaxSampledBlocks bounds how many block indices computeProof will ever
// sample, independent of how many blocks the object actually has.
const MaxSampledBlocks = 5

// BlockFetcher retrieves raw bytes: the whole object behind a CID, or a
// single block addressed by its own block CID. ProofHasher has no opinion
// on how those bytes are stored.
type BlockFetcher interface {
	// FetchWhole returns the complete bytes behind cid.
	FetchWhole(ctx context.Context, cid string) ([]byte, error)
	// FetchBlock returns the bytes behind the single block blockCid.
	FetchBlock(ctx context.Context, blockCid string) ([]byte, error)
}

// ProofHasher computes the deterministic proof digest a storage node
// must reproduce.
type ProofHasher struct {
	fetcher BlockFetcher
}

// NewProofHasher constructs a ProofHasher backed by the given fetcher.
func NewProofHasher(fetcher BlockFetcher) *ProofHasher {
	return &ProofHasher{fetcher: fetcher}
}

// fnv1a32 hashes data with the 32-bit FNV-1a variant, using the standard
// offset basis and prime.
func fnv1a32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data) //nolint:errcheck // hash.Hash.Write never errors
	return h.Sum32()
}

// SampleIndices produces the deterministic block-index walk:
// seed0 = fnv1a(salt) mod N; each subsequent seed accumulates the
// hex digests of "block_<seed>_<salt>" and advances by fnv1a(salt||acc)
// mod N, stopping once a seed lands at or past N or five indices have
// been produced.
func SampleIndices(salt string, n int) []int {
	if n <= 0 {
		return nil
	}
	N := uint32(n)
	seed := fnv1a32([]byte(salt)) % N

	var indices []int
	var acc []byte
	for len(indices) < MaxSampledBlocks {
		if seed >= N {
			break
		}
		indices = append(indices, int(seed))

		blockTag := []byte("block_" + itoa(seed) + "_" + salt)
		digest := sha256.Sum256(blockTag)
		acc = append(acc, []byte(hex.EncodeToString(digest[:]))...)

		step := fnv1a32(append([]byte(salt), acc...)) % N
		seed = seed + step
	}
	return indices
}

// itoa avoids pulling in strconv just for a uint32-to-decimal conversion
// used only inside the hot sampling loop.
func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// hashBlock hashes block content together with the salt, as specified:
// sha256(block || salt), hex-encoded.
func hashBlock(block []byte, salt string) string {
	h := sha256.Sum256(append(append([]byte{}, block...), []byte(salt)...))
	return hex.EncodeToString(h[:])
}

// ComputeProof computes the challenge digest for (salt, cid). If
// blockCids is empty the whole object is fetched and hashed directly;
// otherwise up to five blocks are sampled deterministically from salt,
// fetched in parallel, individually hashed with the salt, and the
// index-ascending concatenation of those hex digests is hashed once more
// to produce the final digest.
func (p *ProofHasher) ComputeProof(ctx context.Context, salt, cid string, blockCids []string) (string, error) {
	if len(blockCids) == 0 {
		whole, err := p.fetcher.FetchWhole(ctx, cid)
		if err != nil {
			return "", err
		}
		h := sha256.Sum256(append(append([]byte{}, whole...), []byte(salt)...))
		return hex.EncodeToString(h[:]), nil
	}

	indices := SampleIndices(salt, len(blockCids))
	digests := make([]string, len(indices))

	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range indices {
		i, idx := i, idx
		g.Go(func() error {
			block, err := p.fetcher.FetchBlock(gctx, blockCids[idx])
			if err != nil {
				return err
			}
			digests[i] = hashBlock(block, salt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var concat []byte
	for _, d := range digests {
		concat = append(concat, []byte(d)...)
	}
	final := sha256.Sum256(concat)
	return hex.EncodeToString(final[:]), nil
}
