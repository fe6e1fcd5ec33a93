package crypto

import (
	"context"
	"errors"
	"testing"
)

type mapFetcher struct {
	whole  map[string][]byte
	blocks map[string][]byte
}

func (m mapFetcher) FetchWhole(_ context.Context, cid string) ([]byte, error) {
	b, ok := m.whole[cid]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (m mapFetcher) FetchBlock(_ context.Context, blockCid string) ([]byte, error) {
	b, ok := m.blocks[blockCid]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

// TestSampleIndicesDeterministic checks that identical (salt, n)
// inputs always produce an identical index sequence.
func TestSampleIndicesDeterministic(t *testing.T) {
	salt := "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"
	a := SampleIndices(salt, 20)
	b := SampleIndices(salt, 20)
	if len(a) != len(b) {
		t.Fatalf("mismatched lengths: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("mismatch at %d: %v vs %v", i, a, b)
		}
	}
	if len(a) == 0 {
		t.Fatal("expected at least one sampled index")
	}
	if len(a) > MaxSampledBlocks {
		t.Fatalf("sampled too many blocks: %d", len(a))
	}
	for i := 1; i < len(a); i++ {
		if a[i] < a[i-1] {
			t.Errorf("indices must be non-decreasing: %v", a)
		}
	}
}

// TestSampleIndicesEmpty checks that an n of 0 samples nothing.
func TestSampleIndicesEmpty(t *testing.T) {
	if idx := SampleIndices("deadbeef", 0); idx != nil {
		t.Errorf("expected nil indices, got %v", idx)
	}
}

// TestComputeProofWholeObject checks the empty-refs path: the whole
// object is fetched and hashed with the salt.
func TestComputeProofWholeObject(t *testing.T) {
	fetcher := mapFetcher{whole: map[string][]byte{"Qm1": []byte("file contents")}}
	ph := NewProofHasher(fetcher)

	got, err := ph.ComputeProof(context.Background(), "salt1", "Qm1", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := hashBlock([]byte("file contents"), "salt1")
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

// TestComputeProofDeterministic checks that ComputeProof returns the
// identical digest across repeated calls with identical inputs.
func TestComputeProofDeterministic(t *testing.T) {
	blocks := map[string][]byte{
		"b0": []byte("block zero"),
		"b1": []byte("block one"),
		"b2": []byte("block two"),
	}
	fetcher := mapFetcher{blocks: blocks}
	ph := NewProofHasher(fetcher)

	refs := []string{"b0", "b1", "b2"}
	salt := "aa01"

	first, err := ph.ComputeProof(context.Background(), salt, "Qm1", refs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ph.ComputeProof(context.Background(), salt, "Qm1", refs)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("ComputeProof is not deterministic: %s != %s", first, second)
	}
}

// TestComputeProofFetchFailure checks that failure of any block fetch
// fails the whole computation.
func TestComputeProofFetchFailure(t *testing.T) {
	fetcher := mapFetcher{blocks: map[string][]byte{"b0": []byte("only block")}}
	ph := NewProofHasher(fetcher)

	_, err := ph.ComputeProof(context.Background(), "salt", "Qm1", []string{"b0", "missing"})
	if err == nil {
		t.Fatal("expected error when a sampled block cannot be fetched")
	}
}
