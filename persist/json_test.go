package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spknetwork/storage-coordinator/build"
)

type testRecord struct {
	One   string
	Two   uint64
	Three []byte
}

// TestSaveLoadJSON checks that a saved object round-trips through
// LoadJSON unchanged.
func TestSaveLoadJSON(t *testing.T) {
	dir := build.TempDir(persistDir, t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	meta := Metadata{Header: "Test Struct", Version: "v1.0.0"}
	obj1 := testRecord{"dog", 25, []byte("more dog")}
	filename := filepath.Join(dir, "obj1.json")

	if err := SaveJSON(meta, obj1, filename); err != nil {
		t.Fatal(err)
	}

	var obj2 testRecord
	if err := LoadJSON(meta, &obj2, filename); err != nil {
		t.Fatal(err)
	}
	if obj2.One != obj1.One || obj2.Two != obj1.Two || string(obj2.Three) != string(obj1.Three) {
		t.Errorf("round trip mismatch: got %+v, want %+v", obj2, obj1)
	}
}

// TestLoadJSONRejectsTempSuffix checks that LoadJSON refuses to read a
// path ending in the temp-file suffix.
func TestLoadJSONRejectsTempSuffix(t *testing.T) {
	meta := Metadata{Header: "h", Version: "v"}
	var obj testRecord
	err := LoadJSON(meta, &obj, "whatever"+tempSuffix)
	if err != ErrBadFilenameSuffix {
		t.Errorf("got %v, want ErrBadFilenameSuffix", err)
	}
}

// TestLoadJSONMetadataMismatch checks that a metadata mismatch is
// detected rather than silently accepted.
func TestLoadJSONMetadataMismatch(t *testing.T) {
	dir := build.TempDir(persistDir, t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(dir, "obj.json")
	if err := SaveJSON(Metadata{Header: "A", Version: "1"}, testRecord{One: "x"}, filename); err != nil {
		t.Fatal(err)
	}

	var obj testRecord
	err := LoadJSON(Metadata{Header: "B", Version: "1"}, &obj, filename)
	if err != ErrMetadataMismatch {
		t.Errorf("got %v, want ErrMetadataMismatch", err)
	}
}

// TestLoadJSONChecksumMismatch checks that LoadJSON detects a corrupted
// payload whose checksum no longer matches.
func TestLoadJSONChecksumMismatch(t *testing.T) {
	dir := build.TempDir(persistDir, t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(dir, "obj.json")
	meta := Metadata{Header: "A", Version: "1"}
	if err := SaveJSON(meta, testRecord{One: "x"}, filename); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	corrupted := append([]byte{}, raw...)
	corrupted = append(corrupted, []byte(`garbage`)...)
	if err := os.WriteFile(filename, corrupted, 0600); err != nil {
		t.Fatal(err)
	}

	var obj testRecord
	if err := LoadJSON(meta, &obj, filename); err == nil {
		t.Error("expected a checksum/parse error on a corrupted file")
	}
}
