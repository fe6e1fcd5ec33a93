// Package persist implements the on-disk storage layer shared by every
// coordinator and desktop-agent component: JSON snapshot files with
// atomic rename (SaveJSON/LoadJSON), a line-oriented startup/shutdown
// logger, and the bbolt-backed Repository implementation.
package persist

import (
	"os"
	"path/filepath"

	"github.com/NebulousLabs/fastrand"
)

// persistDir is the name build.TempDir tests pass for this package's own
// scratch directories.
const persistDir = "persist"

// tempSuffix is appended to a file's final name while it is being
// written; LoadJSON refuses to read a path ending in it so a crash mid-
// write can never be mistaken for a valid snapshot.
const tempSuffix = "_temp"

// RandomSuffix returns a short hex string suitable for disambiguating
// temporary filenames created concurrently by this process.
func RandomSuffix() string {
	return hexEncode(fastrand.Bytes(6))
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// SafeFile writes to a temporary sibling of its target path and only
// replaces the target file once Commit is called, so a process that dies
// mid-write never corrupts the previous snapshot.
type SafeFile struct {
	file      *os.File
	tmpName   string
	finalName string
}

// NewSafeFile creates a SafeFile that will eventually replace path. path
// may be relative; the final rename always targets the absolute form of
// path resolved at creation time, so a later os.Chdir cannot redirect it.
func NewSafeFile(path string) (*SafeFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	tmpName := absPath + "_" + RandomSuffix() + tempSuffix
	f, err := os.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	return &SafeFile{file: f, tmpName: tmpName, finalName: absPath}, nil
}

// Name returns the SafeFile's temporary path.
func (sf *SafeFile) Name() string { return sf.tmpName }

// Write writes to the temporary file.
func (sf *SafeFile) Write(p []byte) (int, error) { return sf.file.Write(p) }

// Commit flushes the temporary file to disk and atomically renames it
// onto the final path.
func (sf *SafeFile) Commit() error {
	if err := sf.file.Sync(); err != nil {
		return err
	}
	if err := sf.file.Close(); err != nil {
		return err
	}
	return os.Rename(sf.tmpName, sf.finalName)
}

// Close discards the temporary file without committing it. Called after
// Commit it removes nothing; the error it then returns only reports that
// the file was already closed.
func (sf *SafeFile) Close() error {
	err := sf.file.Close()
	os.Remove(sf.tmpName)
	return err
}
