package build

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// CoordinatorTestingDir is the directory that contains all of the files and
// folders created during testing.
var CoordinatorTestingDir = filepath.Join(os.TempDir(), "CoordinatorTesting")

// TempDir joins the provided directories and prefixes them with the
// coordinator testing directory, wiping any stale data left over from a
// previous run.
func TempDir(dirs ...string) string {
	path := filepath.Join(CoordinatorTestingDir, filepath.Join(dirs...))
	os.RemoveAll(path) // remove old test data
	return path
}

// CopyFile copies a file from a source to a destination.
func CopyFile(source, dest string) error {
	sf, err := os.Open(source)
	if err != nil {
		return err
	}
	defer sf.Close()

	df, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer df.Close()

	_, err = io.Copy(df, sf)
	return err
}

// Retry will call 'fn' 'tries' times, waiting 'durationBetweenAttempts'
// between each attempt, returning 'nil' the first time that 'fn' returns
// nil. If 'nil' is never returned, then the final error returned by 'fn'
// is returned.
func Retry(tries int, durationBetweenAttempts time.Duration, fn func() error) (err error) {
	for i := 1; i < tries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(durationBetweenAttempts)
	}
	return fn()
}
