package persist

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/ioutil"
)

// Metadata stamps every saved JSON snapshot with a human-readable header
// and a version string, so LoadJSON can refuse to parse a file written by
// an incompatible build.
type Metadata struct {
	Header  string
	Version string
}

// ErrBadFilenameSuffix is returned when LoadJSON is asked to read a path
// ending in tempSuffix; such a file is a write-in-progress artifact, not
// a committed snapshot.
var ErrBadFilenameSuffix = errors.New("persist: cannot load a file with the temp-file suffix")

// ErrMetadataMismatch is returned when a loaded file's header or version
// does not match what the caller expected.
var ErrMetadataMismatch = errors.New("persist: metadata mismatch")

// jsonEnvelope is the on-disk shape SaveJSON writes: the metadata, the
// caller's object verbatim, and a checksum over the object's encoding so
// LoadJSON can detect truncation or bit-rot.
type jsonEnvelope struct {
	Header   string          `json:"header"`
	Version  string          `json:"version"`
	Checksum string          `json:"checksum"`
	Data     json.RawMessage `json:"data"`
}

func checksum(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err == nil {
		data = buf.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SaveJSON writes object to filename, atomically: it is first fully
// written to a temporary sibling file, fsynced, and only then renamed
// onto filename, so a crash mid-write never corrupts the previous
// snapshot (persist.SafeFile carries the atomicity).
func SaveJSON(meta Metadata, object interface{}, filename string) error {
	data, err := json.Marshal(object)
	if err != nil {
		return err
	}
	env := jsonEnvelope{
		Header:   meta.Header,
		Version:  meta.Version,
		Checksum: checksum(data),
		Data:     data,
	}
	encoded, err := json.MarshalIndent(env, "", "\t")
	if err != nil {
		return err
	}

	sf, err := NewSafeFile(filename)
	if err != nil {
		return err
	}
	defer sf.Close()
	if _, err := sf.Write(encoded); err != nil {
		return err
	}
	return sf.Commit()
}

// LoadJSON reads filename, verifies its metadata and checksum, and
// unmarshals its payload into object (which must be a pointer).
func LoadJSON(meta Metadata, object interface{}, filename string) error {
	if len(filename) >= len(tempSuffix) && filename[len(filename)-len(tempSuffix):] == tempSuffix {
		return ErrBadFilenameSuffix
	}
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	var env jsonEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if env.Header != meta.Header || env.Version != meta.Version {
		return ErrMetadataMismatch
	}
	if checksum(env.Data) != env.Checksum {
		return errors.New("persist: checksum mismatch, file may be corrupted")
	}
	return json.Unmarshal(env.Data, object)
}

