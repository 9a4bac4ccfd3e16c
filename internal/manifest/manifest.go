// Package manifest records what a stubbed module built: the base stub, the interface it exposes and
// every implementation compiled into it.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Exported constants.
const (
	// FileName is the manifest's name inside a module's binary directory.
	FileName = "manifest.msgpack"
	// SchemaVersion is bumped whenever the encoded layout changes.
	SchemaVersion uint16 = 1
)

// ErrSchemaMismatch is returned by Read for manifests written by another layout.
var ErrSchemaMismatch = errors.New("manifest schema mismatch")

// Binary is one compiled shared library.
type Binary struct {
	Path      string   `msgpack:"path"`
	Source    string   `msgpack:"source"`
	Hash      string   `msgpack:"hash,omitempty"`
	Functions []string `msgpack:"functions"`
	// DefinedAt is the file:line the snippet came from, when known.
	DefinedAt string `msgpack:"defined_at,omitempty"`
}

// Manifest is the on-disk record of one stubbed module.
type Manifest struct {
	Schema          uint16   `msgpack:"schema"`
	Module          string   `msgpack:"module"`
	Header          string   `msgpack:"header"`
	Compiler        string   `msgpack:"compiler"`
	Flags           string   `msgpack:"flags"`
	Stub            Binary   `msgpack:"stub"`
	Implementations []Binary `msgpack:"implementations"`
}

// Read loads the manifest from dir.
func Read(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var m Manifest

	err = msgpack.NewDecoder(f).Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if m.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema %d, want %d", ErrSchemaMismatch, path, m.Schema, SchemaVersion)
	}

	return &m, nil
}

// Write atomically replaces the manifest in dir.
func Write(dir string, m *Manifest) error {
	m.Schema = SchemaVersion

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}

	tmp := f.Name()
	defer os.Remove(tmp)

	err = msgpack.NewEncoder(f).Encode(m)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	return os.Rename(tmp, filepath.Join(dir, FileName))
}

// unexported constants.
const (
	dirPerm = 0o755
)
