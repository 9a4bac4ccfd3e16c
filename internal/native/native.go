// Package native loads compiled stub and implementation binaries into the process and talks to the
// redirect table compiled into every stub.
package native

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Exported variables.
var (
	// ErrAlreadyLoaded is returned when a global library with the same file name is already loaded.
	// The dynamic loader resolves later lookups by file name, so two of them cannot coexist.
	ErrAlreadyLoaded = errors.New("a library with this file name is already loaded")
	// ErrSymbolNotFound is returned when a library does not export a requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnsupportedPlatform is returned where no native loader is available.
	ErrUnsupportedPlatform = errors.New("native loading is not supported on this platform")
)

// BinaryExts are the shared library extensions of the supported platforms.
//
//nolint:gochecknoglobals // read-only table
var BinaryExts = []string{".dll", ".dylib", ".so"}

// HasBinaryExt reports whether name ends in a shared library extension, ignoring case.
func HasBinaryExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range BinaryExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// LibraryExt returns the shared library extension of the running platform.
func LibraryExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// Library is a binary loaded into the current process. It is never unloaded.
type Library interface {
	// Path returns the file the library was loaded from.
	Path() string
	// Symbol returns the non-zero address of an exported symbol.
	Symbol(name string) (uintptr, error)
	// Bind points fptr, a pointer to a func variable, at the exported function name.
	Bind(fptr any, name string) error
}

// System is the process loader backed by the platform's dynamic linker.
type System struct{}

// ExportedFunctions lists the functions a binary on disk exports.
func (System) ExportedFunctions(path string) ([]string, error) {
	return ExportedFunctions(path)
}

// Load opens the library at path. Global libraries make their symbols visible to libraries loaded later
// and reserve their file name for the rest of the process.
func (System) Load(path string, global bool) (Library, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	if !global {
		return open(abs, false)
	}

	loadedMu.Lock()
	defer loadedMu.Unlock()

	name := filepath.Base(abs)
	if prior, ok := loaded[name]; ok {
		return nil, fmt.Errorf("%w: %s (loaded from %s)", ErrAlreadyLoaded, name, prior)
	}

	lib, err := open(abs, true)
	if err != nil {
		return nil, err
	}

	loaded[name] = abs

	return lib, nil
}

// Runtime binds the redirect table exported by a loaded stub.
func (System) Runtime(lib Library) (RedirectTable, error) {
	return NewRuntime(lib)
}

// unexported variables.
var (
	//nolint:gochecknoglobals // the dynamic loader's namespace is process wide
	loaded = make(map[string]string)
	//nolint:gochecknoglobals // guards loaded
	loadedMu sync.Mutex
)
