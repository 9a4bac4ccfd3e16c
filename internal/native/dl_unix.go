//go:build (darwin || linux) && (amd64 || arm64)

package native

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// dlLibrary is a handle returned by dlopen.
type dlLibrary struct {
	path   string
	handle uintptr
}

// Bind implements Library.
func (l *dlLibrary) Bind(fptr any, name string) (err error) {
	addr, err := l.Symbol(name)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to bind %s from %s: %v", name, l.path, r)
		}
	}()

	purego.RegisterFunc(fptr, addr)

	return nil
}

// Path implements Library.
func (l *dlLibrary) Path() string {
	return l.path
}

// Symbol implements Library.
func (l *dlLibrary) Symbol(name string) (uintptr, error) {
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s in %s: %w", ErrSymbolNotFound, name, l.path, err)
	}

	if addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s resolved to null", ErrSymbolNotFound, name, l.path)
	}

	return addr, nil
}

// goString copies a NUL terminated C string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}

	//nolint:govet // ptr comes straight from C and is not managed by the Go heap
	return unix.BytePtrToString((*byte)(unsafe.Pointer(ptr)))
}

func newCallback(fn any) uintptr {
	return purego.NewCallback(fn)
}

// Supported reports whether this platform can load binaries.
func Supported() bool {
	return true
}

func open(path string, global bool) (Library, error) {
	mode := purego.RTLD_NOW | purego.RTLD_LOCAL
	if global {
		mode = purego.RTLD_NOW | purego.RTLD_GLOBAL
	}

	handle, err := purego.Dlopen(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return &dlLibrary{path: path, handle: handle}, nil
}
