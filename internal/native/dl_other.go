//go:build !((darwin || linux) && (amd64 || arm64))

package native

import "fmt"

// Supported reports whether this platform can load binaries.
func Supported() bool {
	return false
}

func goString(uintptr) string {
	return ""
}

func newCallback(any) uintptr {
	return 0
}

func open(path string, _ bool) (Library, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, path)
}
