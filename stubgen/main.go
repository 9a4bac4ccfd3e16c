// stubgen generates, builds and inspects natstub modules outside of a test run.
//
//	stubgen generate --header mathlib.h --name mathlib --out build/
//	stubgen build --header mathlib.h --name mathlib --config natstub.toml
//	stubgen bindings --header mathlib.h --name mathlib --package mathlib_test --out bindings_test.go
//	stubgen inspect /tmp/natstub/mathlib/bin
package main

import (
	"fmt"
	"os"

	"github.com/toejough/natstub/stubgen/run"
)

// main is the entry point of the stubgen tool.
func main() {
	if os.Args == nil {
		return
	}

	err := run.Run(os.Args, os.Getenv, &realFileSystem{}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// realFileSystem implements FileSystem using os package.
type realFileSystem struct{}

// MkdirAll creates path and any missing parents.
func (fs *realFileSystem) MkdirAll(path string, perm os.FileMode) error {
	err := os.MkdirAll(path, perm)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// ReadFile reads the file named by name and returns the contents.
func (fs *realFileSystem) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", name, err)
	}

	return data, nil
}

// WriteFile writes data to the file named by name.
func (fs *realFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	err := os.WriteFile(name, data, perm)
	if err != nil {
		return fmt.Errorf("failed to write file %s: %w", name, err)
	}

	return nil
}
