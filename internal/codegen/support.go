package codegen

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Exported constants.
const (
	// FilePerm is the permission of written sources.
	FilePerm = 0o644
)

// RuntimeFiles returns the names of the embedded runtime-support files.
func RuntimeFiles() []string {
	entries, err := fs.ReadDir(runtimeFS, runtimeDir)
	if err != nil {
		panic(fmt.Sprintf("embedded runtime missing (build bug): %v", err))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}

// RuntimeFile returns the content of one embedded runtime-support file.
func RuntimeFile(name string) ([]byte, error) {
	data, err := fs.ReadFile(runtimeFS, path.Join(runtimeDir, name))
	if err != nil {
		return nil, fmt.Errorf("no embedded runtime file %q: %w", name, err)
	}

	return data, nil
}

// WriteSupportFiles writes the runtime-support files into dir and returns the path of the runtime source.
// A non-empty stubFile replaces the embedded stub.c.
func WriteSupportFiles(dir, stubFile string) (string, error) {
	for _, name := range RuntimeFiles() {
		data, err := RuntimeFile(name)
		if err != nil {
			return "", err
		}

		if name == RuntimeSourceName && stubFile != "" {
			data, err = os.ReadFile(stubFile)
			if err != nil {
				return "", fmt.Errorf("failed to read stub file %s: %w", stubFile, err)
			}
		}

		err = os.WriteFile(filepath.Join(dir, name), data, FilePerm)
		if err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return filepath.Join(dir, RuntimeSourceName), nil
}

// unexported constants.
const (
	runtimeDir = "runtime"
)

// unexported variables.
var (
	//go:embed runtime/*.c runtime/*.h
	runtimeFS embed.FS
)
