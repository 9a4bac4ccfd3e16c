package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Exported constants.
const (
	// DefaultCompiler is the compiler driver used when neither options nor environment name one.
	DefaultCompiler = "cc"
	// StubExportFlag is the extra define used only when building the base stub.
	StubExportFlag = "-DSTUB_EXPORT"
)

// CompilerOptions configures how stubs and implementations are built.
// It is a value type: modifying a copy never changes the original.
type CompilerOptions struct {
	// CodeHeader is prefixed into every generated and compiled unit.
	CodeHeader CodeString
	// CompilerFlags is appended to every compiler invocation.
	CompilerFlags string
	// TempPath holds generated and copied sources.
	TempPath string
	// BinaryPath holds compiled binaries and import artifacts.
	BinaryPath string
	// StubFile replaces the embedded runtime-support source when set.
	StubFile string
	// Compiler is the gcc/clang compatible driver command.
	Compiler string
}

// DefaultOptions returns options rooted in a per-module scratch area.
// NATSTUB_ROOT moves the scratch area, NATSTUB_CC (or CC) picks the driver, NATSTUB_CFLAGS adds flags.
func DefaultOptions(moduleName string, getEnv func(string) string) CompilerOptions {
	root := getEnv("NATSTUB_ROOT")
	if root == "" {
		root = filepath.Join(os.TempDir(), "natstub")
	}

	compiler := getEnv("NATSTUB_CC")
	if compiler == "" {
		compiler = getEnv("CC")
	}

	if compiler == "" {
		compiler = DefaultCompiler
	}

	return CompilerOptions{
		CompilerFlags: getEnv("NATSTUB_CFLAGS"),
		TempPath:      filepath.Join(root, moduleName, "tmp"),
		BinaryPath:    filepath.Join(root, moduleName, "bin"),
		Compiler:      compiler,
	}
}

// LoadOptions reads options from a TOML file on top of base.
// Relative paths in the file resolve against the file's directory.
func LoadOptions(path string, base CompilerOptions) (CompilerOptions, error) {
	var file optionsFile

	data, err := os.ReadFile(path)
	if err != nil {
		return CompilerOptions{}, fmt.Errorf("failed to read options %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), &file)
	if err != nil {
		return CompilerOptions{}, fmt.Errorf("failed to read options %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}

		return CompilerOptions{}, fmt.Errorf("%w in %s: %s", errUnknownOptionKeys, path, strings.Join(keys, ", "))
	}

	dir := filepath.Dir(path)
	opts := base

	if meta.IsDefined("code_header") {
		opts.CodeHeader = NewCodeString(file.CodeHeader, path, valueLine(string(data), "code_header"))
	}

	if file.CodeHeaderFile != "" {
		headerPath := resolve(dir, file.CodeHeaderFile)

		header, err := os.ReadFile(headerPath)
		if err != nil {
			return CompilerOptions{}, fmt.Errorf("failed to read code header %s: %w", headerPath, err)
		}

		opts.CodeHeader = NewCodeString(string(header), headerPath, 1)
	}

	if file.Compiler != "" {
		opts.Compiler = file.Compiler
	}

	if file.CompilerFlags != "" {
		opts = opts.WithFlags(file.CompilerFlags)
	}

	if file.TempPath != "" {
		opts.TempPath = resolve(dir, file.TempPath)
	}

	if file.BinaryPath != "" {
		opts.BinaryPath = resolve(dir, file.BinaryPath)
	}

	if file.StubFile != "" {
		opts.StubFile = resolve(dir, file.StubFile)
	}

	return opts, nil
}

// Copy returns an independent copy of the options.
func (o CompilerOptions) Copy() CompilerOptions {
	return o
}

// WithFlags returns a copy with extra appended to the compiler flags.
func (o CompilerOptions) WithFlags(extra string) CompilerOptions {
	out := o.Copy()

	switch {
	case extra == "":
	case out.CompilerFlags == "":
		out.CompilerFlags = extra
	default:
		out.CompilerFlags += " " + extra
	}

	return out
}

// WithHeader returns a copy with a different code header.
func (o CompilerOptions) WithHeader(header CodeString) CompilerOptions {
	out := o.Copy()
	out.CodeHeader = header

	return out
}

// unexported variables.
var (
	errUnknownOptionKeys = errors.New("unknown option keys")
)

// optionsFile is the TOML shape of CompilerOptions.
type optionsFile struct {
	CodeHeader     string `toml:"code_header"`
	CodeHeaderFile string `toml:"code_header_file"`
	Compiler       string `toml:"compiler"`
	CompilerFlags  string `toml:"compiler_flags"`
	TempPath       string `toml:"temp_path"`
	BinaryPath     string `toml:"binary_path"`
	StubFile       string `toml:"stub_file"`
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}

// valueLine returns the 1-based line where the value of a top-level key starts.
// Multi-line strings start on the line after the opening quotes.
func valueLine(doc, key string) int {
	for i, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, key) {
			continue
		}

		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, key))
		if !strings.HasPrefix(rest, "=") {
			continue
		}

		value := strings.TrimSpace(strings.TrimPrefix(rest, "="))
		if value == `"""` || value == "'''" {
			return i + 2
		}

		return i + 1
	}

	return 1
}
