// Package toolchain drives an external C compiler to produce shared libraries.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// ErrCompilationFailure is wrapped by every error the compiler step returns.
var ErrCompilationFailure = errors.New("compilation failed")

// Build is one request to turn sources into a shared library plus its import artifact.
type Build struct {
	Sources    []string
	ModulePath string
	// ImportPath receives the artifact other modules link against. Empty skips it.
	ImportPath string
	// Compiler is the driver command; empty means "cc".
	Compiler string
	// Flags is a shell-style flag string appended after the defaults.
	Flags string
	// Dir is the working directory of the compiler process.
	Dir string
}

// CC compiles with a gcc/clang compatible driver.
type CC struct {
	Logger *zap.Logger
	// GOOS selects platform specific link flags. Empty means runtime.GOOS.
	GOOS string
	// Run executes the command. Nil runs it with os/exec.
	Run func(cmd *exec.Cmd) error
}

// CompileError is returned when the compiler exits unsuccessfully.
type CompileError struct {
	Command []string
	Output  string
	Err     error
}

// Compiler is the external compile-to-shared-library service.
type Compiler interface {
	CompileModule(ctx context.Context, build Build) error
}

// Quote returns s as a single shell-style word for Build.Flags.
func Quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\") {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Args returns the full argument vector, driver first, for build.
func (c *CC) Args(build Build) ([]string, error) {
	driver := build.Compiler
	if driver == "" {
		driver = "cc"
	}

	driverArgs, err := shlex.Split(driver)
	if err != nil || len(driverArgs) == 0 {
		return nil, fmt.Errorf("%w: bad compiler command %q: %v", ErrCompilationFailure, driver, err)
	}

	flags, err := shlex.Split(build.Flags)
	if err != nil {
		return nil, fmt.Errorf("%w: bad compiler flags %q: %w", ErrCompilationFailure, build.Flags, err)
	}

	args := append([]string{}, driverArgs...)
	args = append(args, "-shared", "-fPIC")

	switch c.goos() {
	case "linux", "freebsd", "netbsd":
		// Keep each stub's calls into its own redirect table even when several stubs are loaded globally.
		// The soname lets dlopen by file name find an already loaded stub.
		args = append(args, "-Wl,-Bsymbolic", "-Wl,-soname,"+filepath.Base(build.ModulePath))
	case "darwin":
		args = append(args, "-undefined", "dynamic_lookup")
	case "windows":
		if build.ImportPath != "" {
			args = append(args, "-Wl,--out-implib,"+build.ImportPath)
		}
	}

	args = append(args, "-o", build.ModulePath)
	args = append(args, build.Sources...)
	args = append(args, flags...)

	return args, nil
}

// CompileModule runs the compiler for build.
func (c *CC) CompileModule(ctx context.Context, build Build) error {
	if len(build.Sources) == 0 {
		return fmt.Errorf("%w: no sources for %s", ErrCompilationFailure, build.ModulePath)
	}

	args, err := c.Args(build)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(build.ModulePath), dirPerm)
	if err != nil {
		return fmt.Errorf("%w: failed to create output directory: %w", ErrCompilationFailure, err)
	}

	var output bytes.Buffer

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = build.Dir
	cmd.Stdout = &output
	cmd.Stderr = &output

	c.logger().Debug("compiling module",
		zap.String("module", build.ModulePath),
		zap.Strings("command", args))

	err = c.run(cmd)
	if err != nil {
		return &CompileError{Command: args, Output: strings.TrimSpace(output.String()), Err: err}
	}

	if output.Len() > 0 {
		c.logger().Debug("compiler output", zap.String("module", build.ModulePath), zap.String("output", output.String()))
	}

	if build.ImportPath == "" || c.goos() == "windows" {
		return nil
	}

	return linkImportArtifact(build.ModulePath, build.ImportPath)
}

func (c *CC) goos() string {
	if c.GOOS == "" {
		return runtime.GOOS
	}

	return c.GOOS
}

func (c *CC) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}

	return c.Logger
}

func (c *CC) run(cmd *exec.Cmd) error {
	if c.Run != nil {
		return c.Run(cmd)
	}

	return cmd.Run()
}

// Error implements error.
func (e *CompileError) Error() string {
	var b strings.Builder

	b.WriteString(ErrCompilationFailure.Error())
	b.WriteString(": ")
	b.WriteString(strings.Join(e.Command, " "))

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	if e.Output != "" {
		b.WriteString("\n")
		b.WriteString(e.Output)
	}

	return b.String()
}

// Is matches ErrCompilationFailure.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompilationFailure
}

// Unwrap returns the process error.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// unexported constants.
const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// linkImportArtifact makes importPath refer to the module. ELF and Mach-O link against the shared
// object itself, so a symlink is enough; a copy is made where symlinks are not available.
func linkImportArtifact(modulePath, importPath string) error {
	_ = os.Remove(importPath)

	target, err := filepath.Abs(modulePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCompilationFailure, err)
	}

	if os.Symlink(target, importPath) == nil {
		return nil
	}

	err = copyFile(target, importPath)
	if err != nil {
		return fmt.Errorf("%w: failed to write import artifact %s: %w", ErrCompilationFailure, importPath, err)
	}

	return nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}

	return err
}
