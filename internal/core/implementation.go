package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/toejough/natstub/internal/codegen"
	"github.com/toejough/natstub/internal/native"
	"github.com/toejough/natstub/internal/toolchain"
)

// Exported constants.
const (
	// InternalPrefix marks runtime bookkeeping symbols that are never treated as implementations.
	InternalPrefix = "Stub_"
)

// FunctionImplementation is a named, loaded native function ready to be installed in a redirect table.
type FunctionImplementation struct {
	name    string
	address uintptr
	module  string
}

// NewFunctionImplementation validates a loaded function address.
func NewFunctionImplementation(name string, address uintptr, modulePath string) (FunctionImplementation, error) {
	if name == "" {
		return FunctionImplementation{}, fmt.Errorf("%w: empty function name", errInvalidImplementation)
	}

	if address == 0 {
		return FunctionImplementation{}, fmt.Errorf("%w: %s has a null address", errInvalidImplementation, name)
	}

	return FunctionImplementation{name: name, address: address, module: modulePath}, nil
}

// Address returns the loaded address.
func (f FunctionImplementation) Address() uintptr {
	return f.address
}

// ModulePath returns the binary the function was loaded from.
func (f FunctionImplementation) ModulePath() string {
	return f.module
}

// Name returns the exported name.
func (f FunctionImplementation) Name() string {
	return f.name
}

// Valid reports whether f came from NewFunctionImplementation.
func (f FunctionImplementation) Valid() bool {
	return f.name != "" && f.address != 0
}

// ImplementationCompiler turns implementation snippets into loaded ModuleImplementations.
type ImplementationCompiler struct {
	Compiler  toolchain.Compiler
	Loader    Loader
	Generator *codegen.Generator
	// LinkWith is appended to the link line of every implementation, normally the base stub's import artifact.
	LinkWith []string
}

// Compile writes, compiles, loads and enumerates one implementation snippet.
// The runtime-support source must already be present in opts.TempPath.
func (c *ImplementationCompiler) Compile(
	ctx context.Context, code CodeString, opts CompilerOptions,
) (*ModuleImplementation, error) {
	key := ImplementationKey(code, opts)
	base := "impl_" + key.Short()
	sourcePath := filepath.Join(opts.TempPath, base+".c")
	modulePath := filepath.Join(opts.BinaryPath, base+native.LibraryExt())

	source := c.generator().ImplementationSource(codegen.ImplementationUnit{
		Header: opts.CodeHeader.EmbeddedLineData(),
		Code:   code.EmbeddedLineData(),
	})

	err := os.WriteFile(sourcePath, []byte(source), codegen.FilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to write implementation source %s: %w", sourcePath, err)
	}

	flags := opts.CompilerFlags
	for _, link := range c.LinkWith {
		flags = strings.TrimSpace(flags + " " + toolchain.Quote(link))
	}

	err = c.Compiler.CompileModule(ctx, toolchain.Build{
		Sources:    []string{sourcePath, filepath.Join(opts.TempPath, codegen.RuntimeSourceName)},
		ModulePath: modulePath,
		Compiler:   opts.Compiler,
		Flags:      flags,
		Dir:        opts.TempPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile implementation defined at %s:%d: %w",
			code.SourceFile(), code.SourceLine(), err)
	}

	lib, err := c.Loader.Load(modulePath, false)
	if err != nil {
		return nil, err
	}

	names, err := c.Loader.ExportedFunctions(modulePath)
	if err != nil {
		return nil, err
	}

	impl := &ModuleImplementation{
		hash:       key,
		path:       modulePath,
		sourcePath: sourcePath,
		functions:  make(map[string]FunctionImplementation, len(names)),
	}

	for _, name := range names {
		if isInternalSymbol(name) {
			continue
		}

		addr, err := lib.Symbol(name)
		if err != nil {
			return nil, err
		}

		fn, err := NewFunctionImplementation(name, addr, modulePath)
		if err != nil {
			return nil, err
		}

		impl.functions[name] = fn
	}

	if len(impl.functions) == 0 {
		return nil, fmt.Errorf("%w: implementation defined at %s:%d", ErrNoExportedFunctions,
			code.SourceFile(), code.SourceLine())
	}

	Logger().Debug("compiled implementation",
		zap.String("module", modulePath),
		zap.Strings("functions", impl.Names()))

	return impl, nil
}

func (c *ImplementationCompiler) generator() *codegen.Generator {
	if c.Generator == nil {
		c.Generator = codegen.New()
	}

	return c.Generator
}

// Loader is the native loader collaborator.
type Loader interface {
	Load(path string, global bool) (native.Library, error)
	ExportedFunctions(path string) ([]string, error)
	Runtime(lib native.Library) (native.RedirectTable, error)
}

// ModuleImplementation is the loaded result of compiling one implementation snippet.
type ModuleImplementation struct {
	hash       Hash
	path       string
	sourcePath string
	functions  map[string]FunctionImplementation
}

// Function looks up an exported function.
func (m *ModuleImplementation) Function(name string) (FunctionImplementation, bool) {
	fn, ok := m.functions[name]

	return fn, ok
}

// Functions returns the exported functions keyed by name.
func (m *ModuleImplementation) Functions() map[string]FunctionImplementation {
	out := make(map[string]FunctionImplementation, len(m.functions))
	for name, fn := range m.functions {
		out[name] = fn
	}

	return out
}

// Hash returns the cache key the implementation was compiled under.
func (m *ModuleImplementation) Hash() Hash {
	return m.hash
}

// Names returns the exported function names, sorted.
func (m *ModuleImplementation) Names() []string {
	names := make([]string, 0, len(m.functions))
	for name := range m.functions {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Path returns the compiled binary.
func (m *ModuleImplementation) Path() string {
	return m.path
}

// SourcePath returns the generated source the binary was built from.
func (m *ModuleImplementation) SourcePath() string {
	return m.sourcePath
}

// unexported variables.
var (
	errInvalidImplementation = errors.New("invalid function implementation")
)

// isInternalSymbol reports bookkeeping and toolchain-reserved names.
func isInternalSymbol(name string) bool {
	return strings.HasPrefix(name, InternalPrefix) || strings.HasPrefix(name, "_")
}
