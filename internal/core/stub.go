// Package core compiles stubbed native modules and redirects their functions to implementation snippets.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/toejough/natstub/internal/codegen"
	"github.com/toejough/natstub/internal/manifest"
	"github.com/toejough/natstub/internal/native"
	"github.com/toejough/natstub/internal/toolchain"
)

// Option configures NewStubbedModule.
type Option func(*moduleConfig)

// Reporter receives native failures as they happen. *testing.T satisfies it. A module without a
// reporter lets the native runtime abort the process on the first failure.
type Reporter interface {
	Errorf(format string, args ...any)
}

// StubbedModule is a generated, compiled and loaded stand-in for one native library.
// Every function of its interface forwards to the implementation currently registered for it.
type StubbedModule struct {
	name       string
	iface      *NativeInterface
	opts       CompilerOptions
	modulePath string
	importPath string
	sourcePath string

	lib             native.Library
	table           native.RedirectTable
	cache           *ImplementationCache
	defaultReporter Reporter

	mu          sync.Mutex
	reporter    Reporter
	reporterGen uint64
	active      map[string]FunctionImplementation
	failures    []error
	manifest    manifest.Manifest
}

// NewStubbedModule generates, compiles and loads the stub for iface under name.
// Any failure returns no module.
func NewStubbedModule(ctx context.Context, name string, iface *NativeInterface, opts ...Option) (*StubbedModule, error) {
	cfg := newModuleConfig(opts)

	err := ValidateModuleName(name)
	if err != nil {
		return nil, err
	}

	if iface == nil {
		return nil, fmt.Errorf("%w: nil interface for %s", errInvalidInterface, name)
	}

	for _, fn := range iface.Functions() {
		if fn.Variadic() {
			return nil, fmt.Errorf("%w: %s is variadic", ErrUnsupportedSignature, fn.Name)
		}
	}

	compilerOpts := DefaultOptions(name, cfg.getEnv)
	if cfg.options != nil {
		compilerOpts = cfg.options.Copy()
	}

	m := &StubbedModule{
		name:       name,
		iface:      iface,
		opts:       compilerOpts,
		modulePath: filepath.Join(compilerOpts.BinaryPath, name+native.LibraryExt()),
		importPath: filepath.Join(compilerOpts.TempPath, name+importExt()),
		sourcePath: filepath.Join(compilerOpts.TempPath, codegen.StubSourceName),
		reporter:   cfg.reporter,
		active:     make(map[string]FunctionImplementation),

		defaultReporter: cfg.reporter,
	}

	err = m.build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	Logger().Info("stubbed module ready",
		zap.String("module", name),
		zap.String("path", m.modulePath),
		zap.Int("functions", iface.Len()))

	return m, nil
}

// StubSource renders the passthrough unit for iface as it would be written to generatedPath.
func StubSource(iface *NativeInterface, opts CompilerOptions, generatedPath string) string {
	return codegen.New().StubSource(stubUnit(iface, opts, generatedPath))
}

// ValidateModuleName rejects names that cannot be used as a stub file name.
func ValidateModuleName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidModuleName)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidModuleName, name)
	case native.HasBinaryExt(name):
		return fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
	}

	return nil
}

// WithCompiler replaces the external C compiler.
func WithCompiler(compiler toolchain.Compiler) Option {
	return func(c *moduleConfig) { c.compiler = compiler }
}

// WithCompilerOptions replaces the options derived from the environment.
func WithCompilerOptions(opts CompilerOptions) Option {
	return func(c *moduleConfig) { c.options = &opts }
}

// WithGetEnv replaces os.Getenv when deriving default options.
func WithGetEnv(getEnv func(string) string) Option {
	return func(c *moduleConfig) { c.getEnv = getEnv }
}

// WithLoader replaces the process loader.
func WithLoader(loader Loader) Option {
	return func(c *moduleConfig) { c.loader = loader }
}

// WithReporter sends native failures to r as well as to Err. It is the reporter SetReporter releases back to.
func WithReporter(r Reporter) Option {
	return func(c *moduleConfig) { c.reporter = r }
}

// Bind points fptr, a pointer to a func variable, at the stub's passthrough for name.
func (m *StubbedModule) Bind(fptr any, name string) error {
	if _, ok := m.iface.Function(name); !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnknownFunction, name, m.name)
	}

	return m.lib.Bind(fptr, name)
}

// CountCalls snapshots every interface function's counter.
func (m *StubbedModule) CountCalls() *CallCount {
	return newCallCount(m)
}

// Err returns every failure native code has reported so far and forgets them.
func (m *StubbedModule) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := errors.Join(m.failures...)
	m.failures = nil

	return err
}

// Implementation returns the active implementation of name.
func (m *StubbedModule) Implementation(name string) (FunctionImplementation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn, ok := m.active[name]

	return fn, ok
}

// Interface returns the native interface the stub was generated from.
func (m *StubbedModule) Interface() *NativeInterface {
	return m.iface
}

// ModuleName returns the registered name.
func (m *StubbedModule) ModuleName() string {
	return m.name
}

// ModulePath returns the loaded stub binary.
func (m *StubbedModule) ModulePath() string {
	return m.modulePath
}

// Options returns a copy of the options the module was built with.
func (m *StubbedModule) Options() CompilerOptions {
	return m.opts.Copy()
}

// SetReporter routes native failures to r until release is called. Release restores the reporter given
// by WithReporter, unless another SetReporter has replaced r in the meantime.
func (m *StubbedModule) SetReporter(r Reporter) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reporterGen++
	m.reporter = r
	gen := m.reporterGen

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.reporterGen == gen {
			m.reporter = m.defaultReporter
		}
	}
}

// SetFunction makes impl the active implementation of name.
func (m *StubbedModule) SetFunction(name string, impl FunctionImplementation) error {
	if _, ok := m.iface.Function(name); !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnknownFunction, name, m.name)
	}

	if !impl.Valid() {
		return fmt.Errorf("%w: %s", errInvalidImplementation, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.active[name] = impl
	m.table.RegisterRedirect(name, impl.Address())

	return nil
}

// SetImplementation compiles code, once per distinct snippet and options, and makes each exported
// function that belongs to the interface the active implementation.
func (m *StubbedModule) SetImplementation(ctx context.Context, code CodeString) error {
	impl, err := m.cache.GetOrCompile(ctx, code, m.opts)
	if err != nil {
		return err
	}

	m.recordImplementation(impl, code)

	for _, name := range impl.Names() {
		if _, ok := m.iface.Function(name); !ok {
			Logger().Debug("skipping helper outside the interface",
				zap.String("module", m.name),
				zap.String("function", name))

			continue
		}

		fn, _ := impl.Function(name)

		err = m.SetFunction(name, fn)
		if err != nil {
			return err
		}
	}

	return nil
}

// TotalCallCount returns how many times name has been called since the stub was loaded.
func (m *StubbedModule) TotalCallCount(name string) int64 {
	return m.table.CallCount(name)
}

// unexported constants.
const (
	dirPerm = 0o755
)

type moduleConfig struct {
	compiler toolchain.Compiler
	loader   Loader
	reporter Reporter
	options  *CompilerOptions
	getEnv   func(string) string
}

func (m *StubbedModule) build(ctx context.Context, cfg moduleConfig) error {
	for _, dir := range []string{m.opts.TempPath, m.opts.BinaryPath} {
		err := os.RemoveAll(dir)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", dir, err)
		}

		err = os.MkdirAll(dir, dirPerm)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	generator := codegen.New()

	err := os.WriteFile(m.sourcePath, []byte(generator.StubSource(m.stubUnit())), codegen.FilePerm)
	if err != nil {
		return fmt.Errorf("failed to write stub source: %w", err)
	}

	runtimeSource, err := codegen.WriteSupportFiles(m.opts.TempPath, m.opts.StubFile)
	if err != nil {
		return err
	}

	err = cfg.compiler.CompileModule(ctx, toolchain.Build{
		Sources:    []string{m.sourcePath, runtimeSource},
		ModulePath: m.modulePath,
		ImportPath: m.importPath,
		Compiler:   m.opts.Compiler,
		Flags:      m.opts.WithFlags(StubExportFlag).CompilerFlags,
		Dir:        m.opts.TempPath,
	})
	if err != nil {
		return fmt.Errorf("failed to compile stub %s: %w", m.name, err)
	}

	m.lib, err = cfg.loader.Load(m.modulePath, true)
	if err != nil {
		return err
	}

	m.table, err = cfg.loader.Runtime(m.lib)
	if err != nil {
		return err
	}

	m.table.SetFailureHandler(m.recordFailure)

	implCompiler := &ImplementationCompiler{
		Compiler:  cfg.compiler,
		Loader:    cfg.loader,
		Generator: generator,
		LinkWith:  []string{m.importPath},
	}
	m.cache = NewImplementationCache(implCompiler.Compile)

	m.manifest = manifest.Manifest{
		Module:   m.name,
		Header:   m.iface.HeaderPath(),
		Compiler: m.opts.Compiler,
		Flags:    m.opts.CompilerFlags,
		Stub: manifest.Binary{
			Path:      m.modulePath,
			Source:    m.sourcePath,
			Functions: m.iface.Names(),
		},
	}

	return manifest.Write(m.opts.BinaryPath, &m.manifest)
}

// recordFailure reports whether the failure was handled. Unhandled failures abort the process.
func (m *StubbedModule) recordFailure(failure native.Failure) bool {
	var err error

	switch failure.Kind {
	case native.FailureAssert:
		err = fmt.Errorf("%w in %s.%s: %s", ErrAssertionFailed, m.name, failure.Function, failure.Detail)
	default:
		err = fmt.Errorf("%w: %s.%s", ErrUnregisteredCall, m.name, failure.Function)
	}

	m.mu.Lock()
	m.failures = append(m.failures, err)
	reporter := m.reporter
	m.mu.Unlock()

	if reporter == nil {
		Logger().Error("native failure with no reporter, aborting", zap.String("module", m.name), zap.Error(err))

		return false
	}

	Logger().Warn("native failure", zap.String("module", m.name), zap.Error(err))
	reporter.Errorf("%v", err)

	return true
}

func (m *StubbedModule) recordImplementation(impl *ModuleImplementation, code CodeString) {
	hash := impl.Hash().String()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, recorded := range m.manifest.Implementations {
		if recorded.Hash == hash {
			return
		}
	}

	entry := manifest.Binary{
		Path:      impl.Path(),
		Source:    impl.SourcePath(),
		Hash:      hash,
		Functions: impl.Names(),
	}
	if code.HasProvenance() {
		entry.DefinedAt = fmt.Sprintf("%s:%d", code.SourceFile(), code.SourceLine())
	}

	m.manifest.Implementations = append(m.manifest.Implementations, entry)

	err := manifest.Write(m.opts.BinaryPath, &m.manifest)
	if err != nil {
		Logger().Warn("failed to update manifest", zap.String("module", m.name), zap.Error(err))
	}
}

func (m *StubbedModule) stubUnit() codegen.StubUnit {
	return stubUnit(m.iface, m.opts, m.sourcePath)
}

func stubUnit(iface *NativeInterface, opts CompilerOptions, generatedPath string) codegen.StubUnit {
	fns := iface.Functions()
	unit := codegen.StubUnit{
		Header:        opts.CodeHeader.EmbeddedLineData(),
		HeaderFile:    opts.CodeHeader.SourceFile(),
		HeaderLine:    opts.CodeHeader.SourceLine(),
		InterfacePath: iface.HeaderPath(),
		GeneratedPath: generatedPath,
		Functions:     make([]codegen.Function, 0, len(fns)),
	}

	for _, fn := range fns {
		unit.Functions = append(unit.Functions, codegen.Function{
			Name:          fn.Name,
			Declaration:   fn.Signature(),
			ReturnType:    fn.ReturnType,
			Prototype:     fn.Prototype(),
			ArgumentNames: fn.ArgumentNames,
			Void:          fn.Void(),
		})
	}

	return unit
}

// importExt is the extension of the artifact implementations link against.
func importExt() string {
	if native.LibraryExt() == ".dll" {
		return ".lib"
	}

	return native.LibraryExt()
}

func newModuleConfig(opts []Option) moduleConfig {
	cfg := moduleConfig{getEnv: os.Getenv}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.compiler == nil {
		cfg.compiler = &toolchain.CC{Logger: Logger()}
	}

	if cfg.loader == nil {
		cfg.loader = native.System{}
	}

	return cfg
}
