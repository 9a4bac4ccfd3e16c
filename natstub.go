// Package natstub replaces a native shared library with a generated stub whose functions forward to C
// implementations compiled on demand, so each test can decide what the library does.
//
// This is the public API entry point. Implementation lives in internal/core.
package natstub

import (
	"os"

	"go.uber.org/zap"

	"github.com/toejough/natstub/internal/core"
	"github.com/toejough/natstub/internal/header"
)

// Types re-exported from internal/core.

// CallCount is a snapshot of a module's call counters.
type CallCount = core.CallCount

// CodeString is C source text with the Go file and line it was written at.
type CodeString = core.CodeString

// CompileError carries the failing compiler command and its output.
type CompileError = core.CompileError

// CompilerOptions configures how stubs and implementations are built.
type CompilerOptions = core.CompilerOptions

// FunctionImplementation is a loaded native function ready to be installed in a stub.
type FunctionImplementation = core.FunctionImplementation

// FunctionInfo describes one native function declaration.
type FunctionInfo = core.FunctionInfo

// Hash is a content digest.
type Hash = core.Hash

// ModuleImplementation is the loaded result of compiling one implementation snippet.
type ModuleImplementation = core.ModuleImplementation

// NativeInterface is the ordered set of functions a stubbed module exports.
type NativeInterface = core.NativeInterface

// Option configures a stubbed module.
type Option = core.Option

// Registry maps module names to stubbed modules.
type Registry = core.Registry

// Reporter receives native failures as they happen.
type Reporter = core.Reporter

// StubbedModule is a generated, compiled and loaded stand-in for one native library.
type StubbedModule = core.StubbedModule

// Errors re-exported from internal/core.
var (
	ErrAlreadyLoaded        = core.ErrAlreadyLoaded
	ErrAlreadyStubbed       = core.ErrAlreadyStubbed
	ErrAssertionFailed      = core.ErrAssertionFailed
	ErrCompilationFailure   = core.ErrCompilationFailure
	ErrInvalidModuleName    = core.ErrInvalidModuleName
	ErrNoExportedFunctions  = core.ErrNoExportedFunctions
	ErrRegistryClosed       = core.ErrRegistryClosed
	ErrUnknownFunction      = core.ErrUnknownFunction
	ErrUnregisteredCall     = core.ErrUnregisteredCall
	ErrUnsupportedPlatform  = core.ErrUnsupportedPlatform
	ErrUnsupportedSignature = core.ErrUnsupportedSignature
)

// Functions re-exported from internal/core.

// C captures code with the file and line of the call, so compiler diagnostics point at the Go source.
func C(code string) CodeString {
	return core.CodeAt(code, 1)
}

// DefaultOptions returns the options a module gets when none are given, derived from the environment.
func DefaultOptions(moduleName string) CompilerOptions {
	return core.DefaultOptions(moduleName, os.Getenv)
}

// ImplementationKey returns the cache key of code compiled under opts.
func ImplementationKey(code CodeString, opts CompilerOptions) Hash {
	return core.ImplementationKey(code, opts)
}

// LoadOptions reads options from a TOML file on top of base.
func LoadOptions(path string, base CompilerOptions) (CompilerOptions, error) {
	return core.LoadOptions(path, base)
}

// NewCodeString wraps code with an explicit origin.
func NewCodeString(code, sourceFile string, sourceLine int) CodeString {
	return core.NewCodeString(code, sourceFile, sourceLine)
}

// NewNativeInterface validates and copies functions into a NativeInterface.
func NewNativeInterface(headerPath string, functions []FunctionInfo) (*NativeInterface, error) {
	return core.NewNativeInterface(headerPath, functions)
}

// NewRegistry returns an empty registry whose modules are built with opts.
func NewRegistry(opts ...Option) *Registry {
	return core.NewRegistry(opts...)
}

// ParseHeader reads the prototypes declared in headerPath. When binaryPath is set only the functions that
// library exports are kept. decorations are export macros to strip, e.g. "K4A_EXPORT".
func ParseHeader(headerPath, binaryPath string, decorations ...string) (*NativeInterface, error) {
	return header.ParseFile(headerPath, binaryPath, header.Options{Decorations: decorations})
}

// SetLogger installs the logger natstub reports builds and failures to. The default discards everything.
func SetLogger(l *zap.Logger) {
	core.SetLogger(l)
}

// WithCompilerOptions replaces the options derived from the environment.
func WithCompilerOptions(opts CompilerOptions) Option {
	return core.WithCompilerOptions(opts)
}

// WithGetEnv replaces os.Getenv when deriving default options.
func WithGetEnv(getEnv func(string) string) Option {
	return core.WithGetEnv(getEnv)
}

// WithReporter sends native failures to r as well as to StubbedModule.Err.
func WithReporter(r Reporter) Option {
	return core.WithReporter(r)
}
