package core

import (
	"errors"

	"github.com/toejough/natstub/internal/native"
	"github.com/toejough/natstub/internal/toolchain"
)

// Exported variables.
var (
	// ErrAlreadyStubbed is returned when a module name is already registered.
	ErrAlreadyStubbed = errors.New("module already stubbed")
	// ErrAssertionFailed is recorded when a STUB_ASSERT inside an implementation snippet fails.
	ErrAssertionFailed = errors.New("stub assertion failed")
	// ErrCompilationFailure is returned when the external compiler rejects a stub or implementation.
	ErrCompilationFailure = toolchain.ErrCompilationFailure
	// ErrInvalidModuleName is returned when a module name carries a binary file extension.
	ErrInvalidModuleName = errors.New("module name should not include a file extension")
	// ErrNoExportedFunctions is returned when an implementation snippet exports no usable functions.
	ErrNoExportedFunctions = errors.New("no exported functions found in implementation")
	// ErrRegistryClosed is returned by Create after the registry has been closed.
	ErrRegistryClosed = errors.New("registry closed")
	// ErrUnknownFunction is returned when a function is not part of the module's native interface.
	ErrUnknownFunction = errors.New("function not in native interface")
	// ErrUnregisteredCall is recorded when a stubbed function is called without an implementation.
	ErrUnregisteredCall = errors.New("call to function with no registered implementation")
	// ErrUnsupportedSignature is returned for declarations the passthrough cannot forward.
	ErrUnsupportedSignature = errors.New("unsupported function signature")
	// ErrAlreadyLoaded is returned when a stub binary with the same file name is already loaded.
	ErrAlreadyLoaded = native.ErrAlreadyLoaded
	// ErrUnsupportedPlatform is returned where no native loader exists.
	ErrUnsupportedPlatform = native.ErrUnsupportedPlatform
)

// CompileError carries the failing compiler command and its output.
type CompileError = toolchain.CompileError
