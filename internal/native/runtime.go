package native

import (
	"fmt"
	"sync"
)

// Failure kinds reported by the stub runtime. They match STUB_FAILURE_* in stub.h.
const (
	FailureUnregistered FailureKind = 1
	FailureAssert       FailureKind = 2
)

// Failure is one problem reported by native code through the stub failure handler.
type Failure struct {
	Kind     FailureKind
	Function string
	Detail   string
}

// FailureKind classifies a Failure.
type FailureKind int

// RedirectTable is the per-function redirect and call counter table compiled into a stub.
type RedirectTable interface {
	CallCount(function string) int64
	RecordCall(function string)
	RegisterRedirect(function string, address uintptr)
	Redirect(function string) uintptr
	SetFailureHandler(handler func(Failure) bool)
}

// Runtime is the RedirectTable exported by a loaded stub binary.
type Runtime struct {
	getCallCount      func(function string) int64
	recordCall        func(function string)
	registerRedirect  func(function string, address uintptr)
	redirect          func(function string) uintptr
	setFailureHandler func(handler uintptr)

	mu       sync.Mutex
	handler  func(Failure) bool
	callback uintptr
}

// NewRuntime binds the Stub_* entry points of lib.
func NewRuntime(lib Library) (*Runtime, error) {
	r := &Runtime{}

	bindings := []struct {
		fptr any
		name string
	}{
		{&r.getCallCount, "Stub_GetCallCount"},
		{&r.recordCall, "Stub_RecordCall"},
		{&r.registerRedirect, "Stub_RegisterRedirect"},
		{&r.redirect, "Stub_Redirect"},
		{&r.setFailureHandler, "Stub_SetFailureHandler"},
	}

	for _, b := range bindings {
		err := lib.Bind(b.fptr, b.name)
		if err != nil {
			return nil, fmt.Errorf("stub runtime missing in %s: %w", lib.Path(), err)
		}
	}

	return r, nil
}

// CallCount returns the total number of calls recorded for function.
func (r *Runtime) CallCount(function string) int64 {
	return r.getCallCount(function)
}

// RecordCall increments the counter for function.
func (r *Runtime) RecordCall(function string) {
	r.recordCall(function)
}

// Redirect returns the active implementation address for function. An unregistered function is
// reported to the failure handler and yields 0.
func (r *Runtime) Redirect(function string) uintptr {
	return r.redirect(function)
}

// RegisterRedirect makes address the active implementation for function, replacing any earlier one.
func (r *Runtime) RegisterRedirect(function string, address uintptr) {
	r.registerRedirect(function, address)
}

// SetFailureHandler installs handler as the receiver of native failures. A failure the handler does not
// accept (it returns false, or no handler is set) aborts the process from the native side. The native
// callback is created once per Runtime; later calls only swap the Go handler.
func (r *Runtime) SetFailureHandler(handler func(Failure) bool) {
	r.mu.Lock()
	r.handler = handler
	install := r.callback == 0
	r.mu.Unlock()

	if !install {
		return
	}

	cb := newCallback(func(kind, function, detail uintptr) uintptr {
		return r.dispatch(Failure{Kind: FailureKind(kind), Function: goString(function), Detail: goString(detail)})
	})

	r.mu.Lock()
	r.callback = cb
	r.mu.Unlock()

	r.setFailureHandler(cb)
}

// dispatch returns 0 when the failure was handled, which is what Stub_ReportFailure checks before aborting.
func (r *Runtime) dispatch(failure Failure) uintptr {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()

	if handler != nil && handler(failure) {
		return 0
	}

	return 1
}

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	switch k {
	case FailureUnregistered:
		return "unregistered"
	case FailureAssert:
		return "assert"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}
