package natstub

import (
	"context"

	"github.com/toejough/natstub/internal/core"
)

// TestReporter is the minimal interface GetOrCreate needs from test frameworks. *testing.T satisfies it.
type TestReporter interface {
	Helper()
	Cleanup(fn func())
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Create builds and registers a stub in the process-wide registry.
// A name can be created once; later calls return ErrAlreadyStubbed and keep the first module.
func Create(ctx context.Context, name string, iface *NativeInterface, opts ...Option) (*StubbedModule, error) {
	return defaultRegistry.Create(ctx, name, iface, opts...)
}

// Default returns the process-wide registry used by Create, Get and GetOrCreate.
func Default() *Registry {
	return defaultRegistry
}

// Get returns the module registered under name in the process-wide registry.
func Get(name string) (*StubbedModule, bool) {
	return defaultRegistry.Get(name)
}

// GetOrCreate returns the process-wide module for name, building it on first use.
// Build failures are fatal to t. Native failures are reported to t until t finishes; after that the
// module falls back to its own reporter, and without one an unregistered call aborts the process.
//
// Stubs live for the whole test binary, so tests sharing a module should set the implementations they rely
// on instead of assuming a fresh one. Failures go to the t of the most recent GetOrCreate.
func GetOrCreate(t TestReporter, name string, iface *NativeInterface, opts ...Option) *StubbedModule {
	t.Helper()

	m, err := defaultRegistry.GetOrCreate(context.Background(), name, iface, opts...)
	if err != nil {
		t.Fatalf("natstub: failed to stub %s: %v", name, err)

		return nil
	}

	t.Cleanup(m.SetReporter(t))

	return m
}

// unexported variables.
var (
	//nolint:gochecknoglobals // Process-wide registry is intentional: loaded stubs are process-wide too
	defaultRegistry = core.NewRegistry()
)
