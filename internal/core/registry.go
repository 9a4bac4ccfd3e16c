package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry maps module names to stubbed modules. A name is created at most once.
type Registry struct {
	opts []Option

	mu      sync.Mutex
	modules map[string]*StubbedModule
	closed  bool
}

// NewRegistry returns an empty registry whose modules are built with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:    opts,
		modules: make(map[string]*StubbedModule),
	}
}

// Close forgets every module and removes their temporary build directories.
// Loaded binaries stay in the process, so their names cannot be created again.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	var errs []error

	for name, m := range r.modules {
		err := os.RemoveAll(m.opts.TempPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s temp path: %w", name, err))
		}
	}

	r.modules = make(map[string]*StubbedModule)

	return errors.Join(errs...)
}

// Create builds and registers the stub for name. Options passed here follow the registry's own.
// When name is already registered, ErrAlreadyStubbed is returned and the existing module is kept.
func (r *Registry) Create(
	ctx context.Context, name string, iface *NativeInterface, opts ...Option,
) (*StubbedModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if _, ok := r.modules[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStubbed, name)
	}

	all := append(append([]Option{}, r.opts...), opts...)

	m, err := NewStubbedModule(ctx, name, iface, all...)
	if err != nil {
		return nil, err
	}

	r.modules[name] = m

	Logger().Debug("registered module", zap.String("module", name))

	return m, nil
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (*StubbedModule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[name]

	return m, ok
}

// GetOrCreate returns the module registered under name, creating it first if needed.
func (r *Registry) GetOrCreate(
	ctx context.Context, name string, iface *NativeInterface, opts ...Option,
) (*StubbedModule, error) {
	if m, ok := r.Get(name); ok {
		return m, nil
	}

	m, err := r.Create(ctx, name, iface, opts...)
	if errors.Is(err, ErrAlreadyStubbed) {
		if existing, ok := r.Get(name); ok {
			return existing, nil
		}
	}

	return m, err
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
