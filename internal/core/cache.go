package core

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CompileFunc compiles one implementation snippet.
type CompileFunc func(ctx context.Context, code CodeString, opts CompilerOptions) (*ModuleImplementation, error)

// ImplementationCache memoizes compiled implementations by ImplementationKey.
// Each distinct (code, options) pair compiles at most once, including concurrent first requests.
type ImplementationCache struct {
	compile CompileFunc

	group singleflight.Group

	mu       sync.Mutex
	entries  map[Hash]*ModuleImplementation
	compiles int
}

// NewImplementationCache returns an empty cache that compiles misses with compile.
func NewImplementationCache(compile CompileFunc) *ImplementationCache {
	return &ImplementationCache{
		compile: compile,
		entries: make(map[Hash]*ModuleImplementation),
	}
}

// Compiles returns how many compilations the cache has started.
func (c *ImplementationCache) Compiles() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.compiles
}

// Contains reports whether key is cached.
func (c *ImplementationCache) Contains(key Hash) bool {
	_, ok := c.lookup(key)

	return ok
}

// GetOrCompile returns the cached implementation for (code, opts) or compiles and stores it.
// Failed compilations are not stored.
func (c *ImplementationCache) GetOrCompile(
	ctx context.Context, code CodeString, opts CompilerOptions,
) (*ModuleImplementation, error) {
	key := ImplementationKey(code, opts)

	if impl, ok := c.lookup(key); ok {
		Logger().Debug("implementation cache hit", zap.String("hash", key.Short()))

		return impl, nil
	}

	result, err, _ := c.group.Do(key.String(), func() (any, error) {
		if impl, ok := c.lookup(key); ok {
			return impl, nil
		}

		c.mu.Lock()
		c.compiles++
		c.mu.Unlock()

		impl, err := c.compile(ctx, code, opts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = impl
		c.mu.Unlock()

		return impl, nil
	})
	if err != nil {
		return nil, err
	}

	impl, _ := result.(*ModuleImplementation)

	return impl, nil
}

// Len returns the number of cached implementations.
func (c *ImplementationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *ImplementationCache) lookup(key Hash) (*ModuleImplementation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	impl, ok := c.entries[key]

	return impl, ok
}
