package core_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/toejough/natstub/internal/core"
	"github.com/toejough/natstub/internal/native"
	"github.com/toejough/natstub/internal/toolchain"
)

// fakeCompiler "compiles" by writing the names of the top-level functions defined in the sources into
// the module file. fakeLoader reads them back as the exports.
type fakeCompiler struct {
	mu     sync.Mutex
	builds []toolchain.Build
	fail   func(build toolchain.Build) error
}

func (c *fakeCompiler) Builds() []toolchain.Build {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]toolchain.Build(nil), c.builds...)
}

func (c *fakeCompiler) CompileModule(_ context.Context, build toolchain.Build) error {
	c.mu.Lock()
	c.builds = append(c.builds, build)
	c.mu.Unlock()

	if c.fail != nil {
		if err := c.fail(build); err != nil {
			return err
		}
	}

	var exports []string

	for _, src := range build.Sources {
		data, err := os.ReadFile(src)
		if err != nil {
			return &toolchain.CompileError{Command: []string{"fake"}, Output: err.Error(), Err: err}
		}

		for _, match := range definitionPattern.FindAllStringSubmatch(string(data), -1) {
			if !strings.HasPrefix(match[0], "static") {
				exports = append(exports, match[1])
			}
		}
	}

	err := os.MkdirAll(filepath.Dir(build.ModulePath), 0o755)
	if err != nil {
		return err
	}

	err = os.WriteFile(build.ModulePath, []byte(strings.Join(exports, "\n")), 0o600)
	if err != nil {
		return err
	}

	if build.ImportPath != "" {
		return os.WriteFile(build.ImportPath, nil, 0o600)
	}

	return nil
}

type fakeLibrary struct {
	loader *fakeLoader
	path   string
}

func (l *fakeLibrary) Bind(any, string) error {
	return errFakeBind
}

func (l *fakeLibrary) Path() string {
	return l.path
}

func (l *fakeLibrary) Symbol(name string) (uintptr, error) {
	return l.loader.address(l.path, name), nil
}

type fakeLoad struct {
	path   string
	global bool
}

type fakeLoader struct {
	mu    sync.Mutex
	loads []fakeLoad
	addrs map[string]uintptr
	table *fakeTable
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{addrs: make(map[string]uintptr), table: newFakeTable()}
}

func (l *fakeLoader) ExportedFunctions(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil
	}

	return strings.Split(string(data), "\n"), nil
}

func (l *fakeLoader) Load(path string, global bool) (native.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loads = append(l.loads, fakeLoad{path: path, global: global})

	return &fakeLibrary{loader: l, path: path}, nil
}

func (l *fakeLoader) Loads() []fakeLoad {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]fakeLoad(nil), l.loads...)
}

func (l *fakeLoader) Runtime(native.Library) (native.RedirectTable, error) {
	return l.table, nil
}

func (l *fakeLoader) address(path, name string) uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := path + "#" + name
	if addr, ok := l.addrs[key]; ok {
		return addr
	}

	addr := uintptr(0x1000 + 0x10*len(l.addrs))
	l.addrs[key] = addr

	return addr
}

// fakeTable behaves like the redirect table in stub.c. Where stub.c would abort it counts an abort.
type fakeTable struct {
	mu        sync.Mutex
	counts    map[string]int64
	redirects map[string]uintptr
	handler   func(native.Failure) bool
	aborts    int
}

func newFakeTable() *fakeTable {
	return &fakeTable{counts: make(map[string]int64), redirects: make(map[string]uintptr)}
}

func (t *fakeTable) Aborts() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.aborts
}

func (t *fakeTable) CallCount(function string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.counts[function]
}

// Invoke does what a generated passthrough does and returns the address it would jump to.
func (t *fakeTable) Invoke(function string) uintptr {
	t.RecordCall(function)

	return t.Redirect(function)
}

func (t *fakeTable) RecordCall(function string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[function]++
}

func (t *fakeTable) Redirect(function string) uintptr {
	t.mu.Lock()
	addr, ok := t.redirects[function]
	t.mu.Unlock()

	if !ok {
		t.Report(native.Failure{Kind: native.FailureUnregistered, Function: function})
	}

	return addr
}

func (t *fakeTable) RegisterRedirect(function string, address uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.redirects[function] = address
}

func (t *fakeTable) Report(failure native.Failure) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()

	if handler != nil && handler(failure) {
		return
	}

	t.mu.Lock()
	t.aborts++
	t.mu.Unlock()
}

func (t *fakeTable) SetFailureHandler(handler func(native.Failure) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

type recordingReporter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingReporter) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.messages...)
}

// unexported variables.
var (
	definitionPattern = regexp.MustCompile(`(?m)^(?:[A-Za-z_][\w \t*]*?[\s*])?([A-Za-z_]\w*)\s*\([^;{]*\)\s*\n?\{`)
	errFakeBind       = errors.New("fake libraries cannot bind")
	mathFunctions     = []core.FunctionInfo{
		{
			Name: "add", ReturnType: "int",
			ArgumentTypes: []string{"int", "int"}, ArgumentNames: []string{"a", "b"},
			Declaration: "int add(int a, int b)",
		},
		{Name: "reset", ReturnType: "void", Declaration: "void reset(void)"},
	}
)

func mathInterface(t *testing.T) *core.NativeInterface {
	t.Helper()

	iface, err := core.NewNativeInterface("mathlib.h", mathFunctions)
	if err != nil {
		t.Fatalf("failed to build interface: %v", err)
	}

	return iface
}

func testOptions(t *testing.T) core.CompilerOptions {
	t.Helper()

	root := t.TempDir()

	return core.CompilerOptions{
		TempPath:   filepath.Join(root, "tmp"),
		BinaryPath: filepath.Join(root, "bin"),
		Compiler:   "cc",
	}
}

type fakeModule struct {
	*core.StubbedModule

	compiler *fakeCompiler
	loader   *fakeLoader
	reporter *recordingReporter
}

func newFakeModule(t *testing.T, opts ...core.Option) fakeModule {
	t.Helper()

	f := fakeModule{compiler: &fakeCompiler{}, loader: newFakeLoader(), reporter: &recordingReporter{}}

	return newFakeModuleWith(t, f, append([]core.Option{core.WithReporter(f.reporter)}, opts...)...)
}

// newFakeModuleWithoutReporter builds a module whose failures nobody receives.
func newFakeModuleWithoutReporter(t *testing.T) fakeModule {
	t.Helper()

	return newFakeModuleWith(t, fakeModule{compiler: &fakeCompiler{}, loader: newFakeLoader()})
}

func newFakeModuleWith(t *testing.T, f fakeModule, opts ...core.Option) fakeModule {
	t.Helper()

	all := append([]core.Option{
		core.WithCompiler(f.compiler),
		core.WithLoader(f.loader),
		core.WithCompilerOptions(testOptions(t)),
	}, opts...)

	m, err := core.NewStubbedModule(context.Background(), "mathlib", mathInterface(t), all...)
	if err != nil {
		t.Fatalf("failed to build module: %v", err)
	}

	f.StubbedModule = m

	return f
}
