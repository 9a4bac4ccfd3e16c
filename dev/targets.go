//go:build targ

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/akedrou/textdiff"
	"github.com/toejough/go-reorder"
	"github.com/toejough/targ"
	"github.com/toejough/targ/file"
	"github.com/toejough/targ/sh"

	"github.com/toejough/natstub/internal/codegen"
)

// Build builds the local stubgen binary.
func Build() error {
	fmt.Println("Building stubgen...")

	if err := os.MkdirAll("bin", 0o755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	return sh.Run("go", "build", "-o", "bin/stubgen", "./stubgen")
}

// Check runs all checks & fixes on the code, in order of correctness.
func Check() error {
	fmt.Println("Checking...")

	return targ.Deps(
		Tidy,
		FixImports,
		CheckGeneratedC,
		CheckCoverage,
		ReorderDecls,
		Lint,
	)
}

// CheckCoverage fails when any function outside the platform loaders and stubgen's main is below 70%.
func CheckCoverage() error {
	fmt.Println("Checking coverage...")

	if err := targ.Deps(Test); err != nil {
		return err
	}

	out, err := output("go", "tool", "cover", "-func=coverage.out")
	if err != nil {
		return err
	}

	funcs, err := parseCoverage(out)
	if err != nil {
		return err
	}

	for _, fc := range funcs {
		fmt.Println(fc.line)
	}

	const minimum = 70.0

	if lowest := funcs[0]; lowest.percent < minimum {
		return fmt.Errorf("function coverage was less than the limit of %.1f:\n  %s", minimum, lowest.line)
	}

	return nil
}

// CheckForFail runs all checks on the code for determining whether any fail.
func CheckForFail() error {
	fmt.Println("Checking...")

	// Checks from fastest to slowest
	return targ.Deps(
		ReorderDeclsCheck,
		CheckGeneratedC,
		LintForFail,
		TestForFail,
		EndToEnd,
		CheckCoverage,
	)
}

// CheckGeneratedC compiles the runtime support and a generated stub and implementation with warnings as
// errors, so template changes that only some compilers reject are caught without running anything.
func CheckGeneratedC() error {
	fmt.Println("Checking generated C...")

	if err := os.MkdirAll(scratchRoot(), 0o755); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(scratchRoot(), "generated-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	runtimeSource, err := codegen.WriteSupportFiles(dir, "")
	if err != nil {
		return err
	}

	generator := codegen.New()
	units := map[string]string{
		codegen.StubSourceName: generator.StubSource(sampleStub),
		"impl_sample.c":        generator.ImplementationSource(sampleImplementation),
	}

	for name, source := range units {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(source), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	checks := [][]string{
		{"-DSTUB_EXPORT", runtimeSource},
		{runtimeSource},
		{"-DSTUB_EXPORT", filepath.Join(dir, codegen.StubSourceName)},
		{filepath.Join(dir, "impl_sample.c")},
	}

	// headers may declare const return types; only what the templates add has to be warning free
	for _, check := range checks {
		args := append([]string{"-fsyntax-only", "-Wall", "-Werror", "-Wno-ignored-qualifiers", "-I", dir}, check...)
		if err := sh.Run(cCompiler(), args...); err != nil {
			return fmt.Errorf("generated C rejected (%s): %w", strings.Join(check, " "), err)
		}
	}

	return nil
}

// Clean cleans up the dev env, including the default stub scratch area.
func Clean() {
	fmt.Println("Cleaning...")
	os.Remove("coverage.out")
	os.RemoveAll(scratchRoot())
}

// EndToEnd builds real stubs with the host C compiler. Unlike Test it fails when there is no compiler
// instead of skipping.
func EndToEnd() error {
	fmt.Println("Running end-to-end stub tests with " + cCompiler() + "...")

	if _, err := exec.LookPath(cCompiler()); err != nil {
		return fmt.Errorf("end-to-end tests need a C compiler: %w", err)
	}

	cmd := testCommand("-timeout=5m", "-count=1", "-v", "-run="+endToEndTests, ".")
	cmd.Env = append(cmd.Env, "CC="+cCompiler())

	return cmd.Run()
}

// FixImports fixes import grouping and removes unused imports.
func FixImports() error {
	fmt.Println("Fixing imports...")
	return sh.Run("goimports", "-w", ".")
}

// Lint lints the codebase.
func Lint() error {
	fmt.Println("Linting...")
	return golangci()
}

// LintForFail stops at the first issue per linter and never rewrites files.
func LintForFail() error {
	fmt.Println("Linting to check for overall pass/fail...")

	return golangci("--fix=false", "--max-issues-per-linter=1", "--max-same-issues=1", "--allow-parallel-runners")
}

// Mutate runs the mutation tests.
func Mutate() error {
	fmt.Println("Running mutation tests...")

	if err := targ.Deps(TestForFail); err != nil {
		return err
	}

	return sh.Run(
		"go",
		"test",
		"-timeout=6000s",
		"-tags=mutation",
		"-ooze.v",
		"./dev/...",
		"-run=TestMutation",
	)
}

// ReorderDecls reorders declarations in hand-written Go files per conventions.
func ReorderDecls() error {
	fmt.Println("Reordering declarations...")

	changed, total, err := reorderSources(func(path, _, reordered string) error {
		if err := os.WriteFile(path, []byte(reordered), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		fmt.Printf("  Reordered: %s\n", path)

		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Reordered %d of %d file(s).\n", changed, total)

	return nil
}

// ReorderDeclsCheck prints the reordering each file needs without modifying it. stubgen output is skipped.
func ReorderDeclsCheck() error {
	fmt.Println("Checking declaration order...")

	changed, total, err := reorderSources(func(path, content, reordered string) error {
		fmt.Printf("\n%s\n", textdiff.Unified(path+" (current)", path+" (reordered)", content, reordered))

		return nil
	})
	if err != nil {
		return err
	}

	if changed > 0 {
		return fmt.Errorf("%d file(s) need reordering", changed)
	}

	fmt.Printf("All files are correctly ordered (%d files processed).\n", total)

	return nil
}

// Test runs the unit tests, including the end-to-end stub builds when a C compiler is available.
func Test() error {
	fmt.Println("Running unit tests...")

	return testCommand(
		"-timeout=5m",
		"-race",
		"-count=1",
		"-coverprofile=coverage.out",
		"-coverpkg=./...",
		"./...",
	).Run()
}

// TestForFail runs the unit tests purely to find out whether any fail.
func TestForFail() error {
	fmt.Println("Running unit tests for overall pass/fail...")

	return testCommand("-timeout=2m", "-failfast", "./...").Run()
}

// Tidy tidies up go.mod.
func Tidy() error {
	fmt.Println("Tidying go.mod...")
	return sh.Run("go", "mod", "tidy")
}

// Watch re-runs checks as sources change. Edits to the C runtime only need the generated C check and the
// end-to-end tests; anything else re-runs Check.
func Watch(ctx context.Context) error {
	fmt.Println("Watching...")

	patterns := []string{"**/*.go", "**/*.c", "**/*.h", "**/*.toml"}

	return file.Watch(ctx, patterns, file.WatchOptions{}, func(changes file.ChangeSet) error {
		kind := classifyChanges(changes)
		if kind == changeNone {
			return nil
		}

		targ.ResetDeps()

		var err error

		switch kind {
		case changeRuntime:
			fmt.Println("C runtime changed...")

			err = targ.Deps(CheckGeneratedC, EndToEnd)
		default:
			fmt.Println("Change detected...")

			err = Check()
		}

		if err != nil {
			fmt.Println("continuing to watch after check failure (see errors above)")
		} else {
			fmt.Println("continuing to watch after all checks passed!")
		}

		return nil
	})
}

// unexported constants.
const (
	changeNone changeKind = iota
	changeRuntime
	changeGo

	endToEndTests = "^(TestStubbedLibraryEndToEnd|TestUnregisteredCallWithoutAReporterAborts)$"
	runtimeDir    = "internal/codegen/runtime/"
)

// unexported variables.
var (
	coverageSkips  = []string{"total:", "stubgen/main.go", "internal/native/dl_"}
	percentPattern = regexp.MustCompile(`\d+\.\d`)

	// sampleStub covers the return shapes the passthrough template has to zero: plain, const, pointer and void.
	sampleStub = codegen.StubUnit{
		Header:        "#include <stdint.h>\n",
		InterfacePath: "sample.h",
		Functions: []codegen.Function{
			{
				Name: "add", Declaration: "int add(int a, int b)", ReturnType: "int",
				Prototype: "int (*)(int, int)", ArgumentNames: []string{"a", "b"},
			},
			{Name: "version", Declaration: "const int version(void)", ReturnType: "const int", Prototype: "const int (*)(void)"},
			{
				Name: "name_of", Declaration: "const char * name_of(uint32_t id)", ReturnType: "const char *",
				Prototype: "const char * (*)(uint32_t)", ArgumentNames: []string{"id"},
			},
			{Name: "reset", Declaration: "void reset(void)", ReturnType: "void", Prototype: "void (*)(void)", Void: true},
		},
	}

	sampleImplementation = codegen.ImplementationUnit{
		Header: "#include <stdint.h>\n",
		Code:   "int add(int a, int b)\n{\n    STUB_ASSERT(a >= 0);\n    return a + b;\n}\n",
	}
)

type changeKind int

type funcCoverage struct {
	line    string
	percent float64
}

// classifyChanges ignores build output, coverage and stubs built under scratchRoot.
func classifyChanges(changes file.ChangeSet) changeKind {
	kind := changeNone

	for _, f := range slices.Concat(changes.Added, changes.Removed, changes.Modified) {
		f = filepath.ToSlash(f)

		switch {
		case strings.HasSuffix(f, "coverage.out"),
			strings.HasPrefix(f, "bin/"),
			strings.HasPrefix(f, filepath.ToSlash(scratchRoot())):
			continue
		case strings.HasPrefix(f, runtimeDir):
			kind = max(kind, changeRuntime)
		default:
			return changeGo
		}
	}

	return kind
}

// cCompiler follows the same variables DefaultOptions reads.
func cCompiler() string {
	for _, name := range []string{"NATSTUB_CC", "CC"} {
		if cc := os.Getenv(name); cc != "" {
			return cc
		}
	}

	return "cc"
}

func golangci(extra ...string) error {
	return sh.Run("golangci-lint", append([]string{"run", "-c", "dev/golangci.toml"}, extra...)...)
}

func isGeneratedFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 200)

	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return bytes.Contains(buf[:n], []byte("Code generated")), nil
}

// output runs a command and captures stdout only (stderr goes to os.Stderr).
func output(command string, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := exec.Command(command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = buf
	cmd.Stderr = os.Stderr
	err := cmd.Run()

	return strings.TrimSuffix(buf.String(), "\n"), err
}

// parseCoverage returns the per-function lines of `go tool cover -func`, lowest coverage first.
func parseCoverage(out string) ([]funcCoverage, error) {
	var funcs []funcCoverage

	for _, line := range strings.Split(out, "\n") {
		if slices.ContainsFunc(coverageSkips, func(skip string) bool { return strings.Contains(line, skip) }) {
			continue
		}

		percent, err := strconv.ParseFloat(percentPattern.FindString(line), 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected coverage line %q: %w", line, err)
		}

		funcs = append(funcs, funcCoverage{line, percent})
	}

	if len(funcs) == 0 {
		return nil, errors.New("no coverage data")
	}

	slices.SortStableFunc(funcs, func(a, b funcCoverage) int {
		switch {
		case a.percent < b.percent:
			return -1
		case a.percent > b.percent:
			return 1
		}

		return 0
	})

	return funcs, nil
}

// reorderSources runs go-reorder over the hand-written Go files and calls onChange for each one it would
// change. It returns how many changed out of how many were read.
func reorderSources(onChange func(path, content, reordered string) error) (changed, total int, err error) {
	files, err := sourceFiles()
	if err != nil {
		return 0, 0, err
	}

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return changed, total, fmt.Errorf("failed to read %s: %w", path, err)
		}

		total++

		reordered, err := reorder.Source(string(content))
		if err != nil {
			fmt.Printf("Warning: failed to reorder %s: %v\n", path, err)

			continue
		}

		if string(content) == reordered {
			continue
		}

		changed++

		if err := onChange(path, string(content), reordered); err != nil {
			return changed, total, err
		}
	}

	return changed, total, nil
}

// scratchRoot is where test stubs are built, kept apart from the system temp area so Clean can remove it.
func scratchRoot() string {
	return filepath.Join(os.TempDir(), "natstub-dev")
}

// sourceFiles lists the hand-written Go files of the module, leaving out stubgen bindings.
func sourceFiles() ([]string, error) {
	var files []string

	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("unable to walk %s: %w", path, err)
		}

		if d.IsDir() && path != "." && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
			return filepath.SkipDir
		}

		if d.IsDir() || filepath.Ext(path) != ".go" {
			return nil
		}

		generated, err := isGeneratedFile(path)
		if err != nil {
			return err
		}

		if !generated {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

// testCommand runs go test with stubs built under scratchRoot.
func testCommand(args ...string) *exec.Cmd {
	cmd := exec.Command("go", append([]string{"test"}, args...)...)
	cmd.Env = append(os.Environ(), "NATSTUB_ROOT="+scratchRoot())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd
}
