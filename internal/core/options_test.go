package core_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive
	"github.com/toejough/natstub/internal/core"
)

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		env          map[string]string
		wantRoot     string
		wantCompiler string
		wantFlags    string
	}{
		{
			name:         "empty environment",
			env:          map[string]string{},
			wantRoot:     filepath.Join(os.TempDir(), "natstub"),
			wantCompiler: core.DefaultCompiler,
		},
		{
			name:         "CC fallback",
			env:          map[string]string{"NATSTUB_ROOT": "/scratch", "CC": "gcc"},
			wantRoot:     "/scratch",
			wantCompiler: "gcc",
		},
		{
			name:         "natstub variables win",
			env:          map[string]string{"NATSTUB_CC": "clang", "CC": "gcc", "NATSTUB_CFLAGS": "-O0 -g"},
			wantRoot:     filepath.Join(os.TempDir(), "natstub"),
			wantCompiler: "clang",
			wantFlags:    "-O0 -g",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			opts := core.DefaultOptions("mathlib", func(key string) string { return tt.env[key] })

			g.Expect(opts.TempPath).To(Equal(filepath.Join(tt.wantRoot, "mathlib", "tmp")))
			g.Expect(opts.BinaryPath).To(Equal(filepath.Join(tt.wantRoot, "mathlib", "bin")))
			g.Expect(opts.Compiler).To(Equal(tt.wantCompiler))
			g.Expect(opts.CompilerFlags).To(Equal(tt.wantFlags))
			g.Expect(opts.StubFile).To(BeEmpty())
		})
	}
}

func TestWithFlagsAppends(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	base := core.CompilerOptions{}
	once := base.WithFlags("-O0")
	twice := once.WithFlags("-DDEBUG")

	g.Expect(base.CompilerFlags).To(BeEmpty())
	g.Expect(once.CompilerFlags).To(Equal("-O0"))
	g.Expect(twice.CompilerFlags).To(Equal("-O0 -DDEBUG"))
	g.Expect(twice.WithFlags("").CompilerFlags).To(Equal("-O0 -DDEBUG"))
}

func TestWithHeaderLeavesTheOriginal(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	base := core.CompilerOptions{Compiler: "cc"}
	withHeader := base.WithHeader(core.NewCodeString("#include <math.h>", "a_test.go", 3))

	g.Expect(base.CodeHeader.Code()).To(BeEmpty())
	g.Expect(withHeader.CodeHeader.Code()).To(Equal("#include <math.h>"))
	g.Expect(withHeader.Compiler).To(Equal("cc"))
}

func TestLoadOptions(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "natstub.toml")
	doc := `compiler = "clang"
compiler_flags = "-O0"
temp_path = "build/tmp"
binary_path = "/abs/bin"
stub_file = "runtime/stub.c"
code_header = """
#include <stdint.h>
"""
`
	g.Expect(os.WriteFile(path, []byte(doc), 0o600)).To(Succeed())

	opts, err := core.LoadOptions(path, core.CompilerOptions{CompilerFlags: "-g", Compiler: "cc"})
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(opts.Compiler).To(Equal("clang"))
	g.Expect(opts.CompilerFlags).To(Equal("-g -O0"))
	g.Expect(opts.TempPath).To(Equal(filepath.Join(dir, "build", "tmp")))
	g.Expect(opts.BinaryPath).To(Equal("/abs/bin"))
	g.Expect(opts.StubFile).To(Equal(filepath.Join(dir, "runtime", "stub.c")))
	g.Expect(opts.CodeHeader.Code()).To(Equal("#include <stdint.h>\n"))
	g.Expect(opts.CodeHeader.SourceFile()).To(Equal(path))
	g.Expect(opts.CodeHeader.SourceLine()).To(Equal(7))
}

func TestLoadOptionsReadsHeaderFile(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	dir := t.TempDir()
	g.Expect(os.WriteFile(filepath.Join(dir, "prelude.h"), []byte("#include <math.h>\n"), 0o600)).To(Succeed())

	path := filepath.Join(dir, "natstub.toml")
	g.Expect(os.WriteFile(path, []byte(`code_header_file = "prelude.h"`), 0o600)).To(Succeed())

	opts, err := core.LoadOptions(path, core.CompilerOptions{Compiler: "cc"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(opts.CodeHeader.Code()).To(Equal("#include <math.h>\n"))
	g.Expect(opts.CodeHeader.SourceFile()).To(Equal(filepath.Join(dir, "prelude.h")))
	g.Expect(opts.CodeHeader.SourceLine()).To(Equal(1))
	g.Expect(opts.Compiler).To(Equal("cc"))
}

func TestLoadOptionsRejectsBadFiles(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key": `compilr = "clang"`,
		"bad syntax":  `compiler = `,
		"wrong type":  `compiler = 3`,
		"no header":   `code_header_file = "missing.h"`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			path := filepath.Join(t.TempDir(), "natstub.toml")
			g.Expect(os.WriteFile(path, []byte(doc), 0o600)).To(Succeed())

			_, err := core.LoadOptions(path, core.CompilerOptions{})
			g.Expect(err).To(HaveOccurred())
		})
	}

	g := NewWithT(t)

	_, err := core.LoadOptions(filepath.Join(t.TempDir(), "missing.toml"), core.CompilerOptions{})
	g.Expect(err).To(HaveOccurred())
}
