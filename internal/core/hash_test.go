package core_test

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive
	"github.com/toejough/natstub/internal/core"
	"pgregory.net/rapid"
)

func TestHashCodeIgnoresProvenance(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	a := core.NewCodeString("int x;", "a_test.go", 1)
	b := core.NewCodeString("int x;", "b_test.go", 99)

	g.Expect(core.HashCode(a)).To(Equal(core.HashCode(b)))
	g.Expect(core.HashCode(a)).NotTo(Equal(core.HashCode(core.NewCodeString("int y;", "a_test.go", 1))))
}

func TestHashOptionsCoversEveryField(t *testing.T) {
	t.Parallel()

	base := core.CompilerOptions{
		CodeHeader:    core.NewCodeString("#include <math.h>", "opts.toml", 2),
		CompilerFlags: "-O0",
		TempPath:      "/tmp/natstub/tmp",
		BinaryPath:    "/tmp/natstub/bin",
		StubFile:      "/src/stub.c",
		Compiler:      "cc",
	}

	variants := map[string]func(o *core.CompilerOptions){
		"header code": func(o *core.CompilerOptions) { o.CodeHeader = core.NewCodeString("", "opts.toml", 2) },
		"header file": func(o *core.CompilerOptions) { o.CodeHeader = core.NewCodeString("#include <math.h>", "x.toml", 2) },
		"header line": func(o *core.CompilerOptions) { o.CodeHeader = core.NewCodeString("#include <math.h>", "opts.toml", 3) },
		"flags":       func(o *core.CompilerOptions) { o.CompilerFlags = "-O2" },
		"temp path":   func(o *core.CompilerOptions) { o.TempPath = "/tmp/other" },
		"binary path": func(o *core.CompilerOptions) { o.BinaryPath = "/tmp/other" },
		"stub file":   func(o *core.CompilerOptions) { o.StubFile = "" },
		"compiler":    func(o *core.CompilerOptions) { o.Compiler = "clang" },
	}

	for name, change := range variants {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			changed := base.Copy()
			change(&changed)

			g.Expect(core.HashOptions(changed)).NotTo(Equal(core.HashOptions(base)))
		})
	}
}

func TestHashFieldsDoNotRunTogether(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	a := core.CompilerOptions{TempPath: "ab", BinaryPath: "c"}
	b := core.CompilerOptions{TempPath: "a", BinaryPath: "bc"}

	g.Expect(core.HashOptions(a)).NotTo(Equal(core.HashOptions(b)))
}

func TestCombineIsOrdered(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		code := core.HashCode(core.NewCodeString(rapid.String().Draw(rt, "code"), "", 0))
		opts := core.HashOptions(core.CompilerOptions{CompilerFlags: rapid.String().Draw(rt, "flags")})

		if code == opts {
			rt.Skip("identical inputs")
		}

		if core.Combine(code, opts) == core.Combine(opts, code) {
			rt.Fatalf("combine is symmetric for %s and %s", code, opts)
		}
	})
}

func TestImplementationKey(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	code := core.NewCodeString("int x;", "a_test.go", 1)
	opts := core.CompilerOptions{Compiler: "cc"}
	key := core.ImplementationKey(code, opts)

	g.Expect(key).To(Equal(core.Combine(core.HashCode(code), core.HashOptions(opts))))
	g.Expect(key.IsZero()).To(BeFalse())
	g.Expect(core.Hash{}.IsZero()).To(BeTrue())
	g.Expect(key.String()).To(HaveLen(64))
	g.Expect(key.Short()).To(HaveLen(16))
	g.Expect(key.String()).To(HavePrefix(key.Short()))
}
