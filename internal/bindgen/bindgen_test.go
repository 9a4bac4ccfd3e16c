package bindgen_test

import (
	"go/parser"
	"go/token"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive
	"github.com/toejough/natstub/internal/bindgen"
	"github.com/toejough/natstub/internal/core"
)

func TestGenerateBindings(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	iface := mustInterface(t, []core.FunctionInfo{
		{Name: "add", ReturnType: "int", ArgumentTypes: []string{"int", "int"}, ArgumentNames: []string{"a", "b"}},
		{Name: "device_name", ReturnType: "const char *", ArgumentTypes: []string{"device_t"}, ArgumentNames: []string{"device"}},
		{Name: "reset", ReturnType: "void"},
		{Name: "scale", ReturnType: "double", ArgumentTypes: []string{"float", "unsigned long long"}, ArgumentNames: []string{"type", "n"}},
	})

	src, err := bindgen.Generate(iface, bindgen.Config{Package: "mathlib_test", Module: "mathlib"})
	g.Expect(err).NotTo(HaveOccurred())

	_, err = parser.ParseFile(token.NewFileSet(), "bindings.go", src, parser.ParseComments)
	g.Expect(err).NotTo(HaveOccurred(), src)

	g.Expect(src).To(ContainSubstring("// Code generated by stubgen from mathlib.h. DO NOT EDIT."))
	g.Expect(src).To(ContainSubstring("package mathlib_test"))
	g.Expect(src).To(ContainSubstring("func BindMathlib(module Binder) (*MathlibBindings, error)"))
	g.Expect(src).To(ContainSubstring("// Add calls int add(int a, int b)."))
	g.Expect(src).To(ContainSubstring("Add func(a int32, b int32) int32"))
	g.Expect(src).To(ContainSubstring("DeviceName func(device uintptr) string"))
	g.Expect(src).To(ContainSubstring("Reset func()\n"))
	g.Expect(src).To(ContainSubstring("Scale func(type_ float32, n uint64) float64"))
	g.Expect(src).To(ContainSubstring(`module.Bind(&b.DeviceName, "device_name")`))
}

func TestGenerateRejectsUnbindableFunctions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   core.FunctionInfo
		want error
	}{
		{
			name: "variadic",
			fn: core.FunctionInfo{
				Name: "logf", ReturnType: "int",
				ArgumentTypes: []string{"const char *", "..."}, ArgumentNames: []string{"format", ""},
			},
			want: bindgen.ErrVariadic,
		},
		{
			name: "struct argument",
			fn: core.FunctionInfo{
				Name: "area", ReturnType: "int",
				ArgumentTypes: []string{"struct rect"}, ArgumentNames: []string{"r"},
			},
			want: bindgen.ErrStructByValue,
		},
		{
			name: "struct result",
			fn:   core.FunctionInfo{Name: "origin", ReturnType: "struct point"},
			want: bindgen.ErrStructByValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			_, err := bindgen.Generate(mustInterface(t, []core.FunctionInfo{tt.fn}), bindgen.Config{Package: "p", Module: "m"})
			g.Expect(err).To(MatchError(tt.want))
		})
	}
}

func mustInterface(t *testing.T, fns []core.FunctionInfo) *core.NativeInterface {
	t.Helper()

	iface, err := core.NewNativeInterface("mathlib.h", fns)
	if err != nil {
		t.Fatalf("failed to build interface: %v", err)
	}

	return iface
}
