package core_test

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive
	"github.com/toejough/natstub/internal/core"
)

func TestNewNativeInterfaceRejectsBadFunctions(t *testing.T) {
	t.Parallel()

	tests := map[string][]core.FunctionInfo{
		"empty name": {{ReturnType: "int"}},
		"duplicate":  {{Name: "add", ReturnType: "int"}, {Name: "add", ReturnType: "int"}},
		"mismatched arguments": {{
			Name: "add", ReturnType: "int",
			ArgumentTypes: []string{"int", "int"}, ArgumentNames: []string{"a"},
		}},
	}

	for name, fns := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			iface, err := core.NewNativeInterface("bad.h", fns)
			g.Expect(err).To(HaveOccurred())
			g.Expect(iface).To(BeNil())
		})
	}
}

func TestNativeInterfaceCopiesItsFunctions(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fns := []core.FunctionInfo{{
		Name: "add", ReturnType: "int",
		ArgumentTypes: []string{"int", "int"}, ArgumentNames: []string{"a", "b"},
	}}

	iface, err := core.NewNativeInterface("mathlib.h", fns)
	g.Expect(err).NotTo(HaveOccurred())

	fns[0].ArgumentTypes[0] = "double"

	got, ok := iface.Function("add")
	g.Expect(ok).To(BeTrue())
	g.Expect(got.ArgumentTypes).To(Equal([]string{"int", "int"}))

	got.ArgumentNames[0] = "x"
	g.Expect(iface.Functions()[0].ArgumentNames).To(Equal([]string{"a", "b"}))

	_, ok = iface.Function("subtract")
	g.Expect(ok).To(BeFalse())
	g.Expect(iface.HeaderPath()).To(Equal("mathlib.h"))
	g.Expect(iface.Len()).To(Equal(1))
}

func TestNativeInterfaceKeepsDeclarationOrder(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	iface, err := core.NewNativeInterface("device.h", []core.FunctionInfo{
		{Name: "open", ReturnType: "int"},
		{Name: "close", ReturnType: "void"},
		{Name: "configure", ReturnType: "int"},
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(iface.Names()).To(Equal([]string{"open", "close", "configure"}))
}

func TestFunctionInfoSignatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		fn            core.FunctionInfo
		wantSignature string
		wantPrototype string
	}{
		{
			name: "declaration wins",
			fn: core.FunctionInfo{
				Name: "add", ReturnType: "int",
				ArgumentTypes: []string{"int", "int"}, ArgumentNames: []string{"a", "b"},
				Declaration: "int add(int a, int b)",
			},
			wantSignature: "int add(int a, int b)",
			wantPrototype: "int (*)(int, int)",
		},
		{
			name:          "no arguments",
			fn:            core.FunctionInfo{Name: "reset", ReturnType: "void"},
			wantSignature: "void reset(void)",
			wantPrototype: "void (*)(void)",
		},
		{
			name: "pointers",
			fn: core.FunctionInfo{
				Name: "name_of", ReturnType: "const char *",
				ArgumentTypes: []string{"struct device *", "size_t"}, ArgumentNames: []string{"dev", "len"},
			},
			wantSignature: "const char * name_of(struct device *dev, size_t len)",
			wantPrototype: "const char * (*)(struct device *, size_t)",
		},
		{
			name: "function pointer argument",
			fn: core.FunctionInfo{
				Name: "on_event", ReturnType: "int",
				ArgumentTypes: []string{"void (*)(int)"}, ArgumentNames: []string{"callback"},
			},
			wantSignature: "int on_event(void (*callback)(int))",
			wantPrototype: "int (*)(void (*)(int))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			g.Expect(tt.fn.Signature()).To(Equal(tt.wantSignature))
			g.Expect(tt.fn.Prototype()).To(Equal(tt.wantPrototype))
		})
	}
}

func TestFunctionInfoClassifiers(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	printf := core.FunctionInfo{Name: "log_printf", ReturnType: "int", ArgumentTypes: []string{"const char *", " ... "}}
	reset := core.FunctionInfo{Name: "reset", ReturnType: " void "}
	ptr := core.FunctionInfo{Name: "buffer", ReturnType: "void *"}

	g.Expect(printf.Variadic()).To(BeTrue())
	g.Expect(printf.Void()).To(BeFalse())
	g.Expect(reset.Void()).To(BeTrue())
	g.Expect(reset.Variadic()).To(BeFalse())
	g.Expect(ptr.Void()).To(BeFalse())
}
