package core

import (
	"errors"
	"fmt"
	"strings"
)

// FunctionInfo describes one native function declaration.
type FunctionInfo struct {
	Name          string
	ReturnType    string
	ArgumentTypes []string
	ArgumentNames []string
	// Declaration is the full declaration text without a trailing semicolon, e.g. "int add(int a, int b)".
	Declaration string
}

// Prototype returns the function pointer type used to call an implementation, e.g. "int (*)(int, int)".
func (f FunctionInfo) Prototype() string {
	args := "void"
	if len(f.ArgumentTypes) > 0 {
		args = strings.Join(f.ArgumentTypes, ", ")
	}

	return f.ReturnType + " (*)(" + args + ")"
}

// Signature returns Declaration, or one assembled from the types and names when it is empty.
func (f FunctionInfo) Signature() string {
	if f.Declaration != "" {
		return f.Declaration
	}

	params := make([]string, len(f.ArgumentTypes))
	for i, typ := range f.ArgumentTypes {
		if strings.Contains(typ, "(*)") {
			params[i] = strings.Replace(typ, "(*)", "(*"+f.ArgumentNames[i]+")", 1)

			continue
		}

		if f.ArgumentNames[i] == "" || strings.HasSuffix(typ, "*") {
			params[i] = typ + f.ArgumentNames[i]

			continue
		}

		params[i] = typ + " " + f.ArgumentNames[i]
	}

	if len(params) == 0 {
		params = []string{"void"}
	}

	return f.ReturnType + " " + f.Name + "(" + strings.Join(params, ", ") + ")"
}

// Variadic reports whether the function takes a variable argument list.
func (f FunctionInfo) Variadic() bool {
	for _, arg := range f.ArgumentTypes {
		if strings.TrimSpace(arg) == "..." {
			return true
		}
	}

	return false
}

// Void reports whether the function returns nothing.
func (f FunctionInfo) Void() bool {
	return strings.TrimSpace(f.ReturnType) == "void"
}

// NativeInterface is the ordered set of functions a stubbed module exports.
type NativeInterface struct {
	headerPath string
	functions  []FunctionInfo
	index      map[string]int
}

// NewNativeInterface validates and copies functions into a NativeInterface.
func NewNativeInterface(headerPath string, functions []FunctionInfo) (*NativeInterface, error) {
	iface := &NativeInterface{
		headerPath: headerPath,
		functions:  make([]FunctionInfo, 0, len(functions)),
		index:      make(map[string]int, len(functions)),
	}

	for _, fn := range functions {
		if fn.Name == "" {
			return nil, fmt.Errorf("%w: function with empty name in %s", errInvalidInterface, headerPath)
		}

		if _, dup := iface.index[fn.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate function %q in %s", errInvalidInterface, fn.Name, headerPath)
		}

		if len(fn.ArgumentTypes) != len(fn.ArgumentNames) {
			return nil, fmt.Errorf("%w: %s has %d argument types but %d names",
				errInvalidInterface, fn.Name, len(fn.ArgumentTypes), len(fn.ArgumentNames))
		}

		iface.index[fn.Name] = len(iface.functions)
		iface.functions = append(iface.functions, copyFunction(fn))
	}

	return iface, nil
}

// Function looks up a function by name.
func (n *NativeInterface) Function(name string) (FunctionInfo, bool) {
	i, ok := n.index[name]
	if !ok {
		return FunctionInfo{}, false
	}

	return copyFunction(n.functions[i]), true
}

// Functions returns a copy of the declared functions in declaration order.
func (n *NativeInterface) Functions() []FunctionInfo {
	out := make([]FunctionInfo, len(n.functions))
	for i, fn := range n.functions {
		out[i] = copyFunction(fn)
	}

	return out
}

// HeaderPath returns the header the interface was derived from.
func (n *NativeInterface) HeaderPath() string {
	return n.headerPath
}

// Len returns the number of declared functions.
func (n *NativeInterface) Len() int {
	return len(n.functions)
}

// Names returns the function names in declaration order.
func (n *NativeInterface) Names() []string {
	names := make([]string, 0, len(n.functions))
	for _, fn := range n.functions {
		names = append(names, fn.Name)
	}

	return names
}

// unexported variables.
var (
	errInvalidInterface = errors.New("invalid native interface")
)

func copyFunction(fn FunctionInfo) FunctionInfo {
	fn.ArgumentTypes = append([]string(nil), fn.ArgumentTypes...)
	fn.ArgumentNames = append([]string(nil), fn.ArgumentNames...)

	return fn
}
