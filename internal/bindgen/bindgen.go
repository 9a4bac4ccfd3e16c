// Package bindgen writes Go source that binds typed func fields to the functions of a stubbed module.
package bindgen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
	"github.com/toejough/go-reorder"

	"github.com/toejough/natstub/internal/core"
)

// ErrVariadic is returned for functions with a variable argument list.
var ErrVariadic = errors.New("variadic functions cannot be bound")

// Config names the generated code.
type Config struct {
	// Package is the Go package clause of the output.
	Package string
	// Module is the stubbed module's name. It prefixes the generated type names.
	Module string
}

// Generate returns a formatted Go file with a bindings struct and its constructor for iface.
func Generate(iface *core.NativeInterface, cfg Config) (string, error) {
	data, err := newFileData(iface, cfg)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	err = bindingsTmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to render bindings: %w", err)
	}

	file, err := decorator.Parse(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to parse generated bindings: %w", err)
	}

	decorateFields(file, data)

	var out bytes.Buffer

	err = decorator.Fprint(&out, file)
	if err != nil {
		return "", fmt.Errorf("failed to print bindings: %w", err)
	}

	reordered, err := reorder.Source(out.String())
	if err != nil {
		reordered = out.String()
	}

	formatted, err := format.Source([]byte(reordered))
	if err != nil {
		return "", fmt.Errorf("failed to format bindings: %w", err)
	}

	return string(formatted), nil
}

type fileData struct {
	Header      string
	Package     string
	Module      string
	Type        string
	Constructor string
	Functions   []functionData
}

type functionData struct {
	CName       string
	GoName      string
	Params      string
	Result      string
	Declaration string
}

//nolint:gochecknoglobals // parsed once
var bindingsTmpl = template.Must(template.New("bindings").Parse(`// Code generated by stubgen from {{.Header}}. DO NOT EDIT.

package {{.Package}}

// Binder is satisfied by a stubbed module.
type Binder interface {
	Bind(fptr any, name string) error
}

// {{.Type}} holds typed entry points into the {{.Module}} stub.
type {{.Type}} struct {
{{- range .Functions}}
	{{.GoName}} func({{.Params}}){{.Result}}
{{- end}}
}

// {{.Constructor}} binds every function of the {{.Module}} stub.
func {{.Constructor}}(module Binder) (*{{.Type}}, error) {
	b := &{{.Type}}{}
{{range .Functions}}
	if err := module.Bind(&b.{{.GoName}}, {{printf "%q" .CName}}); err != nil {
		return nil, err
	}
{{end}}
	return b, nil
}
`))

// decorateFields documents each struct field with the C declaration it calls.
func decorateFields(file *dst.File, data fileData) {
	decls := make(map[string]string, len(data.Functions))
	for _, fn := range data.Functions {
		decls[fn.GoName] = fn.Declaration
	}

	dst.Inspect(file, func(n dst.Node) bool {
		spec, ok := n.(*dst.TypeSpec)
		if !ok || spec.Name.Name != data.Type {
			return true
		}

		st, ok := spec.Type.(*dst.StructType)
		if !ok {
			return false
		}

		for i, field := range st.Fields.List {
			if len(field.Names) == 0 {
				continue
			}

			name := field.Names[0].Name
			if i > 0 {
				field.Decs.Before = dst.EmptyLine
			}

			field.Decs.Start.Append(fmt.Sprintf("// %s calls %s.", name, decls[name]))
		}

		return false
	})
}

func newFileData(iface *core.NativeInterface, cfg Config) (fileData, error) {
	prefix := exportedName(cfg.Module)
	data := fileData{
		Header:      iface.HeaderPath(),
		Package:     cfg.Package,
		Module:      cfg.Module,
		Type:        prefix + "Bindings",
		Constructor: "Bind" + prefix,
	}

	seen := make(map[string]string)

	for _, fn := range iface.Functions() {
		if fn.Variadic() {
			return fileData{}, fmt.Errorf("%w: %s", ErrVariadic, fn.Name)
		}

		fd, err := newFunctionData(fn)
		if err != nil {
			return fileData{}, fmt.Errorf("%s: %w", fn.Name, err)
		}

		if prior, dup := seen[fd.GoName]; dup {
			return fileData{}, fmt.Errorf("%w: %s and %s both map to %s", errNameCollision, prior, fn.Name, fd.GoName)
		}

		seen[fd.GoName] = fn.Name
		data.Functions = append(data.Functions, fd)
	}

	return data, nil
}

func newFunctionData(fn core.FunctionInfo) (functionData, error) {
	params := make([]string, len(fn.ArgumentTypes))

	for i, cType := range fn.ArgumentTypes {
		goT, err := goType(cType, false)
		if err != nil {
			return functionData{}, err
		}

		params[i] = paramName(fn.ArgumentNames[i], i) + " " + goT
	}

	result, err := goType(fn.ReturnType, true)
	if err != nil {
		return functionData{}, err
	}

	if result != "" {
		result = " " + result
	}

	return functionData{
		CName:       fn.Name,
		GoName:      exportedName(fn.Name),
		Params:      strings.Join(params, ", "),
		Result:      result,
		Declaration: fn.Signature(),
	}, nil
}

var errNameCollision = errors.New("generated name collision")
