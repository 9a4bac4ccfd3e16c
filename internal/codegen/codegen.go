// Package codegen renders the C sources natstub compiles: the passthrough stub unit, implementation
// units, and the embedded runtime-support files.
package codegen

import (
	"bytes"
	"fmt"
	"strings"
)

// Exported constants.
const (
	// StubSourceName is the generated passthrough unit.
	StubSourceName = "stubfunctions.c"
	// RuntimeSourceName is the runtime-support source compiled into every binary.
	RuntimeSourceName = "stub.c"
)

// Function is the template data of one passthrough.
type Function struct {
	Name          string
	Declaration   string
	ReturnType    string
	Prototype     string
	ArgumentNames []string
	Void          bool
}

// ImplementationUnit is the template data of an implementation snippet unit.
type ImplementationUnit struct {
	// Header is the code header with its #line directive.
	Header string
	// Code is the snippet with its #line directive.
	Code string
}

// StubUnit is the template data of the passthrough unit.
type StubUnit struct {
	// Header is the code header with its #line directive.
	Header     string
	HeaderFile string
	HeaderLine int
	// InterfacePath is the header the functions were parsed from.
	InterfacePath string
	// GeneratedPath is where the unit will be written. Diagnostics after the header point here.
	GeneratedPath string
	Functions     []Function
}

// Generator renders units with a shared TemplateRegistry.
type Generator struct {
	templates *TemplateRegistry
}

// New returns a Generator.
func New() *Generator {
	return &Generator{templates: NewTemplateRegistry()}
}

// ImplementationSource renders an implementation unit.
func (g *Generator) ImplementationSource(unit ImplementationUnit) string {
	var buf bytes.Buffer

	g.templates.WriteImplementationUnit(&buf, unit)

	return buf.String()
}

// StubSource renders the passthrough unit.
func (g *Generator) StubSource(unit StubUnit) string {
	var buf bytes.Buffer

	g.templates.WriteStubPreamble(&buf, unit)

	if unit.GeneratedPath != "" {
		// The directive sits on the next line; the line after it is the one it names.
		next := bytes.Count(buf.Bytes(), []byte("\n")) + 2
		g.templates.WriteLineDirective(&buf, next, unit.GeneratedPath)
	}

	for _, fn := range unit.Functions {
		g.templates.WriteStubFunction(&buf, fn)
	}

	return buf.String()
}

func joinArgs(names []string) string {
	return strings.Join(names, ", ")
}

// quoteC returns s as a C string literal.
func quoteC(s string) string {
	var b strings.Builder

	b.WriteByte('"')

	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, "\\%03o", r)

				continue
			}

			b.WriteRune(r)
		}
	}

	b.WriteByte('"')

	return b.String()
}
