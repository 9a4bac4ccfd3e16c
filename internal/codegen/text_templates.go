package codegen

import (
	"bytes"
	"fmt"
	"text/template"
)

// TemplateRegistry holds the parsed templates for generated C units.
// Create one with NewTemplateRegistry.
type TemplateRegistry struct {
	stubPreambleTmpl       *template.Template
	stubFunctionTmpl       *template.Template
	implementationUnitTmpl *template.Template
	lineDirectiveTmpl      *template.Template
}

// NewTemplateRegistry parses all templates. Templates are constants, so parsing cannot fail at runtime.
func NewTemplateRegistry() *TemplateRegistry {
	funcs := template.FuncMap{
		"quote": quoteC,
		"join":  joinArgs,
	}

	return &TemplateRegistry{
		stubPreambleTmpl:       template.Must(template.New("stubPreamble").Funcs(funcs).Parse(stubPreambleTemplate)),
		stubFunctionTmpl:       template.Must(template.New("stubFunction").Funcs(funcs).Parse(stubFunctionTemplate)),
		implementationUnitTmpl: template.Must(template.New("implementationUnit").Funcs(funcs).Parse(implementationUnitTemplate)),
		lineDirectiveTmpl:      template.Must(template.New("lineDirective").Funcs(funcs).Parse(lineDirectiveTemplate)),
	}
}

// WriteImplementationUnit writes an implementation snippet unit.
func (r *TemplateRegistry) WriteImplementationUnit(buf *bytes.Buffer, data ImplementationUnit) {
	execute(r.implementationUnitTmpl, buf, data)
}

// WriteLineDirective writes a #line directive.
func (r *TemplateRegistry) WriteLineDirective(buf *bytes.Buffer, line int, file string) {
	execute(r.lineDirectiveTmpl, buf, struct {
		Line int
		File string
	}{line, file})
}

// WriteStubFunction writes one passthrough function.
func (r *TemplateRegistry) WriteStubFunction(buf *bytes.Buffer, data Function) {
	execute(r.stubFunctionTmpl, buf, data)
}

// WriteStubPreamble writes the include, the code header and the provenance comments of a stub unit.
func (r *TemplateRegistry) WriteStubPreamble(buf *bytes.Buffer, data StubUnit) {
	execute(r.stubPreambleTmpl, buf, data)
}

// unexported constants.
const (
	implementationUnitTemplate = `#include "stub_implementation.h"
{{.Header}}
{{.Code}}
`
	lineDirectiveTemplate = `#line {{.Line}} {{quote .File}}
`
	stubFunctionTemplate = `{{.Declaration}}
{
    void *stub_target;

    Stub_RecordCall({{quote .Name}});
    stub_target = Stub_Redirect({{quote .Name}});
    if (stub_target == NULL) {
{{- if .Void}}
        return;
{{- else}}
        {{.ReturnType}} stub_zero = {0};
        return stub_zero;
{{- end}}
    }
    {{if not .Void}}return {{end}}(({{.Prototype}})stub_target)({{join .ArgumentNames}});
}

`
	stubPreambleTemplate = `#include "stub.h"
{{- if .HeaderFile}}
// Defined at {{.HeaderFile}} line {{.HeaderLine}}
{{- end}}
{{.Header}}
// Auto generated from {{.InterfacePath}}
`
)

func execute(tmpl *template.Template, buf *bytes.Buffer, data any) {
	err := tmpl.Execute(buf, data)
	if err != nil {
		panic(fmt.Sprintf("failed to execute %s template: %v", tmpl.Name(), err))
	}
}
