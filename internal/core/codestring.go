package core

import (
	"fmt"
	"runtime"
	"strings"
)

// CodeString is a block of C source together with the place it was written.
// The provenance ends up in #line directives so compiler diagnostics point back at the Go test
// that supplied the code instead of the generated file.
type CodeString struct {
	code       string
	sourceFile string
	sourceLine int
}

// C wraps code and records the file and line of the direct caller.
func C(code string) CodeString {
	return CodeAt(code, 1)
}

// CodeAt wraps code with the provenance of the frame skip levels above CodeAt's caller.
// CodeAt(code, 0) records the line that calls CodeAt.
func CodeAt(code string, skip int) CodeString {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return CodeString{code: code}
	}

	return CodeString{code: code, sourceFile: file, sourceLine: line}
}

// NewCodeString wraps code with explicit provenance.
func NewCodeString(code, sourceFile string, sourceLine int) CodeString {
	return CodeString{code: code, sourceFile: sourceFile, sourceLine: sourceLine}
}

// Append returns a new CodeString with more appended. Provenance stays with the receiver.
func (c CodeString) Append(more string) CodeString {
	return CodeString{code: c.code + more, sourceFile: c.sourceFile, sourceLine: c.sourceLine}
}

// Code returns the source text.
func (c CodeString) Code() string {
	return c.code
}

// EmbeddedLineData returns the code prefixed with a #line directive naming its origin.
// Code without provenance is returned unchanged apart from a trailing newline.
func (c CodeString) EmbeddedLineData() string {
	var source strings.Builder

	if c.HasProvenance() {
		fmt.Fprintf(&source, "#line %d \"%s\"\n", c.sourceLine, escapeLinePath(c.sourceFile))
	}

	source.WriteString(c.code)
	source.WriteString("\n")

	return source.String()
}

// HasProvenance reports whether both a file and a positive line are known.
func (c CodeString) HasProvenance() bool {
	return c.sourceFile != "" && c.sourceLine > 0
}

// SourceFile returns the file that defined the code block.
func (c CodeString) SourceFile() string {
	return c.sourceFile
}

// SourceLine returns the line that defined the code block.
func (c CodeString) SourceLine() int {
	return c.sourceLine
}

// String returns the source text.
func (c CodeString) String() string {
	return c.code
}

func escapeLinePath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)

	return strings.ReplaceAll(path, `"`, `\"`)
}
