// Package header extracts the function prototypes a C header declares.
//
// It understands the shapes found in library headers: plain prototypes, extern "C" blocks, export and
// calling convention macros, attributes, function pointer and array parameters. Preprocessor lines are
// dropped without evaluation, so declarations behind #if branches are all seen.
package header

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/toejough/natstub/internal/core"
	"github.com/toejough/natstub/internal/native"
)

// ErrMalformed is returned for headers whose braces or parentheses do not balance.
var ErrMalformed = errors.New("malformed header")

// Options tunes Parse.
type Options struct {
	// Decorations are macro names removed wherever they appear, e.g. "K4A_EXPORT". A decoration
	// followed by a parenthesized argument list loses the list too.
	Decorations []string
}

// Parse returns the non-static function prototypes declared at the top level of src.
func Parse(src string, opts Options) ([]core.FunctionInfo, error) {
	toks, err := tokenize(stripPreprocessor(stripComments(src)))
	if err != nil {
		return nil, err
	}

	stmts, err := statements(toks)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]bool, len(builtinDecorations)+len(opts.Decorations))
	for _, d := range builtinDecorations {
		drop[d] = true
	}

	for _, d := range opts.Decorations {
		drop[d] = true
	}

	var fns []core.FunctionInfo

	for _, stmt := range stmts {
		fn, ok, err := parseDeclaration(undecorate(stmt, drop))
		if err != nil {
			return nil, err
		}

		if ok {
			fns = append(fns, fn)
		}
	}

	return fns, nil
}

// ParseFile parses headerPath into a NativeInterface. When binaryPath is set only the functions that
// binary exports are kept.
func ParseFile(headerPath, binaryPath string, opts Options) (*core.NativeInterface, error) {
	data, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	fns, err := Parse(string(data), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", headerPath, err)
	}

	if binaryPath != "" {
		exported, err := native.ExportedFunctions(binaryPath)
		if err != nil {
			return nil, err
		}

		fns = KeepExported(fns, exported)
	}

	return core.NewNativeInterface(headerPath, fns)
}

// KeepExported returns the functions whose names are in exported, in their original order.
func KeepExported(fns []core.FunctionInfo, exported []string) []core.FunctionInfo {
	keep := make(map[string]bool, len(exported))
	for _, name := range exported {
		keep[name] = true
	}

	var out []core.FunctionInfo

	for _, fn := range fns {
		if keep[fn.Name] {
			out = append(out, fn)
		}
	}

	return out
}

// unexported variables.
var (
	//nolint:gochecknoglobals // read-only table
	builtinDecorations = []string{
		"extern", "inline", "__inline", "__inline__", "__forceinline",
		"__cdecl", "__stdcall", "__fastcall", "__vectorcall",
		"__attribute__", "__declspec", "__asm__", "__extension__",
	}
	//nolint:gochecknoglobals // read-only table
	qualifiers = map[string]bool{
		"const": true, "volatile": true, "restrict": true, "__restrict": true,
		"struct": true, "union": true, "enum": true,
	}
	//nolint:gochecknoglobals // read-only table
	typeKeywords = map[string]bool{
		"void": true, "char": true, "short": true, "int": true, "long": true,
		"float": true, "double": true, "signed": true, "unsigned": true,
		"_Bool": true, "bool": true,
	}
)

// parseDeclaration turns one statement into a FunctionInfo. ok is false for anything that is not a
// non-static function prototype.
func parseDeclaration(toks []string) (core.FunctionInfo, bool, error) {
	if len(toks) < 3 || toks[len(toks)-1] != ")" {
		return core.FunctionInfo{}, false, nil
	}

	for _, tok := range toks {
		if tok == "typedef" || tok == "static" || tok == "=" || tok == "{" {
			return core.FunctionInfo{}, false, nil
		}
	}

	open, err := matchingOpen(toks, len(toks)-1)
	if err != nil {
		return core.FunctionInfo{}, false, err
	}

	prefix := toks[:open]
	if len(prefix) < 2 || !isIdent(prefix[len(prefix)-1]) {
		return core.FunctionInfo{}, false, nil
	}

	retToks := prefix[:len(prefix)-1]
	for _, tok := range retToks {
		if tok == "(" || tok == ")" {
			return core.FunctionInfo{}, false, nil
		}
	}

	fn := core.FunctionInfo{
		Name:       prefix[len(prefix)-1],
		ReturnType: renderType(retToks),
	}

	params := splitTopLevel(toks[open+1 : len(toks)-1])
	if len(params) == 1 && (len(params[0]) == 0 || (len(params[0]) == 1 && params[0][0] == "void")) {
		params = nil
	}

	for i, param := range params {
		typ, name := parseParam(param)
		if name == "" && typ != "..." {
			name = fmt.Sprintf("arg%d", i)
		}

		fn.ArgumentTypes = append(fn.ArgumentTypes, typ)
		fn.ArgumentNames = append(fn.ArgumentNames, name)
	}

	fn.Declaration = fn.Signature()

	return fn, true, nil
}

// parseParam returns the type and, when declared, the name of one parameter.
// Arrays decay to pointers and function pointers keep the form "ret (*)(args)".
func parseParam(toks []string) (string, string) {
	if len(toks) == 1 && toks[0] == "..." {
		return "...", ""
	}

	if i := indexOf(toks, "("); i >= 0 {
		closing := matchingClose(toks, i)
		inner := toks[i+1 : closing]
		name := ""

		if len(inner) > 0 && isIdent(inner[len(inner)-1]) {
			name = inner[len(inner)-1]
		}

		return renderType(toks[:i]) + " (*)" + renderTokens(toks[closing+1:]), name
	}

	if i := indexOf(toks, "["); i >= 0 {
		toks = append(append([]string{}, toks[:i]...), "*")
		if len(toks) >= 3 && isIdent(toks[len(toks)-2]) && hasBaseType(toks[:len(toks)-2]) {
			name := toks[len(toks)-2]

			return renderType(append(toks[:len(toks)-2:len(toks)-2], "*")), name
		}

		return renderType(toks), ""
	}

	last := toks[len(toks)-1]
	if isIdent(last) && !typeKeywords[last] && !qualifiers[last] && hasBaseType(toks[:len(toks)-1]) {
		return renderType(toks[:len(toks)-1]), last
	}

	return renderType(toks), ""
}

// hasBaseType reports whether toks name a type rather than only qualifying one.
func hasBaseType(toks []string) bool {
	for _, tok := range toks {
		if isIdent(tok) && !qualifiers[tok] {
			return true
		}
	}

	return false
}

func indexOf(toks []string, want string) int {
	for i, tok := range toks {
		if tok == want {
			return i
		}
	}

	return -1
}

func isIdent(tok string) bool {
	if tok == "" {
		return false
	}

	for i, r := range tok {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return true
}

func matchingClose(toks []string, open int) int {
	depth := 0

	for i := open; i < len(toks); i++ {
		switch toks[i] {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return len(toks) - 1
}

func matchingOpen(toks []string, closing int) (int, error) {
	depth := 0

	for i := closing; i >= 0; i-- {
		switch toks[i] {
		case ")":
			depth++
		case "(":
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: unbalanced parentheses in %q", ErrMalformed, renderTokens(toks))
}

// renderTokens joins tokens the way C is usually written: no space inside parentheses or before commas.
func renderTokens(toks []string) string {
	var b strings.Builder

	prev := ""

	for _, tok := range toks {
		switch {
		case b.Len() == 0, prev == "(", tok == ")", tok == ",", tok == "(" && prev != ",", tok == "*" && prev == "*":
		default:
			b.WriteByte(' ')
		}

		b.WriteString(tok)
		prev = tok
	}

	return b.String()
}

// renderType writes a type as "const char *", with pointer stars grouped.
func renderType(toks []string) string {
	var b strings.Builder

	for i, tok := range toks {
		if i > 0 && !(tok == "*" && toks[i-1] == "*") {
			b.WriteByte(' ')
		}

		b.WriteString(tok)
	}

	return b.String()
}

func splitTopLevel(toks []string) [][]string {
	var (
		out   [][]string
		cur   []string
		depth int
	)

	for _, tok := range toks {
		switch tok {
		case "(", "[":
			depth++
		case ")", "]":
			depth--
		case ",":
			if depth == 0 {
				out = append(out, cur)
				cur = nil

				continue
			}
		}

		cur = append(cur, tok)
	}

	return append(out, cur)
}

// undecorate removes the drop words, and the argument list following any of them.
func undecorate(toks []string, drop map[string]bool) []string {
	out := make([]string, 0, len(toks))

	for i := 0; i < len(toks); i++ {
		if !drop[toks[i]] {
			out = append(out, toks[i])

			continue
		}

		if i+1 < len(toks) && toks[i+1] == "(" {
			i = matchingClose(toks, i+1)
		}
	}

	return out
}
