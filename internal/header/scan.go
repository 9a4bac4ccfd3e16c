package header

import (
	"fmt"
	"strings"
)

// statements splits tokens into top-level statements. extern "C" blocks are unwrapped; other
// brace bodies stay inside their statement, and function definitions are dropped.
func statements(toks []string) ([][]string, error) {
	var (
		out   [][]string
		cur   []string
		stack []bool
		depth int
	)

	for _, tok := range toks {
		switch {
		case tok == "{" && depth == 0 && len(cur) == 2 && cur[0] == "extern" && cur[1] == `"C"`:
			stack = append(stack, true)
			cur = nil
		case tok == "{":
			stack = append(stack, false)
			depth++
			cur = append(cur, tok)
		case tok == "}":
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unexpected '}'", ErrMalformed)
			}

			transparent := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if transparent {
				cur = nil

				continue
			}

			depth--
			cur = append(cur, tok)

			if depth == 0 && isDefinition(cur) {
				cur = nil
			}
		case tok == ";" && depth == 0:
			if len(cur) > 0 {
				out = append(out, cur)
			}

			cur = nil
		default:
			cur = append(cur, tok)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unclosed '{'", ErrMalformed)
	}

	return out, nil
}

// isDefinition reports whether the first brace body of stmt follows a parameter list.
func isDefinition(stmt []string) bool {
	i := indexOf(stmt, "{")

	return i > 0 && stmt[i-1] == ")"
}

func stripComments(src string) string {
	var b strings.Builder

	for i := 0; i < len(src); i++ {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				return b.String()
			}

			i += end - 1
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return b.String()
			}

			// Keep line structure so preprocessor lines still start a line.
			b.WriteString(strings.Repeat("\n", strings.Count(src[i:i+2+end], "\n")))
			b.WriteByte(' ')

			i += end + 3
		case src[i] == '"' || src[i] == '\'':
			end := literalEnd(src, i)
			b.WriteString(src[i:end])
			i = end - 1
		default:
			b.WriteByte(src[i])
		}
	}

	return b.String()
}

func stripPreprocessor(src string) string {
	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
			out = append(out, lines[i])

			continue
		}

		for strings.HasSuffix(strings.TrimRight(lines[i], " \t\r"), `\`) && i+1 < len(lines) {
			i++
		}
	}

	return strings.Join(out, "\n")
}

// literalEnd returns the index just past the string or character literal starting at start.
func literalEnd(src string, start int) int {
	quote := src[start]

	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		case '\n':
			return i
		}
	}

	return len(src)
}

func tokenize(src string) ([]string, error) {
	var toks []string

	for i := 0; i < len(src); {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++
		case strings.HasPrefix(src[i:], "..."):
			toks = append(toks, "...")
			i += 3
		case c == '"' || c == '\'':
			end := literalEnd(src, i)
			toks = append(toks, src[i:end])
			i = end
		case isWordByte(c):
			start := i
			for i < len(src) && isWordByte(src[i]) {
				i++
			}

			toks = append(toks, src[start:i])
		case strings.IndexByte("(){}[];,*&=<>:+-/%!~^|?.", c) >= 0:
			toks = append(toks, string(c))
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrMalformed, c)
		}
	}

	return toks, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
