package bindgen

import (
	"errors"
	"fmt"
	"go/token"
	"strings"
	"unicode"
)

// ErrStructByValue is returned for functions that pass or return a struct by value.
var ErrStructByValue = errors.New("struct passed by value cannot be bound")

// unexported variables.
var (
	//nolint:gochecknoglobals // read-only table
	scalarTypes = map[string]string{
		"_Bool":                  "bool",
		"bool":                   "bool",
		"char":                   "int8",
		"signed char":            "int8",
		"unsigned char":          "uint8",
		"int8_t":                 "int8",
		"uint8_t":                "uint8",
		"short":                  "int16",
		"short int":              "int16",
		"signed short":           "int16",
		"unsigned short":         "uint16",
		"unsigned short int":     "uint16",
		"int16_t":                "int16",
		"uint16_t":               "uint16",
		"int":                    "int32",
		"signed":                 "int32",
		"signed int":             "int32",
		"unsigned":               "uint32",
		"unsigned int":           "uint32",
		"int32_t":                "int32",
		"uint32_t":               "uint32",
		"long":                   "int",
		"long int":               "int",
		"signed long":            "int",
		"unsigned long":          "uint",
		"unsigned long int":      "uint",
		"long long":              "int64",
		"long long int":          "int64",
		"signed long long":       "int64",
		"unsigned long long":     "uint64",
		"unsigned long long int": "uint64",
		"int64_t":                "int64",
		"uint64_t":               "uint64",
		"size_t":                 "uint",
		"ssize_t":                "int",
		"ptrdiff_t":              "int",
		"intptr_t":               "int",
		"uintptr_t":              "uintptr",
		"float":                  "float32",
		"double":                 "float64",
	}
	//nolint:gochecknoglobals // read-only table
	cvQualifiers = map[string]bool{"const": true, "volatile": true, "restrict": true, "__restrict": true}
)

// goType maps a C type to the Go type purego passes it as. Pointers and unknown names become uintptr,
// except const char * which is a string.
func goType(cType string, result bool) (string, error) {
	words := strings.Fields(strings.ReplaceAll(cType, "*", " * "))

	stars := 0
	base := make([]string, 0, len(words))

	for _, w := range words {
		switch {
		case w == "*":
			stars++
		case cvQualifiers[w]:
		default:
			base = append(base, w)
		}
	}

	name := strings.Join(base, " ")

	switch {
	case strings.Contains(cType, "(*)"):
		return "uintptr", nil
	case stars == 1 && name == "char" && strings.Contains(cType, "const"):
		return "string", nil
	case stars > 0:
		return "uintptr", nil
	case name == "void":
		if result {
			return "", nil
		}

		return "", fmt.Errorf("%w: void parameter", errUnsupportedType)
	case strings.HasPrefix(name, "struct ") || strings.HasPrefix(name, "union "):
		return "", fmt.Errorf("%w: %s", ErrStructByValue, cType)
	}

	if goName, ok := scalarTypes[name]; ok {
		return goName, nil
	}

	if strings.HasPrefix(name, "enum ") {
		return "int32", nil
	}

	return "uintptr", nil
}

// exportedName turns a C identifier into an exported Go identifier: device_get_count becomes DeviceGetCount.
func exportedName(cName string) string {
	var b strings.Builder

	for _, part := range strings.Split(cName, "_") {
		if part == "" {
			continue
		}

		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}

	if b.Len() == 0 || !unicode.IsLetter([]rune(b.String())[0]) {
		return "X" + b.String()
	}

	return b.String()
}

// paramName keeps a C parameter name unless Go reserves it.
func paramName(cName string, index int) string {
	if cName == "" {
		return fmt.Sprintf("arg%d", index)
	}

	if token.IsKeyword(cName) || predeclared[cName] {
		return cName + "_"
	}

	return cName
}

//nolint:gochecknoglobals // read-only table
var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "error": true, "int": true, "len": true, "cap": true,
	"nil": true, "string": true, "uint": true, "uintptr": true, "true": true, "false": true,
}

var errUnsupportedType = errors.New("unsupported C type")
