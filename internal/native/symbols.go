package native

import (
	"debug/elf"
	"debug/macho"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrUnknownFormat is returned for binaries that are neither ELF nor Mach-O.
var ErrUnknownFormat = errors.New("unrecognized binary format")

// ExportedFunctions lists the defined, externally visible function symbols of the binary at path,
// sorted by name. Mach-O leading underscores are stripped.
func ExportedFunctions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var magic [4]byte

	_, err = f.ReadAt(magic[:], 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var names []string

	switch {
	case string(magic[:]) == elf.ELFMAG:
		names, err = elfExports(path)
	case isMachO(magic):
		names, err = machoExports(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if err != nil {
		return nil, err
	}

	sort.Strings(names)

	return names, nil
}

func elfExports(path string) ([]string, error) {
	file, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF %s: %w", path, err)
	}
	defer file.Close()

	syms, err := file.DynamicSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic symbols of %s: %w", path, err)
	}

	names := make([]string, 0, len(syms))

	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Section == elf.SHN_UNDEF {
			continue
		}

		bind := elf.ST_BIND(sym.Info)
		if bind != elf.STB_GLOBAL && bind != elf.STB_WEAK {
			continue
		}

		if elf.ST_VISIBILITY(sym.Other) == elf.STV_HIDDEN {
			continue
		}

		names = append(names, sym.Name)
	}

	return names, nil
}

func isMachO(magic [4]byte) bool {
	le := uint32(magic[0]) | uint32(magic[1])<<8 | uint32(magic[2])<<16 | uint32(magic[3])<<24
	be := uint32(magic[3]) | uint32(magic[2])<<8 | uint32(magic[1])<<16 | uint32(magic[0])<<24

	for _, m := range []uint32{macho.Magic32, macho.Magic64} {
		if le == m || be == m {
			return true
		}
	}

	return false
}

func machoExports(path string) ([]string, error) {
	const (
		nExt  = 0x01
		nType = 0x0e
		nSect = 0x0e
	)

	file, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Mach-O %s: %w", path, err)
	}
	defer file.Close()

	if file.Symtab == nil {
		return nil, nil
	}

	names := make([]string, 0, len(file.Symtab.Syms))

	for _, sym := range file.Symtab.Syms {
		if sym.Type&nExt == 0 || sym.Type&nType != nSect || sym.Sect == 0 {
			continue
		}

		if !isTextSection(file, sym.Sect) {
			continue
		}

		names = append(names, strings.TrimPrefix(sym.Name, "_"))
	}

	return names, nil
}

// isTextSection reports whether the 1-based section index is executable code.
func isTextSection(file *macho.File, sect uint8) bool {
	i := int(sect) - 1
	if i < 0 || i >= len(file.Sections) {
		return false
	}

	s := file.Sections[i]

	return s.Seg == "__TEXT" && s.Name == "__text"
}
