package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
)

// Hash identifies a piece of code, a set of compiler options, or a combination of the two.
type Hash [sha256.Size]byte

// Combine returns H(h || other). The order matters: cache keys always combine code first, options second.
func Combine(h, other Hash) Hash {
	digest := sha256.New()
	_, _ = digest.Write(h[:])
	_, _ = digest.Write(other[:])

	return sum(digest)
}

// HashCode hashes the text of a code block. Provenance does not take part.
func HashCode(code CodeString) Hash {
	digest := sha256.New()
	writeField(digest, "code")
	writeField(digest, code.Code())

	return sum(digest)
}

// HashOptions hashes every compiler option in a fixed order.
func HashOptions(opts CompilerOptions) Hash {
	digest := sha256.New()
	writeField(digest, "options")
	writeField(digest, opts.CodeHeader.Code())
	writeField(digest, opts.CodeHeader.SourceFile())
	writeField(digest, strconv.Itoa(opts.CodeHeader.SourceLine()))
	writeField(digest, opts.CompilerFlags)
	writeField(digest, opts.TempPath)
	writeField(digest, opts.BinaryPath)
	writeField(digest, opts.StubFile)
	writeField(digest, opts.Compiler)

	return sum(digest)
}

// ImplementationKey is the cache key for compiling code under opts.
func ImplementationKey(code CodeString, opts CompilerOptions) Hash {
	return Combine(HashCode(code), HashOptions(opts))
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Short returns the first 16 hex characters, used in generated file names.
func (h Hash) Short() string {
	const shortLen = 8

	return hex.EncodeToString(h[:shortLen])
}

// String returns the full hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func sum(digest hash.Hash) Hash {
	var out Hash
	copy(out[:], digest.Sum(nil))

	return out
}

// writeField length-prefixes s so adjacent fields cannot run into each other.
func writeField(digest hash.Hash, s string) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(s)))
	_, _ = digest.Write(size[:])
	_, _ = digest.Write([]byte(s))
}
