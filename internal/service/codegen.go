package service

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// CodeAlphabet is the symbol set of generated codes.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength is the number of symbols in a generated code.
	CodeLength = 4
)

// CodeGenerator produces candidate codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func() (string, error)

// Generate calls f.
func (f CodeGeneratorFunc) Generate() (string, error) { return f() }

// RandomCodeGenerator draws each symbol uniformly from CodeAlphabet using crypto/rand.
type RandomCodeGenerator struct{}

// Generate returns a fresh CodeLength-symbol code.
func (RandomCodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(CodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims surrounding whitespace and uppercases code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsWellFormedCode reports whether a normalized code could have been generated.
func IsWellFormedCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
