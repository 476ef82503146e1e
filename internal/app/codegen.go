package app

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// CodeAlphabet holds the 32 symbols used in session codes; 0, O, 1 and I are left out
// so codes survive being read aloud or copied from a projector.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of symbols in a session code.
const CodeLength = 6

// CodeGenerator draws session codes uniformly from CodeAlphabet.
type CodeGenerator struct {
	length int
	random io.Reader
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{length: CodeLength, random: rand.Reader}
}

// Generate returns a fresh code. Each byte is masked to 5 bits, which is unbiased
// because the alphabet size divides 256.
func (g *CodeGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)&(len(CodeAlphabet)-1)]
	}
	return string(buf), nil
}

// NormalizeCode canonicalizes user-typed codes.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidCode reports whether code has the right length and only alphabet symbols.
func ValidCode(code string) bool {
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
