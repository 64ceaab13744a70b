package turn

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is the tiktoken encoding used when none is configured.
const defaultEncoding = "cl100k_base"

// Tokenizer converts generation text into the token sequence consumed by
// token pattern detection. When no tiktoken encoding is available it falls
// back to a deterministic word-hash scheme; the detector only compares
// token identity, so the fallback preserves its semantics.
type Tokenizer struct {
	enc    *tiktoken.Tiktoken
	approx bool
}

// NewTokenizer creates a Tokenizer for the named encoding. An empty name
// selects cl100k_base. The fallback tokenizer is returned (never an error)
// when the encoding cannot be loaded.
func NewTokenizer(encoding string) *Tokenizer {
	if encoding == "" {
		encoding = defaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &Tokenizer{approx: true}
	}
	return &Tokenizer{enc: enc}
}

// Tokens returns the token sequence for text. Deterministic for identical
// input.
func (t *Tokenizer) Tokens(text string) []int {
	if text == "" {
		return nil
	}

	if t.enc != nil {
		return t.enc.Encode(text, nil, nil)
	}

	// Fallback: one token per whitespace-delimited word, identified by a
	// stable hash of its lowercased form.
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]int, len(fields))
	for i, f := range fields {
		tokens[i] = int(xxhash.Sum64String(f) & 0x7fffffff)
	}
	return tokens
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.Tokens(text))
}

// Approximate reports whether the fallback tokenizer is in use.
func (t *Tokenizer) Approximate() bool {
	return t.approx
}
