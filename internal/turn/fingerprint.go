package turn

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes a 64-bit digest over a tool name and its JSON
// arguments. Arguments are canonicalized (decoded and re-encoded, which
// sorts object keys) so that key order does not change the fingerprint.
// Invalid JSON is hashed as-is.
func Fingerprint(name, args string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(canonicalJSON(args))
	return h.Sum64()
}

// NewToolCall builds a ToolCall with its fingerprint populated.
func NewToolCall(name, args string) *ToolCall {
	return &ToolCall{
		Name:        name,
		Args:        args,
		Fingerprint: Fingerprint(name, args),
	}
}

// canonicalJSON re-encodes a JSON document into a canonical form. Go's
// encoder emits map keys in sorted order, which is all the normalization
// fingerprinting needs.
func canonicalJSON(args string) string {
	if args == "" {
		return ""
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(args), &decoded); err != nil {
		return args
	}

	encoded, err := json.Marshal(decoded)
	if err != nil {
		return args
	}
	return string(encoded)
}
