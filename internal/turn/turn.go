// Package turn defines the per-turn record the cognitive dispatcher feeds
// into the loop detection subsystem, plus the argument fingerprinting and
// tokenization helpers that normalize its observable facts.
package turn

import (
	"regexp"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// State is the conversation/packet state at the end of a turn. The set of
// states is owned by the host pipeline; this subsystem only compares values.
type State string

const (
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateActing    State = "acting"
	StateSpeaking  State = "speaking"
	StateWaiting   State = "waiting"
)

// ToolCall describes a tool invocation observed in a turn. Fingerprint is a
// normalized digest of Args; two calls with semantically identical arguments
// share a fingerprint regardless of key order.
type ToolCall struct {
	Name        string `json:"name"`
	Args        string `json:"args,omitempty"`
	Fingerprint uint64 `json:"fingerprint,omitempty"`
}

// ErrorInfo describes an error observed in a turn. Message is the raw text;
// Signature() produces the comparable shape used by cycle detection.
type ErrorInfo struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

var (
	numberRe = regexp.MustCompile(`\b(?:0x[0-9a-fA-F]+|\d+)\b`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Signature returns the normalized error signature: category plus the
// message shape with volatile parts (numbers, hex ids, whitespace runs)
// collapsed. Comparable across turns even when the raw text varies.
func (e *ErrorInfo) Signature() string {
	msg := strings.ToLower(e.Message)
	msg = numberRe.ReplaceAllString(msg, "#")
	msg = spaceRe.ReplaceAllString(msg, " ")
	msg = strings.TrimSpace(msg)
	return e.Category + ": " + msg
}

// Turn is one cycle of the conversation as observed by the subsystem. Only
// the fields relevant for loop detection are carried; prompt assembly and
// tool execution remain with the dispatcher.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	State   State  `json:"state"`

	// ToolCall is set when the turn invoked a tool.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Err is set when the turn surfaced an error.
	Err *ErrorInfo `json:"error,omitempty"`

	// Remediation marks a turn that attempted to fix a previously seen
	// error. Error cycle detection requires remediation attempts between
	// recurrences of the same signature.
	Remediation bool `json:"remediation,omitempty"`

	// ToolResults is the number of new tool results produced this turn.
	ToolResults int `json:"tool_results,omitempty"`

	// TokensConsumed is the token budget spent this turn.
	TokensConsumed int `json:"tokens_consumed,omitempty"`

	// Tokens is the streamed token sequence of the turn's generation,
	// filled in by the dispatcher's tokenizer.
	Tokens []int `json:"-"`

	Timestamp time.Time `json:"timestamp"`
}
