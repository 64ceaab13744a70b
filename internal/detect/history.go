package detect

import (
	"github.com/codefionn/loopguard/internal/turn"
)

// toolCallEntry is one observed tool invocation.
type toolCallEntry struct {
	Name        string
	Fingerprint uint64
}

// stateEntry is one observed conversation state with its progress marker.
type stateEntry struct {
	State    turn.State
	Progress bool
}

// errorEntry is one observed error or remediation marker. Remediation
// markers carry an empty signature.
type errorEntry struct {
	Signature   string
	Remediation bool
}

// History holds a single session's bounded signal buffers, one per
// detector. Oldest entries are evicted on overflow. Not safe for concurrent
// use; the owning LoopDetector serializes access per session.
type History struct {
	toolCalls []toolCallEntry
	outputs   []string
	states    []stateEntry
	errors    []errorEntry
	tokens    []int

	toolCallCap int
	outputCap   int
	stateCap    int
	errorCap    int
	tokenCap    int
}

// newHistory creates empty buffers sized from the detector windows.
func newHistory(cfg Config) *History {
	return &History{
		toolCallCap: cfg.ToolCall.Window,
		// One extra slot so the current output can be compared against a
		// full window of priors.
		outputCap: cfg.Similarity.Window + 1,
		stateCap:  cfg.Oscillation.Window,
		errorCap:  cfg.ErrorCycle.Window,
		tokenCap:  cfg.TokenPattern.Window,
	}
}

// Observe appends a turn's observable facts to the buffers. meaningfulTokens
// is the consumption above which the turn counts as progress.
func (h *History) Observe(t *turn.Turn, meaningfulTokens int) {
	if t == nil {
		return
	}

	if t.ToolCall != nil && t.ToolCall.Name != "" {
		fp := t.ToolCall.Fingerprint
		if fp == 0 {
			fp = turn.Fingerprint(t.ToolCall.Name, t.ToolCall.Args)
		}
		h.toolCalls = appendBounded(h.toolCalls, toolCallEntry{
			Name:        t.ToolCall.Name,
			Fingerprint: fp,
		}, h.toolCallCap)
	}

	if t.Role == turn.RoleAssistant && t.Content != "" {
		h.outputs = appendBounded(h.outputs, t.Content, h.outputCap)
	}

	if t.State != "" {
		h.states = appendBounded(h.states, stateEntry{
			State:    t.State,
			Progress: t.ToolResults > 0 || t.TokensConsumed >= meaningfulTokens,
		}, h.stateCap)
	}

	// A remediation marker is recorded before the turn's own error so it
	// sits between the previous occurrence and any recurrence.
	if t.Remediation {
		h.errors = appendBounded(h.errors, errorEntry{Remediation: true}, h.errorCap)
	}
	if t.Err != nil {
		h.errors = appendBounded(h.errors, errorEntry{Signature: t.Err.Signature()}, h.errorCap)
	}

	// The token buffer is scoped to a single generation. A completed turn
	// is a generation boundary: whatever stream came before is discarded so
	// token patterns never span turns.
	h.ResetTokens()
	h.AppendTokens(t.Tokens)
}

// AppendTokens adds streamed generation tokens to the token buffer. Called
// mid-turn by the dispatcher as the stream arrives.
func (h *History) AppendTokens(tokens []int) {
	for _, tok := range tokens {
		h.tokens = appendBounded(h.tokens, tok, h.tokenCap)
	}
}

// ResetTokens clears the token stream buffer. Called at generation
// boundaries so one turn's stream does not bleed into the next.
func (h *History) ResetTokens() {
	h.tokens = h.tokens[:0]
}

// appendBounded appends v and evicts from the front past the capacity.
func appendBounded[T any](buf []T, v T, capacity int) []T {
	buf = append(buf, v)
	if capacity > 0 && len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}
	return buf
}
