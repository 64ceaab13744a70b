// Package detect implements the loop detection ensemble: five independent
// detectors voting over per-session history, combined by one aggregation
// rule into a single result the recovery layer can act on.
package detect

// Category identifies one of the loop categories a detector can report.
type Category string

const (
	CategoryToolCallRepetition Category = "tool_call_repetition"
	CategoryOutputSimilarity   Category = "output_similarity"
	CategoryStateOscillation   Category = "state_oscillation"
	CategoryErrorCycle         Category = "error_cycle"
	CategoryTokenPattern       Category = "token_pattern"
)

// Severity is the aggregated verdict for a turn.
type Severity int

const (
	// SeverityNone indicates no credible loop signal.
	SeverityNone Severity = iota

	// SeveritySuspected indicates a single detector above the medium
	// threshold without corroboration.
	SeveritySuspected

	// SeverityConfirmed indicates either one detector above the high
	// threshold or at least two distinct detectors above the medium one.
	SeverityConfirmed
)

// String returns a human-readable severity name
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeveritySuspected:
		return "suspected"
	case SeverityConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Evidence carries the structured detail behind a detection.
type Evidence struct {
	// Pattern is a compact rendering of the repeated unit (tool call
	// pair, state cycle, token n-gram, error signature).
	Pattern string `json:"pattern,omitempty"`

	// Count is the number of repetitions observed.
	Count int `json:"count,omitempty"`

	// Matched lists the matched items when a pattern alone does not
	// describe the detection.
	Matched []string `json:"matched,omitempty"`
}

// Result is a single detector's vote for the current evaluation. Produced
// fresh each call and never mutated after return.
type Result struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Evidence   Evidence `json:"evidence"`

	// Window is the number of turns or tokens inspected.
	Window int `json:"window"`
}

// Aggregated is the combined verdict over all detector votes for one turn.
// Owned transiently by the caller; the detector retains no reference.
type Aggregated struct {
	// OverallConfidence is the maximum confidence among contributing
	// detectors, zero when none contribute.
	OverallConfidence float64 `json:"overall_confidence"`

	// Contributing lists every detector result at or above the medium
	// threshold, ordered by descending confidence.
	Contributing []Result `json:"contributing,omitempty"`

	Severity Severity `json:"severity"`
}

// Top returns the highest-confidence contributing result, or nil.
func (a *Aggregated) Top() *Result {
	if a == nil || len(a.Contributing) == 0 {
		return nil
	}
	return &a.Contributing[0]
}

// clip01 clamps v into [0, 1].
func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
