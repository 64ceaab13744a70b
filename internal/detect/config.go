package detect

// Default thresholds and window sizes. All of them are configuration, not
// behavior: hosts tune them per deployment.
const (
	defaultMediumThreshold = 0.5
	defaultHighThreshold   = 0.85

	defaultToolCallWindow   = 10
	defaultToolCallRepeats  = 3
	defaultConsecutiveBonus = 0.05

	defaultSimilarityWindow    = 5
	defaultSimilarityThreshold = 0.8
	defaultShingleSize         = 3

	defaultOscillationWindow = 8
	defaultMinCycles         = 2
	defaultMeaningfulTokens  = 32

	defaultErrorCycleWindow  = 12
	defaultErrorRecurrences  = 3
	defaultTokenWindow       = 256
	defaultTokenNGram        = 4
	defaultTokenMaxRepeats   = 8
)

// ToolCallConfig configures tool call repetition detection.
type ToolCallConfig struct {
	// Window is the number of recent tool invocations inspected.
	Window int `json:"window"`

	// MinRepeats is K: the repeat count at which the detector's
	// confidence crosses the confirmed-contribution threshold.
	MinRepeats int `json:"min_repeats"`

	// ConsecutiveBonus is extra confidence per back-to-back repeat.
	ConsecutiveBonus float64 `json:"consecutive_bonus"`
}

// SimilarityConfig configures output similarity detection.
type SimilarityConfig struct {
	// Window is M: the number of prior outputs compared against.
	Window int `json:"window"`

	// Threshold is the Jaccard similarity above which two outputs are
	// considered near-duplicates.
	Threshold float64 `json:"threshold"`

	// ShingleSize is the token n-gram size used for shingling.
	ShingleSize int `json:"shingle_size"`
}

// OscillationConfig configures state oscillation detection.
type OscillationConfig struct {
	// Window is the number of trailing states inspected.
	Window int `json:"window"`

	// MinCycles is the minimum number of full cycle repeats to flag.
	MinCycles int `json:"min_cycles"`

	// MeaningfulTokens is the per-turn token consumption above which a
	// turn counts as progress (oscillation is only flagged without
	// progress).
	MeaningfulTokens int `json:"meaningful_tokens"`
}

// ErrorCycleConfig configures error cycle detection.
type ErrorCycleConfig struct {
	// Window is the number of recent error/remediation events inspected.
	Window int `json:"window"`

	// MinRecurrences is K: signature occurrences at which confidence
	// crosses the confirmed-contribution threshold.
	MinRecurrences int `json:"min_recurrences"`
}

// TokenPatternConfig configures in-generation token pattern detection.
type TokenPatternConfig struct {
	// Window is the sliding window of streamed tokens inspected.
	Window int `json:"window"`

	// NGram is the repeated n-gram size.
	NGram int `json:"ngram"`

	// MaxRepeats is the repeat count at which confidence crosses the
	// confirmed-contribution threshold.
	MaxRepeats int `json:"max_repeats"`
}

// Config carries every detector threshold and the aggregation thresholds.
// Supplied once at construction; zero values are replaced by defaults.
type Config struct {
	// MediumThreshold is the confidence at which a detector contributes
	// to the vote.
	MediumThreshold float64 `json:"medium_threshold"`

	// HighThreshold is the confidence at which a single detector alone
	// confirms a loop.
	HighThreshold float64 `json:"high_threshold"`

	ToolCall     ToolCallConfig     `json:"tool_call"`
	Similarity   SimilarityConfig   `json:"similarity"`
	Oscillation  OscillationConfig  `json:"oscillation"`
	ErrorCycle   ErrorCycleConfig   `json:"error_cycle"`
	TokenPattern TokenPatternConfig `json:"token_pattern"`
}

// DefaultConfig returns a Config with default thresholds and windows.
func DefaultConfig() Config {
	return Config{
		MediumThreshold: defaultMediumThreshold,
		HighThreshold:   defaultHighThreshold,
		ToolCall: ToolCallConfig{
			Window:           defaultToolCallWindow,
			MinRepeats:       defaultToolCallRepeats,
			ConsecutiveBonus: defaultConsecutiveBonus,
		},
		Similarity: SimilarityConfig{
			Window:      defaultSimilarityWindow,
			Threshold:   defaultSimilarityThreshold,
			ShingleSize: defaultShingleSize,
		},
		Oscillation: OscillationConfig{
			Window:           defaultOscillationWindow,
			MinCycles:        defaultMinCycles,
			MeaningfulTokens: defaultMeaningfulTokens,
		},
		ErrorCycle: ErrorCycleConfig{
			Window:         defaultErrorCycleWindow,
			MinRecurrences: defaultErrorRecurrences,
		},
		TokenPattern: TokenPatternConfig{
			Window:     defaultTokenWindow,
			NGram:      defaultTokenNGram,
			MaxRepeats: defaultTokenMaxRepeats,
		},
	}
}

// normalize fills zero values with defaults so construction never sees a
// degenerate window or threshold.
func (c Config) normalize() Config {
	def := DefaultConfig()

	if c.MediumThreshold <= 0 {
		c.MediumThreshold = def.MediumThreshold
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = def.HighThreshold
	}
	if c.HighThreshold < c.MediumThreshold {
		c.HighThreshold = c.MediumThreshold
	}

	if c.ToolCall.Window <= 0 {
		c.ToolCall.Window = def.ToolCall.Window
	}
	if c.ToolCall.MinRepeats <= 0 {
		c.ToolCall.MinRepeats = def.ToolCall.MinRepeats
	}
	if c.ToolCall.ConsecutiveBonus < 0 {
		c.ToolCall.ConsecutiveBonus = def.ToolCall.ConsecutiveBonus
	}

	if c.Similarity.Window <= 0 {
		c.Similarity.Window = def.Similarity.Window
	}
	if c.Similarity.Threshold <= 0 {
		c.Similarity.Threshold = def.Similarity.Threshold
	}
	if c.Similarity.ShingleSize <= 0 {
		c.Similarity.ShingleSize = def.Similarity.ShingleSize
	}

	if c.Oscillation.Window < 4 {
		c.Oscillation.Window = def.Oscillation.Window
	}
	if c.Oscillation.MinCycles <= 0 {
		c.Oscillation.MinCycles = def.Oscillation.MinCycles
	}
	if c.Oscillation.MeaningfulTokens <= 0 {
		c.Oscillation.MeaningfulTokens = def.Oscillation.MeaningfulTokens
	}

	if c.ErrorCycle.Window <= 0 {
		c.ErrorCycle.Window = def.ErrorCycle.Window
	}
	if c.ErrorCycle.MinRecurrences < 2 {
		c.ErrorCycle.MinRecurrences = def.ErrorCycle.MinRecurrences
	}

	if c.TokenPattern.Window <= 0 {
		c.TokenPattern.Window = def.TokenPattern.Window
	}
	if c.TokenPattern.NGram <= 0 {
		c.TokenPattern.NGram = def.TokenPattern.NGram
	}
	if c.TokenPattern.MaxRepeats < 2 {
		c.TokenPattern.MaxRepeats = def.TokenPattern.MaxRepeats
	}

	return c
}
