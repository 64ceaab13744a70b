package detect

import (
	"fmt"
	"strings"
)

// TokenPatternDetector flags a short token n-gram repeating inside the
// sliding window of the current generation's streamed tokens. It is the
// only detector that can fire mid-turn rather than at turn boundaries.
type TokenPatternDetector struct {
	cfg       TokenPatternConfig
	confirmAt float64
}

// NewTokenPatternDetector creates the detector calibrated against the
// aggregation high threshold.
func NewTokenPatternDetector(cfg TokenPatternConfig, confirmAt float64) *TokenPatternDetector {
	return &TokenPatternDetector{cfg: cfg, confirmAt: confirmAt}
}

// Category returns the loop category this detector reports.
func (d *TokenPatternDetector) Category() Category {
	return CategoryTokenPattern
}

// Detect counts n-gram occurrences over the token window and reports the
// most repeated one. Earliest n-gram wins ties, keeping the result
// deterministic.
func (d *TokenPatternDetector) Detect(h *History) *Result {
	tokens := h.tokens
	g := d.cfg.NGram
	if len(tokens) < 2*g {
		return nil
	}

	counts := make(map[string]int, len(tokens))
	keys := make([]string, 0, len(tokens))
	for i := 0; i+g <= len(tokens); i++ {
		key := gramKey(tokens[i : i+g])
		if counts[key] == 0 {
			keys = append(keys, key)
		}
		counts[key]++
	}

	best := ""
	bestCount := 0
	for _, key := range keys {
		if counts[key] > bestCount {
			best = key
			bestCount = counts[key]
		}
	}

	if bestCount < 2 {
		return nil
	}

	confidence := d.confirmAt * float64(bestCount-1) / float64(d.cfg.MaxRepeats-1)

	return &Result{
		Category:   CategoryTokenPattern,
		Confidence: clip01(confidence),
		Window:     len(tokens),
		Evidence: Evidence{
			Pattern: best,
			Count:   bestCount,
		},
	}
}

// gramKey renders a token n-gram as a stable map key.
func gramKey(tokens []int) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", tok)
	}
	return b.String()
}
