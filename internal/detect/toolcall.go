package detect

import (
	"fmt"
)

// ToolCallRepetitionDetector flags the same (name, argument fingerprint)
// pair invoked again and again. A repeat is a re-occurrence after the first
// call; confidence crosses the confirmed-contribution threshold at exactly
// MinRepeats repeats and saturates at 1.0.
type ToolCallRepetitionDetector struct {
	cfg       ToolCallConfig
	confirmAt float64
}

// NewToolCallRepetitionDetector creates the detector. confirmAt is the
// aggregation high threshold its confidence curve is calibrated against.
func NewToolCallRepetitionDetector(cfg ToolCallConfig, confirmAt float64) *ToolCallRepetitionDetector {
	return &ToolCallRepetitionDetector{cfg: cfg, confirmAt: confirmAt}
}

// Category returns the loop category this detector reports.
func (d *ToolCallRepetitionDetector) Category() Category {
	return CategoryToolCallRepetition
}

// Detect inspects the recent tool invocations for repeats of the most
// recent (name, fingerprint) pair.
func (d *ToolCallRepetitionDetector) Detect(h *History) *Result {
	n := len(h.toolCalls)
	if n < 2 {
		return nil
	}

	last := h.toolCalls[n-1]

	count := 0
	for _, entry := range h.toolCalls {
		if entry.Name == last.Name && entry.Fingerprint == last.Fingerprint {
			count++
		}
	}

	repeats := count - 1
	if repeats < 1 {
		return nil
	}

	// Trailing run of identical calls; back-to-back repeats weigh extra.
	consecutive := 1
	for i := n - 2; i >= 0; i-- {
		if h.toolCalls[i].Name != last.Name || h.toolCalls[i].Fingerprint != last.Fingerprint {
			break
		}
		consecutive++
	}

	confidence := d.confirmAt * float64(repeats) / float64(d.cfg.MinRepeats)
	if consecutive > 1 {
		confidence += d.cfg.ConsecutiveBonus * float64(consecutive-1)
	}

	return &Result{
		Category:   CategoryToolCallRepetition,
		Confidence: clip01(confidence),
		Window:     n,
		Evidence: Evidence{
			Pattern: fmt.Sprintf("%s#%016x", last.Name, last.Fingerprint),
			Count:   count,
		},
	}
}
