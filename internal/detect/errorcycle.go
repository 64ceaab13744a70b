package detect

// ErrorCycleDetector flags the same normalized error signature recurring
// despite remediation attempts recorded between occurrences. Confidence
// scales with the recurrence count and crosses the confirmed-contribution
// threshold at MinRecurrences occurrences.
type ErrorCycleDetector struct {
	cfg       ErrorCycleConfig
	confirmAt float64
}

// NewErrorCycleDetector creates the detector calibrated against the
// aggregation high threshold.
func NewErrorCycleDetector(cfg ErrorCycleConfig, confirmAt float64) *ErrorCycleDetector {
	return &ErrorCycleDetector{cfg: cfg, confirmAt: confirmAt}
}

// Category returns the loop category this detector reports.
func (d *ErrorCycleDetector) Category() Category {
	return CategoryErrorCycle
}

// Detect looks for recurrences of the most recent error signature with at
// least one remediation attempt between every pair of occurrences. Errors
// simply repeating with no fix attempted are the host's retry problem, not
// a loop.
func (d *ErrorCycleDetector) Detect(h *History) *Result {
	entries := h.errors
	if len(entries) < 2 {
		return nil
	}

	// Most recent real error, skipping remediation markers.
	latest := ""
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Remediation && entries[i].Signature != "" {
			latest = entries[i].Signature
			break
		}
	}
	if latest == "" {
		return nil
	}

	var occurrences []int
	for i, e := range entries {
		if !e.Remediation && e.Signature == latest {
			occurrences = append(occurrences, i)
		}
	}

	if len(occurrences) < 2 {
		return nil
	}

	for k := 1; k < len(occurrences); k++ {
		remediated := false
		for i := occurrences[k-1] + 1; i < occurrences[k]; i++ {
			if entries[i].Remediation {
				remediated = true
				break
			}
		}
		if !remediated {
			return nil
		}
	}

	count := len(occurrences)
	confidence := d.confirmAt * float64(count-1) / float64(d.cfg.MinRecurrences-1)

	return &Result{
		Category:   CategoryErrorCycle,
		Confidence: clip01(confidence),
		Window:     len(entries),
		Evidence: Evidence{
			Pattern: latest,
			Count:   count,
		},
	}
}
