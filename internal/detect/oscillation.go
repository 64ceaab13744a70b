package detect

import (
	"strings"
)

// StateOscillationDetector flags a repeating period-2 or period-3 cycle in
// the trailing conversation states when no progress marker advanced inside
// the cycle. Confidence grows with the number of full cycle repeats.
type StateOscillationDetector struct {
	cfg OscillationConfig
}

// NewStateOscillationDetector creates the detector.
func NewStateOscillationDetector(cfg OscillationConfig) *StateOscillationDetector {
	return &StateOscillationDetector{cfg: cfg}
}

// Category returns the loop category this detector reports.
func (d *StateOscillationDetector) Category() Category {
	return CategoryStateOscillation
}

// Detect matches the trailing state sequence against cycles of period 2
// and 3, shortest period first.
func (d *StateOscillationDetector) Detect(h *History) *Result {
	n := len(h.states)
	if n < 4 {
		return nil
	}

	for period := 2; period <= 3; period++ {
		if res := d.matchCycle(h.states, period); res != nil {
			return res
		}
	}
	return nil
}

// matchCycle checks the trailing sequence for a cycle of the given period.
func (d *StateOscillationDetector) matchCycle(states []stateEntry, period int) *Result {
	n := len(states)
	if n < 2*period {
		return nil
	}

	// A cycle needs at least two distinct states, otherwise it is just a
	// constant sequence.
	distinct := false
	for i := n - period; i < n-1; i++ {
		if states[i].State != states[i+1].State {
			distinct = true
			break
		}
	}
	if !distinct {
		return nil
	}

	// Length of the trailing run where each state equals the one a full
	// period earlier.
	matched := period
	for i := n - period - 1; i >= 0; i-- {
		if states[i].State != states[i+period].State {
			break
		}
		matched++
	}

	repeats := matched / period
	if repeats < d.cfg.MinCycles {
		return nil
	}

	// Any progress inside the cycle span disqualifies it.
	for i := n - matched; i < n; i++ {
		if states[i].Progress {
			return nil
		}
	}

	cycle := make([]string, period)
	for i := 0; i < period; i++ {
		cycle[i] = string(states[n-period+i].State)
	}

	confidence := clip01(0.4 + 0.2*float64(repeats))

	return &Result{
		Category:   CategoryStateOscillation,
		Confidence: confidence,
		Window:     n,
		Evidence: Evidence{
			Pattern: strings.Join(cycle, "->"),
			Count:   repeats,
			Matched: cycle,
		},
	}
}
