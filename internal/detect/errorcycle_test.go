package detect

import (
	"testing"

	"github.com/codefionn/loopguard/internal/turn"
)

func errTurn(msg string, remediation bool) *turn.Turn {
	return &turn.Turn{
		Role:        turn.RoleAssistant,
		Err:         &turn.ErrorInfo{Category: "build", Message: msg},
		Remediation: remediation,
	}
}

func TestErrorCycle_RecurrenceDespiteRemediation(t *testing.T) {
	cfg := DefaultConfig() // MinRecurrences = 3
	det := NewErrorCycleDetector(cfg.ErrorCycle, cfg.HighThreshold)

	h := newHistory(cfg)

	// First failure, then two fix attempts that each hit the same wall.
	h.Observe(errTurn("undefined symbol foo", false), 0)
	if res := det.Detect(h); res != nil {
		t.Errorf("Expected no signal after first occurrence")
	}

	h.Observe(errTurn("undefined symbol foo", true), 0)
	mid := det.Detect(h)
	if mid == nil {
		t.Fatalf("Expected a weak signal at 2 occurrences with remediation between")
	}

	h.Observe(errTurn("undefined symbol foo", true), 0)
	res := det.Detect(h)
	if res == nil {
		t.Fatalf("Expected a signal at 3 occurrences")
	}
	if res.Confidence < cfg.HighThreshold {
		t.Errorf("Expected confidence >= %.2f at MinRecurrences, got %.2f", cfg.HighThreshold, res.Confidence)
	}
	if mid.Confidence >= res.Confidence {
		t.Errorf("Expected confidence to grow with recurrences: %.2f then %.2f", mid.Confidence, res.Confidence)
	}
	if res.Evidence.Count != 3 {
		t.Errorf("Expected 3 occurrences, got %d", res.Evidence.Count)
	}
}

func TestErrorCycle_NoRemediationNoSignal(t *testing.T) {
	cfg := DefaultConfig()
	det := NewErrorCycleDetector(cfg.ErrorCycle, cfg.HighThreshold)

	h := newHistory(cfg)
	for i := 0; i < 4; i++ {
		h.Observe(errTurn("connection refused", false), 0)
	}

	// Plain retries without fixes in between are not an error cycle.
	if res := det.Detect(h); res != nil {
		t.Errorf("Expected no signal without remediation attempts, got %+v", res)
	}
}

func TestErrorCycle_DistinctSignaturesNoSignal(t *testing.T) {
	cfg := DefaultConfig()
	det := NewErrorCycleDetector(cfg.ErrorCycle, cfg.HighThreshold)

	h := newHistory(cfg)
	h.Observe(errTurn("undefined symbol foo", false), 0)
	h.Observe(errTurn("connection refused", true), 0)
	h.Observe(errTurn("permission denied", true), 0)

	if res := det.Detect(h); res != nil {
		t.Errorf("Expected no signal for distinct error signatures, got %+v", res)
	}
}

func TestErrorCycle_MessageShapeNormalized(t *testing.T) {
	cfg := DefaultConfig()
	det := NewErrorCycleDetector(cfg.ErrorCycle, cfg.HighThreshold)

	h := newHistory(cfg)
	// Same failure shape, different line numbers.
	h.Observe(errTurn("parse error at line 14", false), 0)
	h.Observe(errTurn("parse error at line 27", true), 0)
	h.Observe(errTurn("parse error at line 33", true), 0)

	res := det.Detect(h)
	if res == nil {
		t.Fatalf("Expected normalized signatures to match across line numbers")
	}
	if res.Evidence.Count != 3 {
		t.Errorf("Expected 3 occurrences, got %d", res.Evidence.Count)
	}
}
