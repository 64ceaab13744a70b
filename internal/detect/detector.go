package detect

import (
	"context"
	"sort"
	"sync"

	"github.com/codefionn/loopguard/internal/logger"
	"github.com/codefionn/loopguard/internal/turn"
)

// Detector is one detection capability in the ensemble. Implementations
// own no state outside the History handed to them; on malformed or
// insufficient history they return nil (zero signal), never an error.
type Detector interface {
	// Category returns the loop category the detector reports.
	Category() Category

	// Detect analyzes the session history and returns a result, or nil
	// when there is no signal.
	Detect(h *History) *Result
}

// sessionHistory pairs a session's buffers with its own lock so concurrent
// sessions never contend with each other.
type sessionHistory struct {
	mu   sync.Mutex
	hist *History
}

// LoopDetector owns the detector ensemble and the per-session history
// buffers. One instance serves all sessions; state is partitioned by
// session id. Construct with New and inject into the dispatcher — the
// subsystem deliberately has no package-level instance.
type LoopDetector struct {
	cfg       Config
	detectors []Detector
	tokenDet  *TokenPatternDetector
	log       *logger.Logger

	mu       sync.Mutex
	sessions map[string]*sessionHistory
}

// New creates a LoopDetector with the full ensemble. Zero config values
// are replaced by defaults.
func New(cfg Config) *LoopDetector {
	cfg = cfg.normalize()

	tokenDet := NewTokenPatternDetector(cfg.TokenPattern, cfg.HighThreshold)

	return &LoopDetector{
		cfg: cfg,
		detectors: []Detector{
			NewToolCallRepetitionDetector(cfg.ToolCall, cfg.HighThreshold),
			NewOutputSimilarityDetector(cfg.Similarity),
			NewStateOscillationDetector(cfg.Oscillation),
			NewErrorCycleDetector(cfg.ErrorCycle, cfg.HighThreshold),
			tokenDet,
		},
		tokenDet: tokenDet,
		log:      logger.Global().WithPrefix("detect"),
		sessions: make(map[string]*sessionHistory),
	}
}

// Config returns the normalized configuration in effect.
func (d *LoopDetector) Config() Config {
	return d.cfg
}

// Evaluate appends the turn's observable facts to the session's history and
// runs the full ensemble against it. A cancelled context commits no state
// and yields an empty result. Never returns nil.
func (d *LoopDetector) Evaluate(ctx context.Context, sessionID string, t *turn.Turn) *Aggregated {
	if t == nil {
		return &Aggregated{Severity: SeverityNone}
	}
	if ctx != nil && ctx.Err() != nil {
		return &Aggregated{Severity: SeverityNone}
	}

	s := d.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hist.Observe(t, d.cfg.Oscillation.MeaningfulTokens)

	results := make([]Result, 0, len(d.detectors))
	for _, det := range d.detectors {
		if r := d.safeDetect(det, s.hist); r != nil {
			results = append(results, *r)
		}
	}

	agg := d.aggregate(results)
	if agg.Severity != SeverityNone {
		d.log.Info("session %s: severity=%s confidence=%.2f contributing=%d",
			sessionID, agg.Severity, agg.OverallConfidence, len(agg.Contributing))
	}
	return agg
}

// FeedTokens appends streamed tokens for an in-progress generation and runs
// only the token pattern detector. Returns a result when the pattern is at
// or above the medium threshold, nil otherwise.
func (d *LoopDetector) FeedTokens(sessionID string, tokens []int) *Result {
	if len(tokens) == 0 {
		return nil
	}

	s := d.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hist.AppendTokens(tokens)

	r := d.safeDetect(d.tokenDet, s.hist)
	if r == nil || r.Confidence < d.cfg.MediumThreshold {
		return nil
	}
	return r
}

// ResetTokens clears the session's token stream at a generation boundary.
func (d *LoopDetector) ResetTokens(sessionID string) {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.hist.ResetTokens()
	s.mu.Unlock()
}

// CloseSession discards all history for the session. Called by the
// dispatcher when the session ends; there is no implicit expiry.
func (d *LoopDetector) CloseSession(sessionID string) {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	d.mu.Unlock()
}

// SessionCount returns the number of sessions with live history.
func (d *LoopDetector) SessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// session returns the session's history, creating it lazily on first use.
func (d *LoopDetector) session(sessionID string) *sessionHistory {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		s = &sessionHistory{hist: newHistory(d.cfg)}
		d.sessions[sessionID] = s
	}
	return s
}

// safeDetect runs one detector, isolating panics so a single broken
// detector cannot abort the evaluation. A panicking detector is logged and
// excluded from the vote.
func (d *LoopDetector) safeDetect(det Detector, h *History) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("detector %s panicked, excluded from vote: %v", det.Category(), r)
			res = nil
		}
	}()

	res = det.Detect(h)
	if res != nil {
		res.Confidence = clip01(res.Confidence)
	}
	return res
}

// aggregate combines detector votes. A single vote at or above the high
// threshold confirms; so do two distinct detectors at or above the medium
// threshold. Exactly one medium vote is a suspicion.
func (d *LoopDetector) aggregate(results []Result) *Aggregated {
	contributing := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Confidence >= d.cfg.MediumThreshold {
			contributing = append(contributing, r)
		}
	}

	sort.SliceStable(contributing, func(i, j int) bool {
		if contributing[i].Confidence != contributing[j].Confidence {
			return contributing[i].Confidence > contributing[j].Confidence
		}
		return contributing[i].Category < contributing[j].Category
	})

	agg := &Aggregated{
		Contributing: contributing,
		Severity:     SeverityNone,
	}

	if len(contributing) == 0 {
		return agg
	}

	agg.OverallConfidence = contributing[0].Confidence

	switch {
	case contributing[0].Confidence >= d.cfg.HighThreshold || len(contributing) >= 2:
		agg.Severity = SeverityConfirmed
	default:
		agg.Severity = SeveritySuspected
	}

	return agg
}
