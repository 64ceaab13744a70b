// Package recovery implements the escalation state machine that reacts to
// aggregated loop detections. Each session walks an explicit ladder of
// phases; every confirmed detection produces a directive the dispatcher
// merges into the next prompt, and an exhausted ladder surfaces a terminal
// signal instead of escalating forever.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/loopguard/internal/detect"
	"github.com/codefionn/loopguard/internal/logger"
	"github.com/codefionn/loopguard/internal/render"
	"github.com/codefionn/loopguard/internal/turn"
)

// Phase is the session's position on the escalation ladder.
type Phase int

const (
	// PhaseNormal is the resting state with no active suspicion.
	PhaseNormal Phase = iota

	// PhaseSuspected follows a single uncorroborated detection.
	PhaseSuspected

	// PhaseEscalating means at least one confirmed detection; the level
	// carries how many times the loop has re-confirmed.
	PhaseEscalating

	// PhaseCooldown is the transient phase reported on the turn that
	// completes the clean-turn requirement; the stored state returns to
	// normal immediately after.
	PhaseCooldown
)

// String returns a human-readable phase name
func (p Phase) String() string {
	switch p {
	case PhaseNormal:
		return "normal"
	case PhaseSuspected:
		return "suspected"
	case PhaseEscalating:
		return "escalating"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Config holds the escalation parameters.
type Config struct {
	// MaxLevel caps the escalation ladder. A confirmed detection at the
	// cap produces the terminal intervention signal.
	MaxLevel int `json:"max_level"`

	// CooldownTurns is the number of consecutive clean turns required
	// before the level resets to zero.
	CooldownTurns int `json:"cooldown_turns"`
}

// DefaultConfig returns the escalation defaults.
func DefaultConfig() Config {
	return Config{
		MaxLevel:      3,
		CooldownTurns: 3,
	}
}

func (c Config) normalize() Config {
	if c.MaxLevel <= 0 {
		c.MaxLevel = DefaultConfig().MaxLevel
	}
	if c.CooldownTurns <= 0 {
		c.CooldownTurns = DefaultConfig().CooldownTurns
	}
	return c
}

// Snapshot captures the turn that triggered an escalation, kept for
// auditing and monitoring.
type Snapshot struct {
	Content    string     `json:"content"`
	State      turn.State `json:"state"`
	Timestamp  time.Time  `json:"timestamp"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Directive is handed to the dispatcher on every confirmed detection. The
// rendered text is full-detail and meant for re-injection into the next
// prompt. Not retained by this package beyond logging.
type Directive struct {
	ID        string    `json:"id"`
	Level     int       `json:"level"`
	Rendered  string    `json:"rendered"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome reports the state machine's reaction to one turn.
type Outcome struct {
	Phase     Phase      `json:"phase"`
	Level     int        `json:"level"`
	Directive *Directive `json:"directive,omitempty"`

	// NeedsIntervention is set exactly once per ladder exhaustion: the
	// loop re-confirmed at the maximum level and cannot be self-resolved.
	NeedsIntervention bool `json:"needs_intervention,omitempty"`
}

// SessionAppender is the session collaborator used to push recovery
// notices into conversation history. Appending is best-effort.
type SessionAppender interface {
	AppendNotice(sessionID, text string) error
}

// sessionState is one session's position on the ladder, guarded by its
// own lock.
type sessionState struct {
	mu sync.Mutex

	phase      Phase
	level      int
	cleanTurns int
	snapshot   *Snapshot

	// exhausted marks that the intervention signal was already emitted
	// for the current exhaustion; cleared when the level resets.
	exhausted bool
}

// Recovery owns per-session escalation state. Construct with New and
// inject into the dispatcher alongside the detector.
type Recovery struct {
	cfg      Config
	appender SessionAppender
	log      *logger.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates a Recovery. The appender may be nil, in which case notices
// are not propagated to session history.
func New(cfg Config, appender SessionAppender) *Recovery {
	return &Recovery{
		cfg:      cfg.normalize(),
		appender: appender,
		log:      logger.Global().WithPrefix("recovery"),
		sessions: make(map[string]*sessionState),
	}
}

// Config returns the normalized configuration in effect.
func (r *Recovery) Config() Config {
	return r.cfg
}

// Handle advances the session's state machine with the turn's aggregated
// result. A cancelled context commits no transition and returns nil. The
// turn is only read, never retained.
func (r *Recovery) Handle(ctx context.Context, sessionID string, agg *detect.Aggregated, t *turn.Turn) *Outcome {
	if ctx != nil && ctx.Err() != nil {
		return nil
	}
	if agg == nil {
		agg = &detect.Aggregated{Severity: detect.SeverityNone}
	}

	s := r.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch agg.Severity {
	case detect.SeverityConfirmed:
		return r.confirm(sessionID, s, agg, t)
	case detect.SeveritySuspected:
		return r.suspect(s)
	default:
		return r.clean(sessionID, s)
	}
}

// confirm raises the level, snapshots the turn and produces a directive.
// At the cap, a further confirmation emits the intervention signal once.
func (r *Recovery) confirm(sessionID string, s *sessionState, agg *detect.Aggregated, t *turn.Turn) *Outcome {
	s.cleanTurns = 0

	atCap := s.phase == PhaseEscalating && s.level >= r.cfg.MaxLevel

	s.phase = PhaseEscalating
	if s.level < r.cfg.MaxLevel {
		s.level++
	}
	s.snapshot = snapshotTurn(t)

	rendered := render.Describe(agg, render.DetailFull)
	d := &Directive{
		ID:        uuid.NewString(),
		Level:     s.level,
		Rendered:  rendered,
		CreatedAt: time.Now(),
	}

	out := &Outcome{Phase: s.phase, Level: s.level, Directive: d}

	if atCap && !s.exhausted {
		s.exhausted = true
		out.NeedsIntervention = true
		r.log.Warn("session %s: escalation exhausted at level %d, external intervention required",
			sessionID, s.level)
	} else {
		r.log.Info("session %s: escalated to level %d (directive %s)", sessionID, s.level, d.ID)
	}

	r.appendNotice(sessionID, d)
	return out
}

// suspect records an uncorroborated signal. An already escalating session
// stays on its level; suspicion merely interrupts the cooldown count.
func (r *Recovery) suspect(s *sessionState) *Outcome {
	s.cleanTurns = 0
	if s.phase == PhaseNormal {
		s.phase = PhaseSuspected
	}
	return &Outcome{Phase: s.phase, Level: s.level}
}

// clean counts a turn with no detection. Suspicion clears immediately; an
// escalated session needs the configured run of clean turns before the
// level resets through cooldown.
func (r *Recovery) clean(sessionID string, s *sessionState) *Outcome {
	switch s.phase {
	case PhaseNormal:
		return &Outcome{Phase: PhaseNormal}

	case PhaseSuspected:
		s.phase = PhaseNormal
		s.cleanTurns = 0
		return &Outcome{Phase: PhaseNormal}

	default:
		s.cleanTurns++
		if s.cleanTurns < r.cfg.CooldownTurns {
			return &Outcome{Phase: s.phase, Level: s.level}
		}

		r.log.Info("session %s: cooled down after %d clean turns, level %d -> 0",
			sessionID, s.cleanTurns, s.level)

		s.phase = PhaseNormal
		s.level = 0
		s.cleanTurns = 0
		s.snapshot = nil
		s.exhausted = false
		return &Outcome{Phase: PhaseCooldown}
	}
}

// appendNotice pushes the directive into session history without blocking
// the turn. Failure is logged and otherwise ignored.
func (r *Recovery) appendNotice(sessionID string, d *Directive) {
	if r.appender == nil {
		return
	}

	text := fmt.Sprintf("[loop recovery, level %d] %s", d.Level, d.Rendered)
	go func() {
		if err := r.appender.AppendNotice(sessionID, text); err != nil {
			r.log.Error("session %s: failed to append recovery notice: %v", sessionID, err)
		}
	}()
}

// Level returns the session's current escalation level. Zero for unknown
// sessions.
func (r *Recovery) Level(sessionID string) int {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// PhaseOf returns the session's current phase. PhaseNormal for unknown
// sessions.
func (r *Recovery) PhaseOf(sessionID string) Phase {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return PhaseNormal
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastSnapshot returns a copy of the turn captured at the most recent
// escalation, or nil.
func (r *Recovery) LastSnapshot(sessionID string) *Snapshot {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	cp := *s.snapshot
	return &cp
}

// Reset returns the session to the resting state without removing it.
func (r *Recovery) Reset(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.phase = PhaseNormal
	s.level = 0
	s.cleanTurns = 0
	s.snapshot = nil
	s.exhausted = false
	s.mu.Unlock()
}

// CloseSession discards the session's escalation state.
func (r *Recovery) CloseSession(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// SessionCount returns the number of sessions with live state.
func (r *Recovery) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EscalatedCount returns the number of sessions at level one or higher.
func (r *Recovery) EscalatedCount() int {
	r.mu.Lock()
	states := make([]*sessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		states = append(states, s)
	}
	r.mu.Unlock()

	n := 0
	for _, s := range states {
		s.mu.Lock()
		if s.level > 0 {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (r *Recovery) session(sessionID string) *sessionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		s = &sessionState{}
		r.sessions[sessionID] = s
	}
	return s
}

func snapshotTurn(t *turn.Turn) *Snapshot {
	if t == nil {
		return &Snapshot{CapturedAt: time.Now()}
	}
	return &Snapshot{
		Content:    t.Content,
		State:      t.State,
		Timestamp:  t.Timestamp,
		CapturedAt: time.Now(),
	}
}
