// Package dispatch wires the loop subsystem together: it feeds each turn
// through detection and recovery, keeps the session store in sync, and
// exposes the streaming hook for mid-generation token pattern checks.
package dispatch

import (
	"context"
	"fmt"

	"github.com/codefionn/loopguard/internal/config"
	"github.com/codefionn/loopguard/internal/detect"
	"github.com/codefionn/loopguard/internal/logger"
	"github.com/codefionn/loopguard/internal/recovery"
	"github.com/codefionn/loopguard/internal/session"
	"github.com/codefionn/loopguard/internal/turn"
)

// Pipeline is the turn processing entry point the host dispatcher calls.
// One instance serves all sessions.
type Pipeline struct {
	detector *detect.LoopDetector
	recovery *recovery.Recovery
	sessions *session.Store
	tok      *turn.Tokenizer
	log      *logger.Logger
}

// New builds the pipeline from configuration. The store is shared with the
// host so recovery notices land in the same history the host reads.
func New(cfg *config.Config, store *session.Store) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if store == nil {
		store = session.NewStore()
	}

	return &Pipeline{
		detector: detect.New(cfg.Detect),
		recovery: recovery.New(cfg.Recovery, store),
		sessions: store,
		tok:      turn.NewTokenizer(cfg.TokenEncoding),
		log:      logger.Global().WithPrefix("dispatch"),
	}
}

// ProcessTurn runs one completed turn through detection and recovery. The
// aggregated result is always returned for a valid turn; the outcome is
// nil only when the context was cancelled before any state was committed.
func (p *Pipeline) ProcessTurn(ctx context.Context, sessionID string, t *turn.Turn) (*detect.Aggregated, *recovery.Outcome, error) {
	if t == nil {
		return nil, nil, fmt.Errorf("nil turn for session %s", sessionID)
	}
	if ctx != nil && ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	// The turn record belongs to the host; tokenization fills a local copy.
	tn := *t
	if len(tn.Tokens) == 0 && tn.Content != "" {
		tn.Tokens = p.tok.Tokens(tn.Content)
	}
	if tn.TokensConsumed == 0 {
		tn.TokensConsumed = len(tn.Tokens)
	}

	s := p.sessions.Open(sessionID)
	s.AddMessage(&session.Message{
		Role:      string(tn.Role),
		Content:   tn.Content,
		Timestamp: tn.Timestamp,
	})

	agg := p.detector.Evaluate(ctx, sessionID, &tn)
	out := p.recovery.Handle(ctx, sessionID, agg, &tn)

	// The turn's generation is over; the next stream starts clean.
	p.detector.ResetTokens(sessionID)
	return agg, out, nil
}

// StreamChunk feeds a chunk of an in-progress generation to the token
// pattern detector. Returns a result when a repeating pattern is found
// mid-turn, nil otherwise.
func (p *Pipeline) StreamChunk(sessionID, text string) *detect.Result {
	if text == "" {
		return nil
	}
	return p.detector.FeedTokens(sessionID, p.tok.Tokens(text))
}

// EndGeneration marks a generation boundary, clearing the session's
// streamed token window.
func (p *Pipeline) EndGeneration(sessionID string) {
	p.detector.ResetTokens(sessionID)
}

// Level returns the session's current escalation level for monitoring.
func (p *Pipeline) Level(sessionID string) int {
	return p.recovery.Level(sessionID)
}

// Session returns the underlying session, creating it if needed.
func (p *Pipeline) Session(sessionID string) *session.Session {
	return p.sessions.Open(sessionID)
}

// CloseSession tears down all per-session state across the subsystem.
func (p *Pipeline) CloseSession(sessionID string) {
	p.detector.CloseSession(sessionID)
	p.recovery.CloseSession(sessionID)
	p.sessions.Close(sessionID)
	p.log.Debug("session %s closed", sessionID)
}

// Stats reports live state for monitoring dashboards.
type Stats struct {
	Sessions          int  `json:"sessions"`
	EscalatedSessions int  `json:"escalated_sessions"`
	ApproximateTokens bool `json:"approximate_tokens"`
}

// Stats returns a snapshot of pipeline-wide counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sessions:          p.sessions.Count(),
		EscalatedSessions: p.recovery.EscalatedCount(),
		ApproximateTokens: p.tok.Approximate(),
	}
}
