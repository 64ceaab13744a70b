package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/loopguard/internal/turn"
)

func searchTurn() *turn.Turn {
	return &turn.Turn{
		Role:      turn.RoleAssistant,
		State:     turn.StateActing,
		ToolCall:  turn.NewToolCall("search", `{"q":"x"}`),
		Timestamp: time.Now(),
	}
}

func TestEvaluate_ToolRepetitionConfirms(t *testing.T) {
	d := New(Config{})

	var agg *Aggregated
	for i := 0; i < 4; i++ {
		agg = d.Evaluate(context.Background(), "s1", searchTurn())
	}

	require.NotNil(t, agg)
	assert.Equal(t, SeverityConfirmed, agg.Severity)
	require.NotEmpty(t, agg.Contributing)
	assert.Equal(t, CategoryToolCallRepetition, agg.Contributing[0].Category)
}

func TestEvaluate_CleanTurnsYieldNone(t *testing.T) {
	d := New(Config{})

	agg := d.Evaluate(context.Background(), "s1", &turn.Turn{
		Role:    turn.RoleAssistant,
		Content: "A perfectly ordinary reply with nothing repeated.",
		State:   turn.StateSpeaking,
	})

	assert.Equal(t, SeverityNone, agg.Severity)
	assert.Empty(t, agg.Contributing)
	assert.Zero(t, agg.OverallConfidence)
}

func TestEvaluate_ConfidenceBounds(t *testing.T) {
	d := New(Config{})

	for i := 0; i < 12; i++ {
		agg := d.Evaluate(context.Background(), "s1", searchTurn())
		assert.GreaterOrEqual(t, agg.OverallConfidence, 0.0)
		assert.LessOrEqual(t, agg.OverallConfidence, 1.0)
		for _, r := range agg.Contributing {
			assert.GreaterOrEqual(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	turns := []*turn.Turn{
		{Role: turn.RoleAssistant, Content: "same answer again", State: turn.StateThinking},
		{Role: turn.RoleAssistant, Content: "same answer again", State: turn.StateActing},
		{Role: turn.RoleAssistant, Content: "same answer again", State: turn.StateThinking,
			ToolCall: turn.NewToolCall("grep", `{"pattern":"x"}`)},
		{Role: turn.RoleAssistant, Content: "same answer again", State: turn.StateActing,
			ToolCall: turn.NewToolCall("grep", `{"pattern":"x"}`)},
	}

	run := func() []*Aggregated {
		d := New(Config{})
		out := make([]*Aggregated, 0, len(turns))
		for _, tn := range turns {
			copied := *tn
			out = append(out, d.Evaluate(context.Background(), "s1", &copied))
		}
		return out
	}

	a, b := run(), run()
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Severity, b[i].Severity, "turn %d severity", i)
		assert.Equal(t, a[i].OverallConfidence, b[i].OverallConfidence, "turn %d confidence", i)
		assert.Equal(t, a[i].Contributing, b[i].Contributing, "turn %d contributing", i)
	}
}

func TestEvaluate_SessionsAreIsolated(t *testing.T) {
	d := New(Config{})

	for i := 0; i < 4; i++ {
		d.Evaluate(context.Background(), "looping", searchTurn())
	}

	agg := d.Evaluate(context.Background(), "fresh", searchTurn())
	assert.Equal(t, SeverityNone, agg.Severity, "history must not leak across sessions")
	assert.Equal(t, 2, d.SessionCount())
}

func TestEvaluate_CancelledContextCommitsNothing(t *testing.T) {
	d := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 4; i++ {
		agg := d.Evaluate(ctx, "s1", searchTurn())
		assert.Equal(t, SeverityNone, agg.Severity)
	}

	// No history was recorded, so a live turn starts from scratch.
	agg := d.Evaluate(context.Background(), "s1", searchTurn())
	assert.Equal(t, SeverityNone, agg.Severity)
}

func TestEvaluate_NilTurn(t *testing.T) {
	d := New(Config{})
	agg := d.Evaluate(context.Background(), "s1", nil)
	require.NotNil(t, agg)
	assert.Equal(t, SeverityNone, agg.Severity)
}

func TestCloseSession_DiscardsHistory(t *testing.T) {
	d := New(Config{})

	for i := 0; i < 4; i++ {
		d.Evaluate(context.Background(), "s1", searchTurn())
	}
	d.CloseSession("s1")
	assert.Zero(t, d.SessionCount())

	agg := d.Evaluate(context.Background(), "s1", searchTurn())
	assert.Equal(t, SeverityNone, agg.Severity)
}

// panickyDetector simulates a broken detector implementation.
type panickyDetector struct{}

func (panickyDetector) Category() Category { return Category("panicky") }

func (panickyDetector) Detect(h *History) *Result { panic("broken detector") }

func TestEvaluate_PanickingDetectorIsExcluded(t *testing.T) {
	d := New(Config{})
	d.detectors = append(d.detectors, panickyDetector{})

	var agg *Aggregated
	require.NotPanics(t, func() {
		for i := 0; i < 4; i++ {
			agg = d.Evaluate(context.Background(), "s1", searchTurn())
		}
	})

	// The rest of the ensemble still votes.
	assert.Equal(t, SeverityConfirmed, agg.Severity)
	for _, r := range agg.Contributing {
		assert.NotEqual(t, Category("panicky"), r.Category)
	}
}

func TestAggregate_Rules(t *testing.T) {
	d := New(Config{})

	cases := []struct {
		name    string
		results []Result
		want    Severity
	}{
		{"no votes", nil, SeverityNone},
		{"below medium", []Result{{Category: CategoryTokenPattern, Confidence: 0.3}}, SeverityNone},
		{"single medium", []Result{{Category: CategoryTokenPattern, Confidence: 0.6}}, SeveritySuspected},
		{"single high", []Result{{Category: CategoryOutputSimilarity, Confidence: 0.9}}, SeverityConfirmed},
		{"two medium corroborate", []Result{
			{Category: CategoryTokenPattern, Confidence: 0.55},
			{Category: CategoryStateOscillation, Confidence: 0.6},
		}, SeverityConfirmed},
		{"medium plus weak", []Result{
			{Category: CategoryTokenPattern, Confidence: 0.55},
			{Category: CategoryStateOscillation, Confidence: 0.2},
		}, SeveritySuspected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := d.aggregate(tc.results)
			assert.Equal(t, tc.want, agg.Severity)
		})
	}
}

func TestAggregate_ContributingSortedByConfidence(t *testing.T) {
	d := New(Config{})

	agg := d.aggregate([]Result{
		{Category: CategoryTokenPattern, Confidence: 0.55},
		{Category: CategoryOutputSimilarity, Confidence: 0.95},
		{Category: CategoryStateOscillation, Confidence: 0.7},
	})

	require.Len(t, agg.Contributing, 3)
	assert.Equal(t, CategoryOutputSimilarity, agg.Contributing[0].Category)
	assert.Equal(t, CategoryStateOscillation, agg.Contributing[1].Category)
	assert.Equal(t, CategoryTokenPattern, agg.Contributing[2].Category)
	assert.Equal(t, 0.95, agg.OverallConfidence)
}

func TestFeedTokens_MidTurnDetection(t *testing.T) {
	d := New(Config{})
	g := d.cfg.TokenPattern.NGram

	pattern := []int{10, 20, 30, 40}
	require.Equal(t, g, len(pattern))

	var fired *Result
	for i := 0; i < d.cfg.TokenPattern.MaxRepeats+2 && fired == nil; i++ {
		fired = d.FeedTokens("s1", pattern)
	}

	require.NotNil(t, fired, "expected mid-turn token pattern to fire")
	assert.Equal(t, CategoryTokenPattern, fired.Category)
	assert.GreaterOrEqual(t, fired.Confidence, d.cfg.MediumThreshold)
}

func TestResetTokens_ClearsStreamOnly(t *testing.T) {
	d := New(Config{})

	for i := 0; i < 4; i++ {
		d.Evaluate(context.Background(), "s1", searchTurn())
	}
	d.ResetTokens("s1")

	// Tool call history survives a generation boundary.
	agg := d.Evaluate(context.Background(), "s1", searchTurn())
	assert.Equal(t, SeverityConfirmed, agg.Severity)
}
