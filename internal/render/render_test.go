package render

import (
	"strings"
	"testing"

	"github.com/codefionn/loopguard/internal/detect"
)

func confirmedToolLoop() *detect.Aggregated {
	return &detect.Aggregated{
		OverallConfidence: 0.92,
		Severity:          detect.SeverityConfirmed,
		Contributing: []detect.Result{
			{
				Category:   detect.CategoryToolCallRepetition,
				Confidence: 0.92,
				Window:     10,
				Evidence: detect.Evidence{
					Pattern: `search({"q":"x"})`,
					Count:   4,
				},
			},
		},
	}
}

func TestDescribe_BriefLengthBound(t *testing.T) {
	aggs := []*detect.Aggregated{
		nil,
		{Severity: detect.SeverityNone},
		confirmedToolLoop(),
	}
	for _, cat := range []detect.Category{
		detect.CategoryToolCallRepetition,
		detect.CategoryOutputSimilarity,
		detect.CategoryStateOscillation,
		detect.CategoryErrorCycle,
		detect.CategoryTokenPattern,
		detect.Category("some_future_category_with_a_rather_long_name"),
	} {
		aggs = append(aggs, &detect.Aggregated{
			OverallConfidence: 1.0,
			Severity:          detect.SeverityConfirmed,
			Contributing:      []detect.Result{{Category: cat, Confidence: 1.0}},
		})
	}

	for _, agg := range aggs {
		got := Describe(agg, DetailBrief)
		if got == "" {
			t.Errorf("brief rendering must never be empty (agg=%+v)", agg)
		}
		if len(got) > 50 {
			t.Errorf("brief rendering exceeds 50 chars: %q (%d)", got, len(got))
		}
	}
}

func TestDescribe_NoLoop(t *testing.T) {
	if got := Describe(nil, DetailBrief); got != "no loop detected" {
		t.Errorf("nil aggregate brief = %q", got)
	}
	got := Describe(&detect.Aggregated{Severity: detect.SeverityNone}, DetailFull)
	if !strings.Contains(got, "No loop detected") {
		t.Errorf("clean full rendering = %q", got)
	}
}

func TestDescribe_SummaryMentionsCountAndWindow(t *testing.T) {
	got := Describe(confirmedToolLoop(), DetailSummary)
	if !strings.Contains(got, "confirmed") {
		t.Errorf("summary missing severity: %q", got)
	}
	if !strings.Contains(got, "Repeated tool call") {
		t.Errorf("summary missing category label: %q", got)
	}
	if !strings.Contains(got, "4 times") {
		t.Errorf("summary missing repeat count: %q", got)
	}
	if !strings.Contains(got, "10 observations") {
		t.Errorf("summary missing window: %q", got)
	}
}

func TestDescribe_FullHasInstructionAndEvidence(t *testing.T) {
	got := Describe(confirmedToolLoop(), DetailFull)
	if !strings.Contains(got, "Do not repeat") {
		t.Errorf("full rendering missing explicit instruction: %q", got)
	}
	if !strings.Contains(got, `search({"q":"x"})`) {
		t.Errorf("full rendering missing evidence pattern: %q", got)
	}
}

func TestDescribe_Deterministic(t *testing.T) {
	agg := confirmedToolLoop()
	for _, d := range []Detail{DetailBrief, DetailSummary, DetailFull} {
		a, b := Describe(agg, d), Describe(agg, d)
		if a != b {
			t.Errorf("detail %d not deterministic: %q vs %q", d, a, b)
		}
	}
}
