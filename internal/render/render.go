// Package render turns aggregated detection results into text at three
// levels of detail: a brief tag for log lines and status bars, a summary
// for operators, and a full description suitable for injecting into a
// conversation as a corrective system notice.
package render

import (
	"fmt"
	"strings"

	"github.com/codefionn/loopguard/internal/detect"
)

// Detail selects how much of the detection to render.
type Detail int

const (
	// DetailBrief renders a tag of at most 50 characters.
	DetailBrief Detail = iota

	// DetailSummary renders a one-paragraph description with counts.
	DetailSummary

	// DetailFull renders the summary plus evidence and an explicit
	// instruction not to repeat the detected pattern.
	DetailFull
)

// briefLimit is the hard length bound for DetailBrief output.
const briefLimit = 50

// categoryLabel maps detection categories to short human labels.
var categoryLabel = map[detect.Category]string{
	detect.CategoryToolCallRepetition: "repeated tool call",
	detect.CategoryOutputSimilarity:   "near-identical outputs",
	detect.CategoryStateOscillation:   "state oscillation",
	detect.CategoryErrorCycle:         "recurring error",
	detect.CategoryTokenPattern:       "repeating token pattern",
}

// Describe renders the aggregated result at the requested detail level.
// Pure function of its inputs; identical inputs render identically.
func Describe(agg *detect.Aggregated, detail Detail) string {
	if agg == nil || agg.Severity == detect.SeverityNone || len(agg.Contributing) == 0 {
		return describeClean(detail)
	}

	switch detail {
	case DetailBrief:
		return brief(agg)
	case DetailSummary:
		return summary(agg)
	default:
		return full(agg)
	}
}

func describeClean(detail Detail) string {
	if detail == DetailBrief {
		return "no loop detected"
	}
	return "No loop detected in the recent conversation window."
}

func brief(agg *detect.Aggregated) string {
	top := agg.Top()
	label, ok := categoryLabel[top.Category]
	if !ok {
		label = string(top.Category)
	}

	s := fmt.Sprintf("%s: %s (%.0f%%)", agg.Severity, label, top.Confidence*100)
	if len(s) > briefLimit {
		s = s[:briefLimit-3] + "..."
	}
	return s
}

func summary(agg *detect.Aggregated) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Loop %s with confidence %.2f.", agg.Severity, agg.OverallConfidence)

	for _, r := range agg.Contributing {
		label, ok := categoryLabel[r.Category]
		if !ok {
			label = string(r.Category)
		}
		fmt.Fprintf(&b, " %s", capitalize(label))
		if r.Evidence.Count > 1 {
			fmt.Fprintf(&b, " seen %d times", r.Evidence.Count)
		}
		if r.Window > 0 {
			fmt.Fprintf(&b, " within the last %d observations", r.Window)
		}
		b.WriteString(".")
	}
	return b.String()
}

func full(agg *detect.Aggregated) string {
	var b strings.Builder
	b.WriteString(summary(agg))

	for _, r := range agg.Contributing {
		if r.Evidence.Pattern != "" {
			fmt.Fprintf(&b, "\nPattern: %s", r.Evidence.Pattern)
		}
		if len(r.Evidence.Matched) > 0 {
			fmt.Fprintf(&b, "\nMatched: %s", strings.Join(r.Evidence.Matched, "; "))
		}
	}

	b.WriteString("\nDo not repeat the pattern described above. ")
	b.WriteString("Take a different approach: change the tool, the arguments, or the strategy, ")
	b.WriteString("or state explicitly why no progress is possible.")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
