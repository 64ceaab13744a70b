package detect

import (
	"fmt"
	"strings"
)

// OutputSimilarityDetector flags near-duplicate output text across turns
// using Jaccard similarity over token shingles. The measure is
// deterministic and symmetric; confidence is the measured similarity of the
// current output, clipped to [0, 1].
type OutputSimilarityDetector struct {
	cfg SimilarityConfig
}

// NewOutputSimilarityDetector creates the detector.
func NewOutputSimilarityDetector(cfg SimilarityConfig) *OutputSimilarityDetector {
	return &OutputSimilarityDetector{cfg: cfg}
}

// Category returns the loop category this detector reports.
func (d *OutputSimilarityDetector) Category() Category {
	return CategoryOutputSimilarity
}

// Detect compares outputs pairwise inside the window. A turn participates
// when it is similar (at or above the threshold) to any other output in the
// window; the detector fires when at least two turns participate.
func (d *OutputSimilarityDetector) Detect(h *History) *Result {
	n := len(h.outputs)
	if n < 2 {
		return nil
	}

	sets := make([]map[string]struct{}, n)
	for i, out := range h.outputs {
		sets[i] = shingles(out, d.cfg.ShingleSize)
	}

	participating := make([]bool, n)
	var lastMax float64
	var matchedWith int = -1

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := jaccard(sets[i], sets[j])
			if sim >= d.cfg.Threshold {
				participating[i] = true
				participating[j] = true
			}
			if j == n-1 && sim > lastMax {
				lastMax = sim
				matchedWith = i
			}
		}
	}

	hits := 0
	for _, p := range participating {
		if p {
			hits++
		}
	}

	if hits < 2 || lastMax < d.cfg.Threshold {
		return nil
	}

	return &Result{
		Category:   CategoryOutputSimilarity,
		Confidence: clip01(lastMax),
		Window:     n,
		Evidence: Evidence{
			Pattern: fmt.Sprintf("output resembles turn %d of window (similarity %.2f)", matchedWith+1, lastMax),
			Count:   hits,
		},
	}
}

// shingles builds the token n-gram set for text. Texts shorter than the
// shingle size fall back to single-token shingles so short outputs still
// compare.
func shingles(text string, size int) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{})

	if len(fields) < size {
		for _, f := range fields {
			set[f] = struct{}{}
		}
		return set
	}

	for i := 0; i+size <= len(fields); i++ {
		set[strings.Join(fields[i:i+size], " ")] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets score zero.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}

	intersection := 0
	for s := range smaller {
		if _, ok := larger[s]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
