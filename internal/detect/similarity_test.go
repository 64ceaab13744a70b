package detect

import (
	"fmt"
	"testing"

	"github.com/codefionn/loopguard/internal/turn"
)

func outputHistory(cfg Config, outputs ...string) *History {
	h := newHistory(cfg)
	for _, out := range outputs {
		h.Observe(&turn.Turn{Role: turn.RoleAssistant, Content: out}, cfg.Oscillation.MeaningfulTokens)
	}
	return h
}

func TestOutputSimilarity_IdenticalOutputs(t *testing.T) {
	cfg := DefaultConfig()
	det := NewOutputSimilarityDetector(cfg.Similarity)

	text := "I will now search the codebase for the relevant function."
	h := outputHistory(cfg, text, text)

	res := det.Detect(h)
	if res == nil {
		t.Fatalf("Expected identical outputs to flag")
	}
	if res.Confidence != 1.0 {
		t.Errorf("Expected similarity 1.0 for identical outputs, got %.4f", res.Confidence)
	}
}

func TestOutputSimilarity_DisjointOutputs(t *testing.T) {
	cfg := DefaultConfig()
	det := NewOutputSimilarityDetector(cfg.Similarity)

	h := outputHistory(cfg,
		"alpha beta gamma delta epsilon zeta",
		"one two three four five six",
	)

	if res := det.Detect(h); res != nil {
		t.Errorf("Expected no flag for disjoint token sets, got confidence %.4f", res.Confidence)
	}
}

func TestOutputSimilarity_SingleOutputNoSignal(t *testing.T) {
	cfg := DefaultConfig()
	det := NewOutputSimilarityDetector(cfg.Similarity)

	h := outputHistory(cfg, "just one output so far")
	if res := det.Detect(h); res != nil {
		t.Errorf("Expected no signal with a single output")
	}
}

func TestOutputSimilarity_NearDuplicateAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	det := NewOutputSimilarityDetector(cfg.Similarity)

	base := "let me try the same approach again with the file reader and parse the results"
	h := outputHistory(cfg,
		base,
		"something completely different happened here today in the garden",
		base+" once more",
	)

	res := det.Detect(h)
	if res == nil {
		t.Fatalf("Expected near-duplicate outputs to flag")
	}
	if res.Confidence < cfg.Similarity.Threshold {
		t.Errorf("Expected confidence >= threshold %.2f, got %.4f", cfg.Similarity.Threshold, res.Confidence)
	}
	if res.Confidence > 1.0 {
		t.Errorf("Confidence exceeds 1.0: %.4f", res.Confidence)
	}
}

func TestJaccardSymmetric(t *testing.T) {
	a := shingles("the quick brown fox jumps over the lazy dog", 3)
	b := shingles("the quick brown fox sleeps under the lazy dog", 3)

	if jaccard(a, b) != jaccard(b, a) {
		t.Errorf("Expected symmetric similarity")
	}
}

func TestJaccardBounds(t *testing.T) {
	texts := []string{
		"", "one", "one two", "one two three four",
		"completely different words here",
		"one two three four", // duplicate
	}

	for i, x := range texts {
		for j, y := range texts {
			sim := jaccard(shingles(x, 3), shingles(y, 3))
			if sim < 0 || sim > 1 {
				t.Errorf("jaccard(%d,%d) out of bounds: %v", i, j, sim)
			}
		}
	}
}

func TestShinglesShortText(t *testing.T) {
	// Shorter than the shingle size falls back to single tokens.
	set := shingles("hi there", 3)
	if len(set) != 2 {
		t.Errorf("Expected 2 single-token shingles, got %d", len(set))
	}
}

func TestOutputSimilarity_WindowEviction(t *testing.T) {
	cfg := DefaultConfig()
	det := NewOutputSimilarityDetector(cfg.Similarity)

	h := newHistory(cfg)
	repeated := "the exact same sentence produced twice in a row somehow"
	h.Observe(&turn.Turn{Role: turn.RoleAssistant, Content: repeated}, 0)

	// Push the duplicate out of the window with distinct outputs.
	for i := 0; i < cfg.Similarity.Window+1; i++ {
		h.Observe(&turn.Turn{
			Role:    turn.RoleAssistant,
			Content: fmt.Sprintf("unique filler output number %d with nothing shared alpha%d beta%d", i, i, i),
		}, 0)
	}

	if res := det.Detect(h); res != nil {
		t.Errorf("Expected evicted output not to flag, got %+v", res)
	}
}
