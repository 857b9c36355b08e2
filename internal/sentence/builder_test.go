package sentence

import (
	"strings"
	"testing"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
)

func testBuilder() *Builder {
	return NewBuilder(config.Default().Sentence)
}

func seq(labels ...string) *envelope.SymbolSequence {
	s := &envelope.SymbolSequence{}
	for _, l := range labels {
		s.Symbols = append(s.Symbols, envelope.Symbol{ID: l, Label: l})
	}
	return s
}

func TestBuildEmptySequence(t *testing.T) {
	r := testBuilder().Build(&envelope.SymbolSequence{}, nil)
	if r.Terse != "" || r.Standard != "" || r.Expanded != "" {
		t.Fatalf("expected empty renderings, got %+v", r)
	}
	if r.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %v", r.Confidence)
	}

	r = testBuilder().Build(nil, nil)
	if r.Confidence != 0 {
		t.Fatalf("expected confidence 0 for nil sequence, got %v", r.Confidence)
	}
}

func TestBuildTerseContainsAllTerms(t *testing.T) {
	s := seq("I", "want", "water")
	s.Phrases = []string{"please"}
	r := testBuilder().Build(s, nil)

	for _, term := range []string{"want", "water", "please"} {
		if !strings.Contains(strings.ToLower(r.Terse), term) {
			t.Fatalf("terse rendering missing %q: %q", term, r.Terse)
		}
	}
	if r.Confidence <= 0.7 {
		t.Fatalf("expected confidence above base, got %v", r.Confidence)
	}
	if r.TokenCount != 3 || r.PhraseCount != 1 {
		t.Fatalf("unexpected counts: %+v", r)
	}
}

func TestBuildCapitalization(t *testing.T) {
	r := testBuilder().Build(seq("water"), nil)
	for _, rendering := range []string{r.Terse, r.Standard, r.Expanded} {
		if rendering == "" {
			t.Fatal("expected non-empty rendering")
		}
		first := rune(rendering[0])
		if first < 'A' || first > 'Z' {
			t.Fatalf("expected capitalized rendering, got %q", rendering)
		}
	}
}

func TestBuildQuestionTerminal(t *testing.T) {
	s := &envelope.SymbolSequence{Symbols: []envelope.Symbol{
		{ID: "where", Label: "where", Category: envelope.CategoryQuestions},
		{ID: "bathroom", Label: "bathroom", Category: envelope.CategoryPlaces},
	}}
	r := testBuilder().Build(s, nil)
	if !strings.HasSuffix(r.Standard, "?") {
		t.Fatalf("expected question terminal, got %q", r.Standard)
	}
	if !strings.HasSuffix(r.Expanded, "?") {
		t.Fatalf("expected question terminal, got %q", r.Expanded)
	}
	if !strings.Contains(r.Standard, "the bathroom") {
		t.Fatalf("expected article before place token, got %q", r.Standard)
	}
}

func TestBuildStandardTerminalPeriod(t *testing.T) {
	r := testBuilder().Build(seq("I", "want", "water"), nil)
	if !strings.HasSuffix(r.Standard, ".") {
		t.Fatalf("expected terminal period, got %q", r.Standard)
	}
}

func TestBuildExpandedUrgentMood(t *testing.T) {
	r := testBuilder().Build(seq("help", "me"), &Context{Mood: "urgent"})
	if !strings.HasPrefix(r.Expanded, "Please ") {
		t.Fatalf("expected politeness marker, got %q", r.Expanded)
	}
	if !r.ContextApplied {
		t.Fatal("expected context applied flag")
	}
}

func TestBuildExpandedConjunction(t *testing.T) {
	r := testBuilder().Build(seq("I", "want", "water"), nil)
	if !strings.Contains(r.Expanded, "and water") {
		t.Fatalf("expected conjunction before final token, got %q", r.Expanded)
	}
}

func TestConfidenceMonotonicInTokenCount(t *testing.T) {
	b := testBuilder()
	prev := -1.0
	labels := []string{}
	for i := 0; i < 30; i++ {
		labels = append(labels, "word")
		r := b.Build(seq(labels...), nil)
		if r.Confidence < prev {
			t.Fatalf("confidence decreased at %d tokens: %v < %v", i+1, r.Confidence, prev)
		}
		prev = r.Confidence
	}
	if prev > 1 {
		t.Fatalf("confidence exceeded 1: %v", prev)
	}
}

func TestConfidenceBonuses(t *testing.T) {
	b := testBuilder()
	plain := b.Build(seq("water"), nil)

	withPhrase := &envelope.SymbolSequence{
		Symbols: []envelope.Symbol{{ID: "water", Label: "water"}},
		Phrases: []string{"now"},
	}
	phrased := b.Build(withPhrase, nil)
	if phrased.Confidence <= plain.Confidence {
		t.Fatalf("expected phrase bonus: %v vs %v", phrased.Confidence, plain.Confidence)
	}

	contextual := b.Build(seq("water"), &Context{Mood: "calm"})
	if contextual.Confidence <= plain.Confidence {
		t.Fatalf("expected context bonus: %v vs %v", contextual.Confidence, plain.Confidence)
	}
}

func TestCategoriesTouched(t *testing.T) {
	s := &envelope.SymbolSequence{Symbols: []envelope.Symbol{
		{ID: "i", Label: "I", Category: envelope.CategoryPeople},
		{ID: "want", Label: "want", Category: envelope.CategoryActions},
		{ID: "water", Label: "water", Category: envelope.CategoryNeeds},
	}}
	r := testBuilder().Build(s, nil)
	if len(r.CategoriesTouched) != 3 {
		t.Fatalf("expected 3 categories, got %v", r.CategoriesTouched)
	}
}
