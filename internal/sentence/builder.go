package sentence

import (
	"sort"
	"strings"
	"unicode"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
)

// Context carries conversational hints supplied alongside a symbol sequence.
type Context struct {
	Mood  string // e.g. "urgent", "calm"
	Topic string
}

// Result holds the three renderings of a symbol sequence plus the confidence
// model output.
type Result struct {
	Terse             string
	Standard          string
	Expanded          string
	Confidence        float64
	TokenCount        int
	PhraseCount       int
	CategoriesTouched []string
	ContextApplied    bool
}

// Builder turns ordered symbol sequences into natural-language renderings.
// All weights come from configuration; the only hard guarantees are that an
// empty sequence yields empty renderings with confidence 0, and that
// confidence never decreases as tokens are added.
type Builder struct {
	cfg config.SentenceConfig
}

func NewBuilder(cfg config.SentenceConfig) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) Build(seq *envelope.SymbolSequence, ctx *Context) Result {
	if seq.Empty() {
		return Result{}
	}

	labels := make([]string, 0, len(seq.Symbols))
	categories := make(map[string]bool)
	question := false
	for _, sym := range seq.Symbols {
		label := strings.TrimSpace(sym.Label)
		if label == "" {
			continue
		}
		labels = append(labels, label)
		if sym.Category != "" {
			categories[sym.Category] = true
		}
		if sym.Category == envelope.CategoryQuestions {
			question = true
		}
	}
	phrases := make([]string, 0, len(seq.Phrases))
	for _, p := range seq.Phrases {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			phrases = append(phrases, trimmed)
		}
	}

	result := Result{
		TokenCount:        len(labels),
		PhraseCount:       len(phrases),
		CategoriesTouched: sortedKeys(categories),
		ContextApplied:    ctx != nil,
	}
	if len(labels) == 0 && len(phrases) == 0 {
		return Result{}
	}

	result.Terse = capitalize(strings.Join(append(append([]string{}, labels...), phrases...), " "))
	result.Standard = capitalize(b.standard(seq.Symbols, labels, phrases, question))
	result.Expanded = capitalize(b.expanded(seq.Symbols, labels, phrases, question, ctx))
	result.Confidence = b.confidence(result)
	return result
}

// standard joins tokens with connective articles and closes with terminal
// punctuation; a question-category symbol anywhere turns the terminal into "?".
func (b *Builder) standard(symbols []envelope.Symbol, labels, phrases []string, question bool) string {
	words := withArticles(symbols, labels)
	if len(phrases) > 0 {
		words = append(words, phrases...)
	}
	out := strings.Join(words, " ")
	if question {
		return out + "?"
	}
	return out + "."
}

// expanded additionally joins tokens with conjunctions and, under an urgent
// mood, leads with a politeness marker.
func (b *Builder) expanded(symbols []envelope.Symbol, labels, phrases []string, question bool, ctx *Context) string {
	words := withArticles(symbols, labels)
	joined := strings.Join(joinWithConjunctions(words), " ")
	if len(phrases) > 0 {
		if joined != "" {
			joined += ", "
		}
		joined += strings.Join(phrases, ", ")
	}
	if ctx != nil && ctx.Mood == "urgent" {
		joined = "please " + joined
	}
	if question {
		return joined + "?"
	}
	return joined + "."
}

// withArticles inserts "the" before place and thing tokens that do not
// already start with an article.
func withArticles(symbols []envelope.Symbol, labels []string) []string {
	var words []string
	li := 0
	for _, sym := range symbols {
		if strings.TrimSpace(sym.Label) == "" {
			continue
		}
		label := labels[li]
		li++
		// The article binds to its noun as one token so conjunction
		// insertion never splits them.
		if needsArticle(sym.Category) && !hasArticle(label) {
			label = "the " + label
		}
		words = append(words, label)
	}
	return words
}

func needsArticle(category string) bool {
	return category == envelope.CategoryThings || category == envelope.CategoryPlaces
}

func hasArticle(label string) bool {
	lower := strings.ToLower(label)
	return strings.HasPrefix(lower, "the ") || strings.HasPrefix(lower, "a ") || strings.HasPrefix(lower, "an ")
}

// joinWithConjunctions closes a token list with "and" before the final
// token. Two tokens or fewer read fine without one.
func joinWithConjunctions(words []string) []string {
	if len(words) < 3 {
		return words
	}
	out := make([]string, 0, len(words)+1)
	out = append(out, words[:len(words)-1]...)
	out = append(out, "and", words[len(words)-1])
	return out
}

// confidence starts from the configured base and grows with token count,
// phrase presence and conversational context, capped at 1. Holding phrases
// and context fixed, it is non-decreasing in token count.
func (b *Builder) confidence(r Result) float64 {
	c := b.cfg.BaseConfidence + b.cfg.TokenWeight*float64(r.TokenCount)
	if r.PhraseCount > 0 {
		c += b.cfg.PhraseBonus
	}
	if r.ContextApplied {
		c += b.cfg.ContextBonus
	}
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

func capitalize(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+len(string(r)):]
		}
		if !unicode.IsSpace(r) {
			return s
		}
	}
	return s
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
