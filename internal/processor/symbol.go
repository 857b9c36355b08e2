package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/sentence"
)

// Annotation keys the symbol processor understands. Everything else in the
// annotation bag passes through uninspected.
const (
	annotationComplexity = "complexity"
	annotationMood       = "mood"
)

// SymbolProcessor renders AAC symbol sequences through the sentence builder.
// The caller picks one of the three renderings via the complexity annotation
// (terse|standard|expanded); standard is the default.
type SymbolProcessor struct {
	builder *sentence.Builder
}

func NewSymbolProcessor(cfg config.SentenceConfig) *SymbolProcessor {
	return &SymbolProcessor{builder: sentence.NewBuilder(cfg)}
}

func (p *SymbolProcessor) Kind() envelope.Kind { return envelope.KindSymbol }

func (p *SymbolProcessor) Validate(env *envelope.Envelope) error {
	if env.Symbols == nil {
		return errors.New("payload is not a symbol sequence")
	}
	return nil
}

func (p *SymbolProcessor) Process(_ context.Context, env *envelope.Envelope) (*Result, error) {
	var sctx *sentence.Context
	if mood := env.Annotations[annotationMood]; mood != "" {
		sctx = &sentence.Context{Mood: mood}
	}

	built := p.builder.Build(env.Symbols, sctx)

	complexity := env.Annotations[annotationComplexity]
	var content string
	switch complexity {
	case "terse":
		content = built.Terse
	case "expanded":
		content = built.Expanded
	default:
		complexity = "standard"
		content = built.Standard
	}

	result := &Result{
		Content:    content,
		Confidence: built.Confidence,
		Metadata: map[string]any{
			"complexity":         complexity,
			"token_count":        built.TokenCount,
			"phrase_count":       built.PhraseCount,
			"categories_touched": built.CategoriesTouched,
			"context_applied":    built.ContextApplied,
		},
	}
	if built.TokenCount == 0 && built.PhraseCount == 0 {
		result.Warnings = append(result.Warnings, "symbol sequence is empty")
	}
	return result, nil
}

// Fallback concatenates the raw labels with no grammar at all.
func (p *SymbolProcessor) Fallback(env *envelope.Envelope) *Result {
	var labels []string
	if env.Symbols != nil {
		for _, sym := range env.Symbols.Symbols {
			if sym.Label != "" {
				labels = append(labels, sym.Label)
			}
		}
		labels = append(labels, env.Symbols.Phrases...)
	}
	return &Result{
		Content:    strings.Join(labels, " "),
		Confidence: 0.3,
		Metadata:   map[string]any{"fallback": "label_concat"},
	}
}
