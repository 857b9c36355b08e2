package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/modallabs/modal-core/internal/envelope"
)

// TextProcessor passes typed input through verbatim. Text is already in its
// final form, so confidence is always 1.
type TextProcessor struct{}

func NewTextProcessor() *TextProcessor { return &TextProcessor{} }

func (p *TextProcessor) Kind() envelope.Kind { return envelope.KindText }

func (p *TextProcessor) Validate(env *envelope.Envelope) error {
	if strings.TrimSpace(env.Text) == "" {
		return errors.New("text content is empty or whitespace-only")
	}
	return nil
}

func (p *TextProcessor) Process(_ context.Context, env *envelope.Envelope) (*Result, error) {
	trimmed := strings.TrimSpace(env.Text)
	return &Result{
		Content:    trimmed,
		Confidence: 1.0,
		Metadata: map[string]any{
			"word_count": len(strings.Fields(trimmed)),
			"char_count": len(trimmed),
		},
	}, nil
}

func (p *TextProcessor) Fallback(env *envelope.Envelope) *Result {
	return &Result{
		Content:    strings.TrimSpace(env.Text),
		Confidence: 0.2,
		Warnings:   []string{"text passed through without validation"},
		Metadata:   map[string]any{"fallback": "raw_text"},
	}
}
