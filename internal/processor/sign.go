package processor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/modallabs/modal-core/internal/envelope"
)

// signConfidence is the fixed placeholder confidence; real recognition does
// not ship with the runtime.
const signConfidence = 0.4

// SignProcessor accepts short sign-language clips. Processing is a stub that
// records clip metadata and a recognition-pending marker.
type SignProcessor struct{}

func NewSignProcessor() *SignProcessor { return &SignProcessor{} }

func (p *SignProcessor) Kind() envelope.Kind { return envelope.KindSign }

func (p *SignProcessor) Validate(env *envelope.Envelope) error {
	if got := envelope.DetectMediaCategory(env.Media); got != envelope.MediaVideo {
		return fmt.Errorf("payload encodes as %s, not video", got)
	}
	return nil
}

func (p *SignProcessor) Process(_ context.Context, env *envelope.Envelope) (*Result, error) {
	metadata := map[string]any{
		"media_type":  http.DetectContentType(env.Media),
		"size_bytes":  len(env.Media),
		"recognition": "pending",
	}
	// Capture layers that know the clip length pass it through the bag.
	if raw := env.Annotations["duration_ms"]; raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil {
			metadata["duration_seconds"] = float64(ms) / 1000
		}
	}
	return &Result{
		Content:    "[sign recognition pending]",
		Confidence: signConfidence,
		Warnings:   []string{"sign recognition model not available"},
		Metadata:   metadata,
	}, nil
}

func (p *SignProcessor) Fallback(env *envelope.Envelope) *Result {
	return &Result{
		Content:    "Sign input received. Automatic recognition is unavailable; manual interpretation is needed.",
		Confidence: 0,
		Metadata:   map[string]any{"size_bytes": len(env.Media)},
	}
}
