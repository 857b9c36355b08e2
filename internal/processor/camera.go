package processor

import (
	"context"
	"fmt"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/extract"
	"github.com/modallabs/modal-core/internal/imaging"
)

// CameraProcessor extracts text from photographed content. The extraction
// backend is pluggable; the shipped one is a placeholder.
type CameraProcessor struct {
	preprocessor *imaging.Preprocessor
	extractor    extract.Extractor
}

func NewCameraProcessor(cfg config.ImageConfig, extractor extract.Extractor) *CameraProcessor {
	return &CameraProcessor{
		preprocessor: imaging.NewPreprocessor(imaging.NewAnalyzer(cfg)),
		extractor:    extractor,
	}
}

func (p *CameraProcessor) Kind() envelope.Kind { return envelope.KindCamera }

func (p *CameraProcessor) Validate(env *envelope.Envelope) error {
	if got := envelope.DetectMediaCategory(env.Media); got != envelope.MediaImage {
		return fmt.Errorf("payload encodes as %s, not image", got)
	}
	return nil
}

func (p *CameraProcessor) Process(ctx context.Context, env *envelope.Envelope) (*Result, error) {
	frame, err := imaging.Decode(env.Media)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared := p.preprocessor.Prepare(frame)

	extraction, err := p.extractor.Extract(ctx, prepared.Frame)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}

	return &Result{
		Content:    extraction.Text,
		Confidence: extraction.Confidence,
		Metadata: map[string]any{
			"width":                prepared.Frame.Width,
			"height":               prepared.Frame.Height,
			"size_bytes":           len(env.Media),
			"operations_applied":   prepared.OperationsApplied,
			"quality_score_before": prepared.QualityBefore.QualityScore,
			"quality_score_after":  prepared.QualityAfter.QualityScore,
		},
	}, nil
}

func (p *CameraProcessor) Fallback(env *envelope.Envelope) *Result {
	return &Result{
		Content:    "Image received. Text extraction is unavailable; a manual description is needed.",
		Confidence: 0,
		Metadata:   map[string]any{"size_bytes": len(env.Media)},
	}
}
