package processor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modallabs/modal-core/internal/audio"
	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
)

// defaultVoiceConfidence applies when the capture layer supplied no estimate.
const defaultVoiceConfidence = 0.5

// VoiceProcessor prepares spoken audio for a recognizer. Actual speech-to-text
// is out of scope; the processed content is a confidence-scored placeholder
// and the value of this processor is the normalization and quality gating.
type VoiceProcessor struct {
	analyzer     *audio.Analyzer
	preprocessor *audio.Preprocessor
	qualityFloor float64
}

func NewVoiceProcessor(cfg config.AudioConfig, qualityFloor float64) *VoiceProcessor {
	analyzer := audio.NewAnalyzer(cfg)
	return &VoiceProcessor{
		analyzer:     analyzer,
		preprocessor: audio.NewPreprocessor(cfg.TargetSampleRate, cfg.TargetRMS, cfg.LoudPeak, analyzer),
		qualityFloor: qualityFloor,
	}
}

func (p *VoiceProcessor) Kind() envelope.Kind { return envelope.KindVoice }

func (p *VoiceProcessor) Validate(env *envelope.Envelope) error {
	if got := envelope.DetectMediaCategory(env.Media); got != envelope.MediaAudio {
		return fmt.Errorf("payload encodes as %s, not audio", got)
	}
	return nil
}

func (p *VoiceProcessor) Process(ctx context.Context, env *envelope.Envelope) (*Result, error) {
	clip, err := audio.DecodeWAV(env.Media)
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared := p.preprocessor.Prepare(clip)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if prepared.QualityAfter.QualityScore < p.qualityFloor {
		return nil, &QualityError{Score: prepared.QualityAfter.QualityScore, Floor: p.qualityFloor}
	}

	confidence := defaultVoiceConfidence
	if env.DeclaredConfidence != nil {
		confidence = *env.DeclaredConfidence
	}

	return &Result{
		Content:    fmt.Sprintf("[voice transcript pending, %.1fs]", prepared.Clip.DurationSeconds()),
		Confidence: confidence,
		Metadata: map[string]any{
			"media_type":           http.DetectContentType(env.Media),
			"size_bytes":           len(env.Media),
			"duration_seconds":     prepared.Clip.DurationSeconds(),
			"sample_rate":          prepared.Clip.SampleRate,
			"operations_applied":   prepared.OperationsApplied,
			"quality_score_before": prepared.QualityBefore.QualityScore,
			"quality_score_after":  prepared.QualityAfter.QualityScore,
		},
	}, nil
}

func (p *VoiceProcessor) Fallback(env *envelope.Envelope) *Result {
	return &Result{
		Content:    "Voice input received. Transcription is unavailable; please type your message instead.",
		Confidence: 0,
		Metadata:   map[string]any{"size_bytes": len(env.Media)},
	}
}
