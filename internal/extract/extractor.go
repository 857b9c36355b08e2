package extract

import (
	"context"
	"fmt"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/imaging"
)

// Extraction captures text-extraction output for a frame.
type Extraction struct {
	Text       string
	Confidence float64
}

// Extractor abstracts text-extraction backends. No real OCR ships with the
// runtime; the mock backend produces confidence-scored placeholders and the
// exec backend shells out to an external tool.
type Extractor interface {
	Extract(ctx context.Context, frame imaging.Frame) (Extraction, error)
}

// New builds the extractor selected by configuration.
func New(cfg config.ExtractConfig) (Extractor, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockExtractor(), nil
	case "exec":
		return NewExecExtractor(cfg)
	}
	return nil, fmt.Errorf("unknown extract mode %q", cfg.Mode)
}
