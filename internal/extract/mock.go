package extract

import (
	"context"
	"fmt"

	"github.com/modallabs/modal-core/internal/imaging"
)

type mockExtractor struct{}

func NewMockExtractor() Extractor {
	return &mockExtractor{}
}

func (m *mockExtractor) Extract(_ context.Context, frame imaging.Frame) (Extraction, error) {
	return Extraction{
		Text:       fmt.Sprintf("[extracted text pending %dx%d]", frame.Width, frame.Height),
		Confidence: 0.5,
	}, nil
}
