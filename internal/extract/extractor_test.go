package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/imaging"
)

func grayFrame(size int) imaging.Frame {
	pixels := make([]float64, size*size)
	for i := range pixels {
		pixels[i] = 0.5
	}
	return imaging.Frame{Pixels: pixels, Width: size, Height: size}
}

func TestNewSelectsMode(t *testing.T) {
	if _, err := New(config.ExtractConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, err := New(config.ExtractConfig{Mode: "exec", Command: "ocr-tool --lang en"}); err != nil {
		t.Fatalf("exec mode: %v", err)
	}
	if _, err := New(config.ExtractConfig{Mode: "exec"}); err == nil {
		t.Fatal("exec mode with empty command should fail")
	}
	if _, err := New(config.ExtractConfig{Mode: "magic"}); err == nil {
		t.Fatal("unknown mode should fail")
	}
}

func TestMockExtractorReportsDimensions(t *testing.T) {
	result, err := NewMockExtractor().Extract(context.Background(), grayFrame(24))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(result.Text, "24x24") {
		t.Fatalf("text = %q, want frame dimensions", result.Text)
	}
	if result.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", result.Confidence)
	}
}

func TestExecExtractorRunsCommand(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fake-ocr.sh")
	body := "#!/bin/sh\nprintf '{\"text\":\"hello from script\",\"confidence\":0.9}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	extractor, err := NewExecExtractor(config.ExtractConfig{Mode: "exec", Command: script})
	if err != nil {
		t.Fatalf("build extractor: %v", err)
	}
	result, err := extractor.Extract(context.Background(), grayFrame(8))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Text != "hello from script" {
		t.Fatalf("text = %q", result.Text)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
}

func TestExecExtractorCommandFailure(t *testing.T) {
	extractor, err := NewExecExtractor(config.ExtractConfig{Mode: "exec", Command: "/bin/false"})
	if err != nil {
		t.Fatalf("build extractor: %v", err)
	}
	if _, err := extractor.Extract(context.Background(), grayFrame(8)); err == nil {
		t.Fatal("expected error from failing command")
	}
}
