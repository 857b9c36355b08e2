package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/imaging"
)

type execExtractor struct {
	cmd []string
	mu  sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewExecExtractor builds an extractor that hands each frame to an external
// command as a grayscale PNG and expects a JSON result on stdout.
func NewExecExtractor(cfg config.ExtractConfig) (Extractor, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse extract command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("extract command is empty")
	}
	return &execExtractor{cmd: args}, nil
}

func (e *execExtractor) Extract(ctx context.Context, frame imaging.Frame) (Extraction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "modal_extract_*.png")
	if err != nil {
		return Extraction{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	data, err := imaging.EncodePNG(frame)
	if err != nil {
		return Extraction{}, err
	}
	if _, err := file.Write(data); err != nil {
		return Extraction{}, fmt.Errorf("write frame: %w", err)
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--image", file.Name())

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Extraction{}, fmt.Errorf("extract command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Extraction{}, fmt.Errorf("decode extract response: %w", err)
	}
	return Extraction{Text: resp.Text, Confidence: resp.Confidence}, nil
}
