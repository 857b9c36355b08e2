package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/processor"
)

var captured = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	reg, err := processor.NewDefaultRegistry(config.Default())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return New(reg, opts, testLogger())
}

func defaultOptions() Options {
	return OptionsFromConfig(config.Default().Dispatch)
}

// stubProcessor lets tests control the processing path for one kind.
type stubProcessor struct {
	kind        envelope.Kind
	validateErr error
	process     func(ctx context.Context, env *envelope.Envelope) (*processor.Result, error)
	fallback    *processor.Result
}

func (s *stubProcessor) Kind() envelope.Kind { return s.kind }

func (s *stubProcessor) Validate(*envelope.Envelope) error { return s.validateErr }

func (s *stubProcessor) Process(ctx context.Context, env *envelope.Envelope) (*processor.Result, error) {
	return s.process(ctx, env)
}

func (s *stubProcessor) Fallback(*envelope.Envelope) *processor.Result {
	if s.fallback != nil {
		out := *s.fallback
		return &out
	}
	return &processor.Result{Content: "stub fallback", Confidence: 0.1}
}

func TestDispatchCleanText(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	result := d.Dispatch(context.Background(), envelope.NewText("I want water", time.Now().UTC()))
	if result.Failed() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Content != "I want water" {
		t.Fatalf("content = %q", result.Content)
	}
	if result.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", result.Confidence)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if result.Source == nil || result.Source.Kind != envelope.KindText {
		t.Fatal("result should carry its source envelope")
	}
	if result.Elapsed < 0 {
		t.Fatalf("elapsed = %v", result.Elapsed)
	}
}

func TestDispatchSymbolSequence(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	seq := &envelope.SymbolSequence{
		Symbols: []envelope.Symbol{
			{ID: "s1", Label: "I", Category: envelope.CategoryPeople},
			{ID: "s2", Label: "want", Category: envelope.CategoryActions},
			{ID: "s3", Label: "water", Category: envelope.CategoryThings},
		},
		Phrases: []string{"right now"},
	}
	result := d.Dispatch(context.Background(), envelope.NewSymbols(seq, time.Now().UTC()))
	if result.Failed() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	for _, term := range []string{"want", "water"} {
		if !strings.Contains(result.Content, term) {
			t.Fatalf("content %q missing %q", result.Content, term)
		}
	}
	if result.Confidence <= defaultOptions().MinConfidence {
		t.Fatalf("confidence = %v, want above threshold", result.Confidence)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestDispatchKindMismatchFallsBack(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	// Voice envelope carrying a PNG payload: caught in validation, never
	// reaches the voice processor.
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	result := d.Dispatch(context.Background(), envelope.NewVoice(png, time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected a failed result for mismatched payload")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "kind mismatch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors %v should name the kind mismatch", result.Errors)
	}
	if result.Content == "" {
		t.Fatal("auto-fallback should still produce content")
	}
}

func TestDispatchDeadlineAbandonsAttempt(t *testing.T) {
	d := testDispatcher(t, Options{
		MinConfidence:     0.5,
		MaxProcessingTime: 20 * time.Millisecond,
		AutoFallback:      true,
	})

	release := make(chan struct{})
	d.registry.Override(envelope.KindText, &stubProcessor{
		kind: envelope.KindText,
		process: func(ctx context.Context, _ *envelope.Envelope) (*processor.Result, error) {
			select {
			case <-release:
				return &processor.Result{Content: "too late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		fallback: &processor.Result{Content: "deadline fallback", Confidence: 0.1},
	})
	t.Cleanup(func() { close(release) })

	begin := time.Now()
	result := d.Dispatch(context.Background(), envelope.NewText("slow", time.Now().UTC()))
	elapsed := time.Since(begin)

	if !result.Failed() {
		t.Fatal("expected failure after deadline")
	}
	if !strings.Contains(strings.Join(result.Errors, " "), "deadline") {
		t.Fatalf("errors %v should name the deadline", result.Errors)
	}
	if result.Content != "deadline fallback" {
		t.Fatalf("content = %q, want fallback", result.Content)
	}
	// Generous bound: the dispatcher must not wait for the stuck attempt.
	if elapsed > 2*time.Second {
		t.Fatalf("dispatch blocked for %v past its deadline", elapsed)
	}
}

func TestDispatchWithoutAutoFallback(t *testing.T) {
	opts := defaultOptions()
	opts.AutoFallback = false
	d := testDispatcher(t, opts)

	d.registry.Override(envelope.KindText, &stubProcessor{
		kind: envelope.KindText,
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			return nil, &processor.ProcessingError{Err: errors.New("backend down")}
		},
	})

	result := d.Dispatch(context.Background(), envelope.NewText("hello", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if result.Content != "" {
		t.Fatalf("content = %q, want empty without auto-fallback", result.Content)
	}
	if result.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", result.Confidence)
	}
}

func TestDispatchLowConfidenceWarning(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	d.registry.Override(envelope.KindText, &stubProcessor{
		kind: envelope.KindText,
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			return &processor.Result{Content: "maybe water?", Confidence: 0.3}, nil
		},
	})

	result := d.Dispatch(context.Background(), envelope.NewText("mumble", time.Now().UTC()))
	if result.Failed() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "below threshold") {
		t.Fatalf("warnings = %v, want low-confidence warning", result.Warnings)
	}
	if result.Content != "maybe water?" {
		t.Fatalf("low confidence must not discard content, got %q", result.Content)
	}
}

func TestDispatchContainsPanic(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	d.registry.Override(envelope.KindText, &stubProcessor{
		kind: envelope.KindText,
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			panic("index out of range")
		},
	})

	result := d.Dispatch(context.Background(), envelope.NewText("boom", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected failure after processor panic")
	}
	if !strings.Contains(strings.Join(result.Errors, " "), "panic") {
		t.Fatalf("errors %v should record the panic", result.Errors)
	}
}

func TestDispatchValidationErrorBeforeProcessor(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	processed := false
	d.registry.Override(envelope.KindText, &stubProcessor{
		kind:        envelope.KindText,
		validateErr: errors.New("bad shape"),
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			processed = true
			return &processor.Result{}, nil
		},
	})

	result := d.Dispatch(context.Background(), envelope.NewText("hello", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected validation failure")
	}
	if processed {
		t.Fatal("processor must not run after validation failure")
	}
}

func TestDispatchNilEnvelope(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	// Stepped clock so the terminal result carries a measurable elapsed time
	// like every other dispatch path.
	times := []time.Time{captured, captured.Add(5 * time.Millisecond)}
	d.clock = func() time.Time {
		next := times[0]
		if len(times) > 1 {
			times = times[1:]
		}
		return next
	}

	result := d.Dispatch(context.Background(), nil)
	if !result.Failed() {
		t.Fatal("expected failure for nil envelope")
	}
	if result.Elapsed != 5*time.Millisecond {
		t.Fatalf("elapsed = %v, want 5ms", result.Elapsed)
	}
}

func TestDispatchNilResultFallsBack(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	d.registry.Override(envelope.KindText, &stubProcessor{
		kind: envelope.KindText,
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			return nil, nil
		},
		fallback: &processor.Result{Content: "nil-result fallback", Confidence: 0.1},
	})

	result := d.Dispatch(context.Background(), envelope.NewText("hello", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected failure for a processor returning no result")
	}
	if !strings.Contains(strings.Join(result.Errors, " "), "no result") {
		t.Fatalf("errors %v should name the missing result", result.Errors)
	}
	if result.Content != "nil-result fallback" {
		t.Fatalf("content = %q, want fallback", result.Content)
	}
}

// panicFallbackProcessor fails processing and then panics in its fallback.
type panicFallbackProcessor struct {
	stubProcessor
}

func (p *panicFallbackProcessor) Fallback(*envelope.Envelope) *processor.Result {
	panic("fallback template missing")
}

func TestDispatchContainsFallbackPanic(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	d.registry.Override(envelope.KindText, &panicFallbackProcessor{stubProcessor{
		kind: envelope.KindText,
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			return nil, &processor.ProcessingError{Err: errors.New("backend down")}
		},
	}})

	result := d.Dispatch(context.Background(), envelope.NewText("hello", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if result.Content != "" {
		t.Fatalf("content = %q, want empty after fallback panic", result.Content)
	}
	if !strings.Contains(strings.Join(result.Errors, " "), "backend down") {
		t.Fatalf("errors %v should carry the original cause", result.Errors)
	}
}

// nilFallbackProcessor fails processing and returns nil from its fallback.
type nilFallbackProcessor struct {
	stubProcessor
}

func (p *nilFallbackProcessor) Fallback(*envelope.Envelope) *processor.Result { return nil }

func TestDispatchNilFallbackDegrades(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	d.registry.Override(envelope.KindText, &nilFallbackProcessor{stubProcessor{
		kind: envelope.KindText,
		process: func(context.Context, *envelope.Envelope) (*processor.Result, error) {
			return nil, &processor.ProcessingError{Err: errors.New("backend down")}
		},
	}})

	result := d.Dispatch(context.Background(), envelope.NewText("hello", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if result.Content != "" {
		t.Fatalf("content = %q, want empty for nil fallback", result.Content)
	}
}

func TestDispatchCanceledContext(t *testing.T) {
	d := testDispatcher(t, defaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := d.Dispatch(ctx, envelope.NewText("hello", time.Now().UTC()))
	if !result.Failed() {
		t.Fatal("expected failure for canceled context")
	}
}
