package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/processor"
)

// Outcome labels attached to dispatch metrics and logs.
const (
	outcomeSucceeded  = "succeeded"
	outcomeFallenBack = "fallen_back"
	outcomeFailed     = "failed"
)

// Options tunes one dispatcher. Zero MaxProcessingTime means no deadline.
type Options struct {
	MinConfidence     float64
	MaxProcessingTime time.Duration
	AutoFallback      bool
}

func OptionsFromConfig(cfg config.DispatchConfig) Options {
	return Options{
		MinConfidence:     cfg.MinConfidence,
		MaxProcessingTime: time.Duration(cfg.MaxProcessingTimeMS) * time.Millisecond,
		AutoFallback:      cfg.AutoFallback,
	}
}

// Dispatcher runs one envelope through validation, processing, and the
// fallback ladder. It always hands back a Result; a populated Errors slice is
// how failure is reported, never a Go error to the caller.
type Dispatcher struct {
	registry *processor.Registry
	opts     Options
	logger   *slog.Logger
	clock    func() time.Time

	dispatches metric.Int64Counter
	latency    metric.Float64Histogram
}

func New(registry *processor.Registry, opts Options, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		opts:     opts,
		logger:   logger.With(slog.String("component", "dispatcher")),
		clock:    time.Now,
	}
	meter := otel.Meter("github.com/modallabs/modal-core/runtime")
	var err error
	d.dispatches, err = meter.Int64Counter("modal.dispatch.total",
		metric.WithDescription("Envelopes dispatched, by kind and outcome"))
	if err != nil {
		d.logger.Warn("failed to initialize dispatch counter", slogError(err))
	}
	d.latency, err = meter.Float64Histogram("modal.dispatch.duration",
		metric.WithDescription("End-to-end dispatch latency"),
		metric.WithUnit("s"))
	if err != nil {
		d.logger.Warn("failed to initialize dispatch histogram", slogError(err))
	}
	return d
}

type attempt struct {
	result *processor.Result
	err    error
}

// Dispatch validates env, routes it to its processor, and enforces the
// processing deadline. A deadline overrun abandons the in-flight attempt; the
// losing goroutine finishes into a buffered channel and is garbage collected.
func (d *Dispatcher) Dispatch(ctx context.Context, env *envelope.Envelope) *processor.Result {
	start := d.clock()

	if env == nil {
		cause := errors.New("envelope is nil")
		result := &processor.Result{
			Elapsed: d.clock().Sub(start),
			Errors:  []string{cause.Error()},
		}
		d.record("invalid", outcomeFailed, result.Elapsed)
		d.logger.Warn("envelope dispatch failed",
			slog.String("outcome", outcomeFailed),
			slogError(cause))
		return result
	}

	// The processor is resolved before envelope validation so its Fallback is
	// available for validation failures too.
	proc, ok := d.registry.Get(env.Kind)

	if err := envelope.Validate(env, start); err != nil {
		return d.finish(env, proc, start, &processor.ValidationError{Err: err})
	}
	if !ok {
		return d.finish(env, nil, start, &processor.ValidationError{Err: fmt.Errorf("no processor for kind %s", env.Kind)})
	}

	if err := proc.Validate(env); err != nil {
		return d.finish(env, proc, start, &processor.ValidationError{Err: err})
	}

	if err := ctx.Err(); err != nil {
		return d.finish(env, proc, start, err)
	}

	pctx := ctx
	cancel := context.CancelFunc(func() {})
	if d.opts.MaxProcessingTime > 0 {
		pctx, cancel = context.WithTimeout(ctx, d.opts.MaxProcessingTime)
	}
	defer cancel()

	done := make(chan attempt, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attempt{err: &processor.ProcessingError{Err: fmt.Errorf("processor panic: %v", r)}}
			}
		}()
		result, err := proc.Process(pctx, env)
		done <- attempt{result: result, err: err}
	}()

	select {
	case att := <-done:
		if att.err == nil && att.result == nil {
			att.err = &processor.ProcessingError{Err: errors.New("processor returned no result")}
		}
		if att.err != nil {
			if pctx.Err() == context.DeadlineExceeded {
				return d.finish(env, proc, start, &processor.TimeoutError{Deadline: d.opts.MaxProcessingTime})
			}
			return d.finish(env, proc, start, att.err)
		}
		return d.succeed(env, att.result, start)
	case <-pctx.Done():
		if ctx.Err() != nil {
			return d.finish(env, proc, start, ctx.Err())
		}
		return d.finish(env, proc, start, &processor.TimeoutError{Deadline: d.opts.MaxProcessingTime})
	}
}

func (d *Dispatcher) succeed(env *envelope.Envelope, result *processor.Result, start time.Time) *processor.Result {
	result.Source = env
	result.Elapsed = d.clock().Sub(start)
	if result.Confidence < d.opts.MinConfidence {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("confidence %.2f below threshold %.2f", result.Confidence, d.opts.MinConfidence))
	}
	d.record(env.Kind.String(), outcomeSucceeded, result.Elapsed)
	d.logger.Debug("envelope dispatched",
		slog.String("envelope_id", env.ID),
		slog.String("kind", env.Kind.String()),
		slog.Float64("confidence", result.Confidence),
		slog.Duration("elapsed", result.Elapsed))
	return result
}

// finish builds the failure result. With AutoFallback on and a processor in
// hand the fallback content is used; otherwise the result carries only the
// error.
func (d *Dispatcher) finish(env *envelope.Envelope, proc processor.Processor, start time.Time, cause error) *processor.Result {
	var result *processor.Result
	outcome := outcomeFailed
	if d.opts.AutoFallback && proc != nil {
		if result = d.fallback(env, proc); result != nil {
			outcome = outcomeFallenBack
		}
	}
	if result == nil {
		result = &processor.Result{}
	}
	result.Source = env
	result.Elapsed = d.clock().Sub(start)
	result.Errors = append(result.Errors, cause.Error())

	d.record(env.Kind.String(), outcome, result.Elapsed)
	d.logger.Warn("envelope dispatch failed",
		slog.String("envelope_id", env.ID),
		slog.String("kind", env.Kind.String()),
		slog.String("outcome", outcome),
		slogError(cause))
	return result
}

// fallback shields the dispatcher from a misbehaving Fallback implementation.
// A panic degrades to nil, which finish turns into the empty terminal result.
func (d *Dispatcher) fallback(env *envelope.Envelope, proc processor.Processor) (result *processor.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("fallback panicked",
				slog.String("envelope_id", env.ID),
				slog.String("kind", env.Kind.String()),
				slog.String("panic", fmt.Sprint(r)))
			result = nil
		}
	}()
	return proc.Fallback(env)
}

func (d *Dispatcher) record(kind, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome))
	if d.dispatches != nil {
		d.dispatches.Add(context.Background(), 1, attrs)
	}
	if d.latency != nil {
		d.latency.Record(context.Background(), elapsed.Seconds(), attrs)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
