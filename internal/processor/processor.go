package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/extract"
)

// Result is the outcome of one dispatch. It is created once, handed to the
// caller, and never mutated afterwards. A populated Errors slice means the
// primary path failed and Content came from the fallback; Warnings may
// accompany a successful result without implying failure.
type Result struct {
	Source     *envelope.Envelope
	Content    string
	Confidence float64
	Elapsed    time.Duration
	Warnings   []string
	Errors     []string
	Metadata   map[string]any
}

// Failed reports whether the primary processing path failed.
func (r *Result) Failed() bool { return len(r.Errors) > 0 }

// Processor is the common contract every modality strategy implements.
// Process must honor ctx cancellation: the dispatcher abandons attempts that
// outlive the deadline, so work must be safe to drop mid-flight and must not
// leave shared state inconsistent.
type Processor interface {
	Kind() envelope.Kind
	Validate(env *envelope.Envelope) error
	Process(ctx context.Context, env *envelope.Envelope) (*Result, error)
	Fallback(env *envelope.Envelope) *Result
}

// Registry maps envelope kinds to processors. It is built once, may be
// overridden per kind before the dispatcher is constructed, and must not be
// mutated concurrently with in-flight dispatches.
type Registry struct {
	processors map[envelope.Kind]Processor
}

// NewRegistry builds a registry and requires full coverage of the kind enum.
// A missing processor is a programmer error and fails hard at setup time.
func NewRegistry(processors ...Processor) (*Registry, error) {
	reg := &Registry{processors: make(map[envelope.Kind]Processor, len(processors))}
	for _, p := range processors {
		if _, dup := reg.processors[p.Kind()]; dup {
			return nil, fmt.Errorf("duplicate processor for kind %s", p.Kind())
		}
		reg.processors[p.Kind()] = p
	}
	for _, kind := range envelope.Kinds() {
		if _, ok := reg.processors[kind]; !ok {
			return nil, fmt.Errorf("no processor registered for kind %s", kind)
		}
	}
	return reg, nil
}

// Override replaces the processor for one kind. Intended for tests and
// extension; never call it while dispatches are in flight.
func (r *Registry) Override(kind envelope.Kind, p Processor) {
	r.processors[kind] = p
}

func (r *Registry) Get(kind envelope.Kind) (Processor, bool) {
	p, ok := r.processors[kind]
	return p, ok
}

// NewDefaultRegistry wires the five standard processors from configuration.
func NewDefaultRegistry(cfg config.Config) (*Registry, error) {
	extractor, err := extract.New(cfg.Extract)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	return NewRegistry(
		NewTextProcessor(),
		NewVoiceProcessor(cfg.Audio, cfg.Dispatch.AudioQualityFloor),
		NewSymbolProcessor(cfg.Sentence),
		NewSignProcessor(),
		NewCameraProcessor(cfg.Image, extractor),
	)
}
