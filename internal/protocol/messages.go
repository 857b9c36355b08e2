package protocol

import (
	"fmt"
	"time"

	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/processor"
)

// EnvelopeSubmission is the wire form of one captured input. Media bytes ride
// as base64 in the JSON encoding.
type EnvelopeSubmission struct {
	EnvelopeID         string                   `json:"envelope_id"`
	Kind               string                   `json:"kind"`
	Text               string                   `json:"text,omitempty"`
	Media              []byte                   `json:"media,omitempty"`
	Symbols            *envelope.SymbolSequence `json:"symbols,omitempty"`
	DeclaredConfidence *float64                 `json:"declared_confidence,omitempty"`
	CapturedAt         time.Time                `json:"captured_at"`
	Annotations        map[string]string        `json:"annotations,omitempty"`
	SourceNode         string                   `json:"source_node,omitempty"`
}

// ResultEvent broadcasts the outcome of one dispatch on the bus.
type ResultEvent struct {
	EnvelopeID string    `json:"envelope_id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Warnings   []string  `json:"warnings,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	Node       string    `json:"node,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectEnvelopePrefix      = "input.envelope"
	SubjectResult              = "input.result"
	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
)

// SubjectEnvelope returns the per-kind submission subject, e.g.
// input.envelope.voice.
func SubjectEnvelope(kind envelope.Kind) string {
	return fmt.Sprintf("%s.%s", SubjectEnvelopePrefix, kind)
}

// FromEnvelope converts a domain envelope into its wire form.
func FromEnvelope(env *envelope.Envelope, sourceNode string) EnvelopeSubmission {
	return EnvelopeSubmission{
		EnvelopeID:         env.ID,
		Kind:               env.Kind.String(),
		Text:               env.Text,
		Media:              env.Media,
		Symbols:            env.Symbols,
		DeclaredConfidence: env.DeclaredConfidence,
		CapturedAt:         env.CapturedAt,
		Annotations:        env.Annotations,
		SourceNode:         sourceNode,
	}
}

// ToEnvelope converts a submission back into a domain envelope. The kind
// string must parse; everything else is validated downstream.
func (s EnvelopeSubmission) ToEnvelope() (*envelope.Envelope, error) {
	kind, err := envelope.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	return &envelope.Envelope{
		ID:                 s.EnvelopeID,
		Kind:               kind,
		Text:               s.Text,
		Media:              s.Media,
		Symbols:            s.Symbols,
		DeclaredConfidence: s.DeclaredConfidence,
		CapturedAt:         s.CapturedAt,
		Annotations:        s.Annotations,
	}, nil
}

// ResultFromDispatch converts a dispatch result into its wire event.
func ResultFromDispatch(result *processor.Result, node string, now time.Time) ResultEvent {
	event := ResultEvent{
		Content:    result.Content,
		Confidence: result.Confidence,
		ElapsedMS:  result.Elapsed.Milliseconds(),
		Warnings:   result.Warnings,
		Errors:     result.Errors,
		Node:       node,
		Timestamp:  now,
	}
	if result.Source != nil {
		event.EnvelopeID = result.Source.ID
		event.Kind = result.Source.Kind.String()
	}
	return event
}
