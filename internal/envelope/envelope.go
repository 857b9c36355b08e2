package envelope

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Canonical symbol categories. The category domain is open (any string is
// accepted), but pickers are expected to stick to this set.
const (
	CategoryPeople      = "people"
	CategoryActions     = "actions"
	CategoryEmotions    = "emotions"
	CategoryPlaces      = "places"
	CategoryThings      = "things"
	CategoryDescriptors = "descriptors"
	CategoryTime        = "time"
	CategoryQuestions   = "questions"
	CategorySocial      = "social"
	CategoryNeeds       = "needs"
)

// Symbol is a single AAC-style token selected from a picker.
type Symbol struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Category string `json:"category"`
}

// SymbolSequence is an ordered communication act: symbols in selection order
// plus optional free-text phrase fragments.
type SymbolSequence struct {
	Symbols []Symbol `json:"symbols"`
	Phrases []string `json:"phrases,omitempty"`
}

func (s *SymbolSequence) Empty() bool {
	return s == nil || (len(s.Symbols) == 0 && len(s.Phrases) == 0)
}

// Envelope is the immutable input unit submitted to the dispatcher. Callers
// build one through the New* constructors and never mutate it afterwards.
type Envelope struct {
	ID                 string
	Kind               Kind
	Text               string
	Media              []byte
	Symbols            *SymbolSequence
	DeclaredConfidence *float64
	CapturedAt         time.Time
	Annotations        map[string]string
}

// Option customizes an envelope at construction time.
type Option func(*Envelope)

// WithDeclaredConfidence records a capture-layer confidence estimate.
func WithDeclaredConfidence(c float64) Option {
	return func(e *Envelope) { e.DeclaredConfidence = &c }
}

// WithAnnotations attaches an opaque key/value bag. The core passes it through
// untouched.
func WithAnnotations(a map[string]string) Option {
	return func(e *Envelope) { e.Annotations = a }
}

func NewText(text string, capturedAt time.Time, opts ...Option) *Envelope {
	return build(KindText, &Envelope{Text: text, CapturedAt: capturedAt}, opts)
}

func NewVoice(media []byte, capturedAt time.Time, opts ...Option) *Envelope {
	return build(KindVoice, &Envelope{Media: media, CapturedAt: capturedAt}, opts)
}

func NewSign(media []byte, capturedAt time.Time, opts ...Option) *Envelope {
	return build(KindSign, &Envelope{Media: media, CapturedAt: capturedAt}, opts)
}

func NewCamera(media []byte, capturedAt time.Time, opts ...Option) *Envelope {
	return build(KindCamera, &Envelope{Media: media, CapturedAt: capturedAt}, opts)
}

func NewSymbols(seq *SymbolSequence, capturedAt time.Time, opts ...Option) *Envelope {
	return build(KindSymbol, &Envelope{Symbols: seq, CapturedAt: capturedAt}, opts)
}

func build(kind Kind, env *Envelope, opts []Option) *Envelope {
	env.ID = uuid.New().String()
	env.Kind = kind
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// maxClockSkew bounds how far in the future a capture timestamp may sit before
// the clock is considered broken.
const maxClockSkew = 5 * time.Minute

// Validate runs the envelope-shape checks: the declared kind must agree with
// the payload, declared confidence must be in range, and the capture timestamp
// must be a plausible point in time. A mismatched payload fails here, before
// any processor gets to see the envelope.
func Validate(env *Envelope, now time.Time) error {
	if env == nil {
		return errors.New("envelope is nil")
	}
	if env.CapturedAt.IsZero() {
		return errors.New("captured_at is unset")
	}
	if env.CapturedAt.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("captured_at %s is in the future", env.CapturedAt.Format(time.RFC3339))
	}
	if c := env.DeclaredConfidence; c != nil && (*c < 0 || *c > 1) {
		return fmt.Errorf("declared confidence %v outside [0,1]", *c)
	}

	switch env.Kind {
	case KindText:
		if strings.TrimSpace(env.Text) == "" {
			return errors.New("text payload is empty")
		}
	case KindVoice:
		return requireMedia(env, MediaAudio)
	case KindSign:
		return requireMedia(env, MediaVideo)
	case KindCamera:
		return requireMedia(env, MediaImage)
	case KindSymbol:
		if env.Symbols == nil {
			return errors.New("symbol envelope carries no symbol sequence")
		}
		for i, sym := range env.Symbols.Symbols {
			if strings.TrimSpace(sym.Label) == "" {
				return fmt.Errorf("symbol %d has an empty label", i)
			}
		}
	default:
		return fmt.Errorf("unsupported envelope kind %q", env.Kind)
	}
	return nil
}

func requireMedia(env *Envelope, want MediaCategory) error {
	if len(env.Media) == 0 {
		return fmt.Errorf("%s envelope carries no media payload", env.Kind)
	}
	got := DetectMediaCategory(env.Media)
	if got != want {
		return fmt.Errorf("kind mismatch: envelope declared %s but payload encodes as %s", env.Kind, got)
	}
	return nil
}
