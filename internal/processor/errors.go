package processor

import (
	"fmt"
	"time"
)

// ValidationError marks an envelope that failed shape checks. It never
// reaches a processor's Process method.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProcessingError marks an internal fault inside a processor.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// TimeoutError marks a processing attempt that exceeded the dispatch deadline.
// The in-flight attempt is abandoned, not awaited.
type TimeoutError struct {
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("processing exceeded deadline of %s", e.Deadline)
}

// QualityError marks input whose signal quality fell under an unrecoverable
// floor. Processors decide the floor; the dispatcher treats it like any other
// processing failure.
type QualityError struct {
	Score float64
	Floor float64
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("signal quality %.3f below floor %.3f", e.Score, e.Floor)
}
