package facade

import (
	"errors"
	"fmt"
)

// Recoverable failures of the facade. Each wraps the underlying broker
// error and is matched with errors.Is. None of them is retried internally.
var (
	// ErrBrokerConnection is returned by New when the broker could not be reached.
	ErrBrokerConnection = errors.New("error connecting to the broker")
	// ErrPeekInput is returned when the tail of the inputs stream could not be read.
	ErrPeekInput = errors.New("error peeking at the end of the stream")
	// ErrProduceInput is returned when an input event could not be appended.
	ErrProduceInput = errors.New("error producing input event")
	// ErrProduceFinish is returned when a finish-epoch event could not be appended.
	ErrProduceFinish = errors.New("error producing finish-epoch event")
	// ErrConsumeClaim is returned when the claims stream could not be read.
	ErrConsumeClaim = errors.New("error consuming claim event")
	// ErrLoadInputs is returned when the inputs stream could not be read for an audit.
	ErrLoadInputs = errors.New("error loading the inputs stream")
)

func wrap(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

// SequencingError means the event about to be produced does not sit where
// the caller expected it in the inputs stream. The caller and the stream
// have diverged, so it is not part of the recoverable errors above: the
// process must halt and be reconciled, not retry.
type SequencingError struct {
	// Check names the violated field
	Check string
	// Actual is the value derived from the stream, Expected the one implied by the caller
	Actual   uint64
	Expected uint64
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("sequencing violation: %s is %d, expected %d", e.Check, e.Actual, e.Expected)
}

// IsFatal reports whether err carries a sequencing violation.
func IsFatal(err error) bool {
	var seqErr *SequencingError
	return errors.As(err, &seqErr)
}

var errLoaderUnsupported = errors.New("broker cannot load stream ranges")
