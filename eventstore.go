// Package eventstore provides the append-only stream capability that the
// rollups broker facade is built on, with pluggable backends.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InitialID is the cursor token that points before the first entry of any stream.
const InitialID = "0"

// Event represents a single entry of a stream.
type Event struct {
	// ID is the broker-assigned position of the entry, usable as a cursor
	ID string
	// Data contains the encoded payload
	Data []byte
	// Timestamp when the entry was appended
	Timestamp time.Time
}

// Broker defines the stream operations the facade consumes.
//
// IDs returned by Produce are strictly increasing within a stream, and any
// of them (or InitialID) can be handed back to ConsumeAfter.
type Broker interface {
	// PeekLatest returns the most recent entry of the stream, or nil if the stream is empty.
	PeekLatest(ctx context.Context, stream string) (*Event, error)

	// Produce appends data to the stream and returns the id assigned to it.
	Produce(ctx context.Context, stream string, data []byte) (string, error)

	// ConsumeAfter returns the first entry strictly after id, or nil if there is none.
	// It waits at most the consume timeout the broker was configured with.
	ConsumeAfter(ctx context.Context, stream string, id string) (*Event, error)

	// Close releases the underlying connection.
	Close() error
}

// LoadOptions contains options for loading a range of entries from a stream.
type LoadOptions struct {
	// After is the id the range starts after (InitialID for the beginning)
	After string
	// Limit specifies the maximum number of entries to return; zero means all
	Limit int
}

// Loader is implemented by brokers that can read a range of entries at once.
// It is used for auditing a stream, not on the sequencing path.
type Loader interface {
	Load(ctx context.Context, stream string, opts LoadOptions) ([]Event, error)
}

// Config contains the connection settings shared by all backends.
type Config struct {
	// Endpoint is a URL whose scheme selects the backend
	Endpoint string
	// ConsumeTimeout bounds how long ConsumeAfter waits for a new entry; zero means no wait
	ConsumeTimeout time.Duration
	// BackoffMaxElapsed is the total time budget for establishing the connection
	BackoffMaxElapsed time.Duration
}

// Common error types for broker operations.

// ConnectionError indicates that the broker could not be reached within the backoff budget.
type ConnectionError struct {
	Endpoint string
	Elapsed  time.Duration
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to '%s' after %s: %v", e.Endpoint, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// InvalidIDError indicates that a cursor token does not belong to the backend's id format.
type InvalidIDError struct {
	ID  string
	Err error
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid stream id '%s': %v", e.ID, e.Err)
}

func (e *InvalidIDError) Unwrap() error {
	return e.Err
}

// Sentinel errors for common error conditions.
var (
	// ErrClosed is returned by operations on a broker that has been closed.
	ErrClosed = errors.New("broker is closed")
)
