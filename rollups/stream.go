package rollups

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shogotsuneto/go-rollups-broker"
)

// Entry is a decoded stream entry.
type Entry[T any] struct {
	ID      string
	Payload T
}

// DecodeError indicates that a stream entry does not hold a valid payload.
type DecodeError struct {
	Stream string
	ID     string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode entry %s of stream '%s': %v", e.ID, e.Stream, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Stream is a typed view of a broker stream with JSON encoded payloads.
type Stream[T any] struct {
	Key string
}

// InputsStream returns the typed inputs stream of the rollup.
func InputsStream(dapp DAppMetadata) Stream[RollupsInput] {
	return Stream[RollupsInput]{Key: dapp.InputsStreamKey()}
}

// ClaimsStream returns the typed claims stream of the rollup.
func ClaimsStream(dapp DAppMetadata) Stream[RollupsClaim] {
	return Stream[RollupsClaim]{Key: dapp.ClaimsStreamKey()}
}

// PeekLatest returns the most recent entry, or nil if the stream is empty.
func (s Stream[T]) PeekLatest(ctx context.Context, broker eventstore.Broker) (*Entry[T], error) {
	event, err := broker.PeekLatest(ctx, s.Key)
	if err != nil || event == nil {
		return nil, err
	}
	return s.decode(event)
}

// Produce encodes and appends payload, returning its id.
func (s Stream[T]) Produce(ctx context.Context, broker eventstore.Broker, payload T) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return broker.Produce(ctx, s.Key, data)
}

// ConsumeAfter returns the first entry after id, or nil if there is none.
func (s Stream[T]) ConsumeAfter(ctx context.Context, broker eventstore.Broker, id string) (*Entry[T], error) {
	event, err := broker.ConsumeAfter(ctx, s.Key, id)
	if err != nil || event == nil {
		return nil, err
	}
	return s.decode(event)
}

// Load decodes a range of entries.
func (s Stream[T]) Load(ctx context.Context, loader eventstore.Loader, opts eventstore.LoadOptions) ([]Entry[T], error) {
	events, err := loader.Load(ctx, s.Key, opts)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry[T], 0, len(events))
	for i := range events {
		entry, err := s.decode(&events[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s Stream[T]) decode(event *eventstore.Event) (*Entry[T], error) {
	var payload T
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil, &DecodeError{Stream: s.Key, ID: event.ID, Err: err}
	}
	return &Entry[T]{ID: event.ID, Payload: payload}, nil
}
