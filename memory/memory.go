package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shogotsuneto/go-rollups-broker"
)

// Compile-time interface compliance check
var (
	_ eventstore.Broker = (*InMemoryBroker)(nil)
	_ eventstore.Loader = (*InMemoryBroker)(nil)
)

type entry struct {
	version int64
	event   eventstore.Event
}

// InMemoryBroker is a simple in-memory implementation of eventstore.Broker.
// This implementation is suitable for testing and single-process deployments.
type InMemoryBroker struct {
	mu             sync.RWMutex
	streams        map[string][]entry
	notify         map[string]chan struct{}
	consumeTimeout time.Duration
	closed         bool
}

// NewInMemoryBroker creates a new in-memory broker.
// ConsumeAfter waits up to consumeTimeout for an entry to be produced.
func NewInMemoryBroker(consumeTimeout time.Duration) *InMemoryBroker {
	return &InMemoryBroker{
		streams:        make(map[string][]entry),
		notify:         make(map[string]chan struct{}),
		consumeTimeout: consumeTimeout,
	}
}

// PeekLatest returns the most recent entry of the stream.
func (b *InMemoryBroker) PeekLatest(ctx context.Context, stream string) (*eventstore.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, eventstore.ErrClosed
	}

	entries := b.streams[stream]
	if len(entries) == 0 {
		return nil, nil
	}

	event := entries[len(entries)-1].event
	return &event, nil
}

// Produce appends data to the stream and wakes up waiting consumers.
func (b *InMemoryBroker) Produce(ctx context.Context, stream string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", eventstore.ErrClosed
	}

	entries := b.streams[stream]
	version := int64(len(entries) + 1)
	event := eventstore.Event{
		ID:        eventstore.VersionID(version),
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
	}
	b.streams[stream] = append(entries, entry{version: version, event: event})

	// Broadcast to everyone waiting on this stream
	if ch, ok := b.notify[stream]; ok {
		close(ch)
		delete(b.notify, stream)
	}

	return event.ID, nil
}

// ConsumeAfter returns the first entry after id, waiting up to the consume timeout.
func (b *InMemoryBroker) ConsumeAfter(ctx context.Context, stream string, id string) (*eventstore.Event, error) {
	after, err := eventstore.ParseVersionID(id)
	if err != nil {
		return nil, err
	}

	var deadline <-chan time.Time
	if b.consumeTimeout > 0 {
		timer := time.NewTimer(b.consumeTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		event, wait, err := b.next(stream, after)
		if err != nil || event != nil {
			return event, err
		}
		if deadline == nil {
			return nil, nil
		}

		select {
		case <-wait:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// next returns the entry after the given version, or a channel that is
// closed when the stream grows.
func (b *InMemoryBroker) next(stream string, after int64) (*eventstore.Event, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, eventstore.ErrClosed
	}

	entries := b.streams[stream]
	if after < int64(len(entries)) {
		event := entries[after].event
		return &event, nil, nil
	}

	ch, ok := b.notify[stream]
	if !ok {
		ch = make(chan struct{})
		b.notify[stream] = ch
	}
	return nil, ch, nil
}

// Load retrieves entries of the stream using the specified options.
func (b *InMemoryBroker) Load(ctx context.Context, stream string, opts eventstore.LoadOptions) ([]eventstore.Event, error) {
	after, err := eventstore.ParseVersionID(opts.After)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, eventstore.ErrClosed
	}

	var result []eventstore.Event
	for _, e := range b.streams[stream] {
		if e.version > after {
			result = append(result, e.event)
			if opts.Limit > 0 && len(result) >= opts.Limit {
				break
			}
		}
	}

	return result, nil
}

// Close marks the broker closed and releases waiting consumers.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for stream, ch := range b.notify {
		close(ch)
		delete(b.notify, stream)
	}

	return nil
}
