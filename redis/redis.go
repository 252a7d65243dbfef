// Package redis implements eventstore.Broker on top of Redis Streams.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shogotsuneto/go-rollups-broker"
)

// payloadField is the stream entry field holding the encoded payload.
const payloadField = "payload"

// Compile-time interface compliance check
var (
	_ eventstore.Broker = (*RedisBroker)(nil)
	_ eventstore.Loader = (*RedisBroker)(nil)
)

// RedisBroker is a Redis Streams implementation of eventstore.Broker.
type RedisBroker struct {
	client         goredis.UniversalClient
	consumeTimeout time.Duration
}

// Connect parses the endpoint, then pings the server with exponential
// backoff until it answers or config.BackoffMaxElapsed is spent.
func Connect(ctx context.Context, config eventstore.Config) (*RedisBroker, error) {
	opts, err := goredis.ParseURL(config.Endpoint)
	if err != nil {
		return nil, &eventstore.ConnectionError{
			Endpoint: eventstore.RedactEndpoint(config.Endpoint),
			Err:      fmt.Errorf("failed to parse redis endpoint: %w", err),
		}
	}

	// Let the caller's deadline bound blocking reads
	opts.ContextTimeoutEnabled = true

	client := goredis.NewClient(opts)
	ping := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}

	if err := eventstore.Connect(ctx, config.Endpoint, config.BackoffMaxElapsed, ping, nil); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisBroker(client, config.ConsumeTimeout), nil
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client goredis.UniversalClient, consumeTimeout time.Duration) *RedisBroker {
	return &RedisBroker{
		client:         client,
		consumeTimeout: consumeTimeout,
	}
}

// PeekLatest returns the most recent entry of the stream.
func (b *RedisBroker) PeekLatest(ctx context.Context, stream string) (*eventstore.Event, error) {
	messages, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek stream: %w", err)
	}

	if len(messages) == 0 {
		return nil, nil
	}

	return messageToEvent(messages[0])
}

// Produce appends data to the stream and returns the server-assigned id.
func (b *RedisBroker) Produce(ctx context.Context, stream string, data []byte) (string, error) {
	id, err := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add to stream: %w", err)
	}

	return id, nil
}

// ConsumeAfter reads the first entry after id, blocking on the server for
// at most the consume timeout.
func (b *RedisBroker) ConsumeAfter(ctx context.Context, stream string, id string) (*eventstore.Event, error) {
	args := &goredis.XReadArgs{
		Streams: []string{stream, id},
		Count:   1,
		Block:   -1,
	}
	if b.consumeTimeout > 0 {
		// BLOCK takes whole milliseconds and BLOCK 0 waits forever
		args.Block = max(b.consumeTimeout, time.Millisecond)
	}

	streams, err := b.client.XRead(ctx, args).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	for _, s := range streams {
		if len(s.Messages) > 0 {
			return messageToEvent(s.Messages[0])
		}
	}

	return nil, nil
}

// Load retrieves entries of the stream using the specified options.
func (b *RedisBroker) Load(ctx context.Context, stream string, opts eventstore.LoadOptions) ([]eventstore.Event, error) {
	start := "-"
	skipFirst := false
	if opts.After != "" && opts.After != eventstore.InitialID {
		// XRANGE is inclusive, drop the cursor entry itself
		start = opts.After
		skipFirst = true
	}

	count := int64(opts.Limit)
	if skipFirst && count > 0 {
		count++
	}

	var (
		messages []goredis.XMessage
		err      error
	)
	if count > 0 {
		messages, err = b.client.XRangeN(ctx, stream, start, "+", count).Result()
	} else {
		messages, err = b.client.XRange(ctx, stream, start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to range stream: %w", err)
	}

	if skipFirst && len(messages) > 0 && messages[0].ID == opts.After {
		messages = messages[1:]
	}
	if opts.Limit > 0 && len(messages) > opts.Limit {
		messages = messages[:opts.Limit]
	}

	events := make([]eventstore.Event, 0, len(messages))
	for _, message := range messages {
		event, err := messageToEvent(message)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, nil
}

// Close closes the client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// messageToEvent converts a stream message to an Event.
// The timestamp is taken from the millisecond part of the id.
func messageToEvent(message goredis.XMessage) (*eventstore.Event, error) {
	raw, ok := message.Values[payloadField]
	if !ok {
		return nil, fmt.Errorf("stream entry %s has no %q field", message.ID, payloadField)
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("stream entry %s has unexpected %q type %T", message.ID, payloadField, raw)
	}

	var millis, seq int64
	var timestamp time.Time
	if _, err := fmt.Sscanf(message.ID, "%d-%d", &millis, &seq); err == nil {
		timestamp = time.UnixMilli(millis)
	}

	return &eventstore.Event{
		ID:        message.ID,
		Data:      data,
		Timestamp: timestamp,
	}, nil
}
