package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shogotsuneto/go-rollups-broker"
)

// Tests for basic InMemoryBroker functionality

func TestInMemoryBroker_PeekLatest_EmptyStream(t *testing.T) {
	broker := NewInMemoryBroker(0)

	event, err := broker.PeekLatest(context.Background(), "non-existent-stream")
	if err != nil {
		t.Fatalf("PeekLatest failed: %v", err)
	}

	if event != nil {
		t.Fatalf("Expected no event from empty stream, got %+v", event)
	}
}

func TestInMemoryBroker_Produce(t *testing.T) {
	broker := NewInMemoryBroker(0)
	ctx := context.Background()

	id1, err := broker.Produce(ctx, "test-stream", []byte(`{"test": "data1"}`))
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	id2, err := broker.Produce(ctx, "test-stream", []byte(`{"test": "data2"}`))
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	// Check that ids were assigned in order
	if id1 != "1" {
		t.Errorf("Expected first id to be 1, got %s", id1)
	}
	if id2 != "2" {
		t.Errorf("Expected second id to be 2, got %s", id2)
	}

	latest, err := broker.PeekLatest(ctx, "test-stream")
	if err != nil {
		t.Fatalf("PeekLatest failed: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected latest event, got nil")
	}
	if latest.ID != id2 {
		t.Errorf("Expected latest id %s, got %s", id2, latest.ID)
	}
	if string(latest.Data) != `{"test": "data2"}` {
		t.Errorf("Expected latest data to be preserved, got %s", string(latest.Data))
	}
	if latest.Timestamp.IsZero() {
		t.Error("Expected latest event to have a timestamp")
	}
}

func TestInMemoryBroker_StreamIsolation(t *testing.T) {
	broker := NewInMemoryBroker(0)
	ctx := context.Background()

	if _, err := broker.Produce(ctx, "stream-1", []byte("a")); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	event, err := broker.PeekLatest(ctx, "stream-2")
	if err != nil {
		t.Fatalf("PeekLatest failed: %v", err)
	}
	if event != nil {
		t.Errorf("Expected stream-2 to be empty, got %+v", event)
	}

	id, err := broker.Produce(ctx, "stream-2", []byte("b"))
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if id != "1" {
		t.Errorf("Expected stream-2 ids to start at 1, got %s", id)
	}
}

func TestInMemoryBroker_ConsumeAfter(t *testing.T) {
	broker := NewInMemoryBroker(0)
	ctx := context.Background()

	// Nothing to consume yet
	event, err := broker.ConsumeAfter(ctx, "test-stream", eventstore.InitialID)
	if err != nil {
		t.Fatalf("ConsumeAfter failed: %v", err)
	}
	if event != nil {
		t.Fatalf("Expected no event, got %+v", event)
	}

	for _, data := range []string{"a", "b", "c"} {
		if _, err := broker.Produce(ctx, "test-stream", []byte(data)); err != nil {
			t.Fatalf("Produce failed: %v", err)
		}
	}

	cursor := eventstore.InitialID
	var got []string
	for {
		event, err := broker.ConsumeAfter(ctx, "test-stream", cursor)
		if err != nil {
			t.Fatalf("ConsumeAfter failed: %v", err)
		}
		if event == nil {
			break
		}
		got = append(got, string(event.Data))
		cursor = event.ID
	}

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
}

func TestInMemoryBroker_ConsumeAfter_InvalidID(t *testing.T) {
	broker := NewInMemoryBroker(0)

	_, err := broker.ConsumeAfter(context.Background(), "test-stream", "not-a-version")

	var invalid *eventstore.InvalidIDError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidIDError, got %v", err)
	}
	if invalid.ID != "not-a-version" {
		t.Errorf("Expected id 'not-a-version', got '%s'", invalid.ID)
	}
}

func TestInMemoryBroker_ConsumeAfter_WaitsForProduce(t *testing.T) {
	broker := NewInMemoryBroker(5 * time.Second)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = broker.Produce(ctx, "test-stream", []byte("late"))
	}()

	event, err := broker.ConsumeAfter(ctx, "test-stream", eventstore.InitialID)
	if err != nil {
		t.Fatalf("ConsumeAfter failed: %v", err)
	}
	if event == nil {
		t.Fatal("Expected the late event, got nil")
	}
	if string(event.Data) != "late" {
		t.Errorf("Expected data 'late', got '%s'", string(event.Data))
	}
}

func TestInMemoryBroker_ConsumeAfter_Timeout(t *testing.T) {
	broker := NewInMemoryBroker(20 * time.Millisecond)

	start := time.Now()
	event, err := broker.ConsumeAfter(context.Background(), "test-stream", eventstore.InitialID)
	if err != nil {
		t.Fatalf("ConsumeAfter failed: %v", err)
	}
	if event != nil {
		t.Fatalf("Expected no event, got %+v", event)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Expected ConsumeAfter to wait for the timeout")
	}
}

func TestInMemoryBroker_ConsumeAfter_ContextCanceled(t *testing.T) {
	broker := NewInMemoryBroker(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := broker.ConsumeAfter(ctx, "test-stream", eventstore.InitialID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestInMemoryBroker_Load(t *testing.T) {
	broker := NewInMemoryBroker(0)
	ctx := context.Background()

	for _, data := range []string{"a", "b", "c"} {
		if _, err := broker.Produce(ctx, "test-stream", []byte(data)); err != nil {
			t.Fatalf("Produce failed: %v", err)
		}
	}

	events, err := broker.Load(ctx, "test-stream", eventstore.LoadOptions{After: "1", Limit: 1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event with limit 1, got %d", len(events))
	}
	if string(events[0].Data) != "b" {
		t.Errorf("Expected 'b', got '%s'", string(events[0].Data))
	}

	all, err := broker.Load(ctx, "test-stream", eventstore.LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 events, got %d", len(all))
	}
}

func TestInMemoryBroker_Close(t *testing.T) {
	broker := NewInMemoryBroker(time.Minute)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := broker.ConsumeAfter(ctx, "test-stream", eventstore.InitialID)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)

	if err := broker.Close(); err != nil {
		t.Fatalf("First close should not error: %v", err)
	}
	if err := broker.Close(); err != nil {
		t.Fatalf("Second close should not error: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, eventstore.ErrClosed) {
			t.Errorf("Expected ErrClosed for waiting consumer, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Waiting consumer was not released by Close")
	}

	if _, err := broker.Produce(ctx, "test-stream", []byte("a")); !errors.Is(err, eventstore.ErrClosed) {
		t.Errorf("Expected ErrClosed from Produce, got %v", err)
	}
}
