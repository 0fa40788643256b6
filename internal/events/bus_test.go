package events_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/energizer-project/palrcon/internal/events"
)

func TestEmitSync(t *testing.T) {
	bus := events.NewBus()
	var calls atomic.Int32
	bus.Subscribe(events.EventPlayerJoined, "count", func(ctx context.Context, e events.Event) error {
		calls.Add(1)
		return nil
	})
	bus.Subscribe(events.EventPlayerJoined, "fail", func(ctx context.Context, e events.Event) error {
		calls.Add(1)
		return errors.New("boom")
	})
	bus.Subscribe(events.EventPlayerJoined, "panic", func(ctx context.Context, e events.Event) error {
		calls.Add(1)
		panic("handler bug")
	})

	err := bus.EmitSync(context.Background(), events.New(events.EventPlayerJoined, "test", nil))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Expected the handler error, got: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("Expected 3 handler calls, got %d", calls.Load())
	}
}

func TestEmitAsyncAndStop(t *testing.T) {
	bus := events.NewBus()
	done := make(chan events.Event, 1)
	bus.Subscribe(events.EventModeration, "recv", func(ctx context.Context, e events.Event) error {
		done <- e
		return nil
	})

	bus.Emit(context.Background(), events.New(events.EventModeration, "test", events.ModerationPayload{Action: events.ActionKick}))
	select {
	case e := <-done:
		if p, ok := e.Payload.(events.ModerationPayload); !ok || p.Action != events.ActionKick {
			t.Fatalf("Unexpected payload: %#v", e.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("Handler was not called")
	}

	bus.Stop()
	bus.Emit(context.Background(), events.New(events.EventModeration, "test", nil))
	select {
	case <-done:
		t.Fatalf("Handler called after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := events.NewBus()
	bus.SubscribeAll("sink", func(ctx context.Context, e events.Event) error { return nil })
	for _, typ := range events.AllTypes {
		if bus.HandlerCount(typ) != 1 {
			t.Fatalf("Expected one handler for %s", typ)
		}
	}

	bus.Unsubscribe(events.EventShutdown, "sink")
	if bus.HandlerCount(events.EventShutdown) != 0 {
		t.Fatalf("Unsubscribe did not remove the handler")
	}
	if bus.HandlerCount(events.EventPlayerLeft) != 1 {
		t.Fatalf("Unsubscribe removed too much")
	}
}
