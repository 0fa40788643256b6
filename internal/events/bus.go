package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/util"
)

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, event Event) error

// Bus is an asynchronous publish-subscribe hub. Handlers run on their own
// goroutine; a panicking or failing handler is logged and never affects
// the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	stopped  bool
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]handlerEntry),
		logger:   util.ComponentLogger("events"),
	}
}

// Subscribe registers handler for eventType under name.
func (b *Bus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handlerEntry{name: name, handler: handler})
	b.logger.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed")
}

// SubscribeAll registers handler for every known event type.
func (b *Bus) SubscribeAll(name string, handler HandlerFunc) {
	for _, t := range AllTypes {
		b.Subscribe(t, name, handler)
	}
}

// Unsubscribe removes every handler registered under name for eventType.
func (b *Bus) Unsubscribe(eventType EventType, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.handlers[eventType]
	kept := current[:0:0]
	for _, h := range current {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	b.handlers[eventType] = kept
}

// Emit publishes event without waiting for handlers.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		return
	}
	handlers := b.handlers[event.Type]
	if len(handlers) == 0 {
		return
	}

	b.logger.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlers)).
		Msg("emitting")

	for _, h := range handlers {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			_ = b.invoke(ctx, h, event)
		}()
	}
}

// EmitSync publishes event and waits for every handler. It returns the
// first handler error.
func (b *Bus) EmitSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return nil
	}
	handlers := append([]handlerEntry(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	var (
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)
	for _, h := range handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.invoke(ctx, h, event); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (b *Bus) invoke(ctx context.Context, h handlerEntry, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = h.handler(ctx, event); err != nil {
		b.logger.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
	return err
}

// Stop rejects further events and waits for in-flight handlers.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info().Msg("event bus stopped")
}

// HandlerCount returns the number of handlers registered for eventType.
func (b *Bus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
