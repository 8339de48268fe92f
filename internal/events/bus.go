package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/opencex/sentinel/pkg/metrics"
)

// Handler consumes one event. Handlers should be fast; a slow handler
// delays only its own delivery, never the publisher or sibling handlers.
// A returned error is logged and swallowed, a panic is recovered.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher keyed by event kind.
// Delivery is fire-and-forget, at-most-once: each handler runs as an
// independent goroutine, failures are isolated per handler, and nothing
// is retried or persisted.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string][]subscription

	// In-flight handler goroutines, tracked so Drain can await them.
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBus creates an event bus. The context handed to handlers is
// cancelled by Close.
func NewBus(logger *zap.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		logger: logger,
		subs:   make(map[string][]subscription),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers a named handler under an event kind. Multiple
// handlers may share a kind; no ordering is guaranteed among them.
func (b *Bus) Subscribe(kind, name string, handler Handler) {
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], subscription{name: name, handler: handler})
	b.mu.Unlock()
	b.logger.Info("subscribed handler",
		zap.String("kind", kind),
		zap.String("handler", name))
}

// Publish schedules every handler registered for the event's kind as an
// independent goroutine and returns immediately. Publishers never observe
// handler completion or results. Publishing to a kind with no subscribers
// is a no-op.
func (b *Bus) Publish(event Event) {
	kind := event.Kind()
	metrics.BusPublished.WithLabelValues(kind).Inc()

	b.mu.RLock()
	handlers := append([]subscription(nil), b.subs[kind]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no subscribers for event", zap.String("kind", kind))
		return
	}

	for _, sub := range handlers {
		b.inflight.Add(1)
		go b.deliver(kind, sub, event)
	}
}

func (b *Bus) deliver(kind string, sub subscription, event Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			metrics.BusHandlerFailures.WithLabelValues(kind, sub.name).Inc()
			b.logger.Error("event handler panic",
				zap.String("kind", kind),
				zap.String("handler", sub.name),
				zap.Any("recover", r))
		}
	}()

	if err := sub.handler(b.ctx, event); err != nil {
		metrics.BusHandlerFailures.WithLabelValues(kind, sub.name).Inc()
		b.logger.Error("event handler failed",
			zap.String("kind", kind),
			zap.String("handler", sub.name),
			zap.Error(err))
		return
	}
	metrics.BusDelivered.WithLabelValues(kind, sub.name).Inc()
}

// Drain blocks until all in-flight handler goroutines complete or ctx
// expires.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the context handed to handlers, then drains. Cancelling
// one handler has no effect on already-completed deliveries.
func (b *Bus) Close(ctx context.Context) error {
	b.cancel()
	return b.Drain(ctx)
}
