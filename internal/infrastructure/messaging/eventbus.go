// Package messaging implements the in-process event bus that carries
// achievement lifecycle events from the engine to their handlers.
package messaging

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by every call made after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// InMemoryEventBusConfig configures InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers off the publisher's goroutine, at most
	// WorkerPoolSize at a time.
	AsyncMode      bool
	WorkerPoolSize int
	Logger         *logger.Logger
}

// DefaultInMemoryEventBusConfig runs handlers synchronously, so projections
// are consistent once a command returns.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{WorkerPoolSize: 10}
}

// Stats are the bus counters since start.
type Stats struct {
	Published int64 `json:"published"`
	Handled   int64 `json:"handled"`
	Failed    int64 `json:"failed"`
}

// InMemoryEventBus routes events to handlers by type. Handler errors and
// panics are logged and counted, never returned to the publisher: the
// transition they follow is already committed.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	async   bool
	workers errgroup.Group
	log     *logger.Logger

	published, handled, failed atomic.Int64
}

var (
	_ shared.EventPublisher  = (*InMemoryEventBus)(nil)
	_ shared.EventSubscriber = (*InMemoryEventBus)(nil)
)

// NewInMemoryEventBus creates a bus.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	b := &InMemoryEventBus{
		byType: make(map[shared.EventType][]shared.EventHandler),
		async:  cfg.AsyncMode,
		log:    cfg.Logger.With(logger.Component("eventbus")),
	}
	b.workers.SetLimit(cfg.WorkerPoolSize)
	return b
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(func() { b.byType[eventType] = append(b.byType[eventType], handler) }, handler)
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(func() { b.wildcard = append(b.wildcard, handler) }, handler)
}

func (b *InMemoryEventBus) subscribe(add func(), handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers event to its typed handlers, then the wildcard ones.
// In async mode Publish blocks only while every worker is busy.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	// Held through dispatch so Close cannot start waiting mid-publish.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrEventBusClosed
	}

	b.published.Add(1)
	for _, h := range slices.Concat(b.byType[event.EventType()], b.wildcard) {
		if b.async {
			b.workers.Go(func() error {
				b.run(event, h)
				return nil
			})
			continue
		}
		b.run(event, h)
	}
	return nil
}

func (b *InMemoryEventBus) run(event shared.Event, h shared.EventHandler) {
	b.handled.Add(1)
	if err := safeCall(event, h); err != nil {
		b.failed.Add(1)
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.AchievementID(event.AggregateID()),
			logger.Err(err),
		)
	}
}

func safeCall(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return h(event)
}

// Stats returns the current counters.
func (b *InMemoryEventBus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Handled:   b.handled.Load(),
		Failed:    b.failed.Load(),
	}
}

// Close rejects further use and waits for in-flight async handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	_ = b.workers.Wait()
	s := b.Stats()
	b.log.Info("event bus closed",
		logger.Int64("published", s.Published),
		logger.Int64("failed", s.Failed),
	)
	return nil
}
