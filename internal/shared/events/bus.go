package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gob-chaco/nodo/internal/shared/types"
	"github.com/google/uuid"
)

// Event is the envelope carried on the bus.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Actor information
	ActorID   types.ID `json:"actor_id"`
	ActorType string   `json:"actor_type"` // operador, referente, system

	// Event data
	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Handler processes a delivered event
type Handler func(ctx context.Context, event Event) error

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for events whose type matches the
	// pattern. A trailing ".*" matches any suffix.
	Subscribe(pattern string, consumerName string, handler Handler)

	// Close stops delivery
	Close()
}

type subscription struct {
	pattern  string
	consumer string
	handler  Handler
}

// Bus is an in-process event bus. Delivery is asynchronous and
// best-effort: handler errors are logged, never propagated to the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
	wg     sync.WaitGroup
	closed bool
}

// NewBus creates an in-process event bus
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish delivers the event to every matching subscriber
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	for _, sub := range b.subs {
		if !matches(sub.pattern, event.Type) {
			continue
		}
		sub := sub
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := sub.handler(context.WithoutCancel(ctx), event); err != nil {
				b.logger.Error("event handler failed",
					"consumer", sub.consumer,
					"event_type", event.Type,
					"event_id", event.ID,
					"error", err,
				)
			}
		}()
	}
	return nil
}

// Subscribe registers a handler for a type pattern
func (b *Bus) Subscribe(pattern string, consumerName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, consumer: consumerName, handler: handler})
}

// Close waits for in-flight deliveries to finish
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func matches(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}
	return false
}

var _ EventBus = (*Bus)(nil)
