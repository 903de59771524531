// Package events is the in-process bus that fans allocation and season
// changes out to caches, notifiers and metrics.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	SeasonCreated     = "season.created"
	SeasonOpened      = "season.opened"
	SeasonClosed      = "season.closed"
	SeasonDeleted     = "season.deleted"
	WeekUpdated       = "week.updated"
	BookingRequested  = "booking.requested"
	BookingSuperseded = "booking.superseded"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	SeasonID  int64
	WeekID    int64
	BookingID int64
	UserID    string
	// Awarded and Cancelled carry booking ids finalized by a season close.
	Awarded   []int64
	Cancelled []int64
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher accepts events.
type Publisher interface {
	Publish(event Event)
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger
// when it is not nil.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// in subscription order.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Error().Err(err).Str("event", event.Type).Int64("season_id", event.SeasonID).Msg("event handler failed")
		}
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
