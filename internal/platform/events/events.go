// Package events is the post-commit side-effect channel. Booking and
// episode mutations publish here after their transaction commits;
// subscribers (mail, push, calendar sync, intent reprojection) run
// asynchronously and their failures are logged, never propagated back
// into the transaction outcome.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published by the scheduling core.
const (
	AppointmentCreated   = "appointment.created"
	AppointmentCancelled = "appointment.cancelled"
	EpisodeReproject     = "episode.reproject"
	SchedulingEvent      = "scheduling.event"
)

// Event is a generic scheduling event.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Subscriber handles one delivered event.
type Subscriber interface {
	Handle(ctx context.Context, ev Event) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, ev Event) error

func (f SubscriberFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Dispatcher fans events out to subscribers from a single worker
// goroutine. Publish never blocks the caller beyond the buffer and
// never returns an error: by the time an event exists, the triggering
// transaction has already committed.
type Dispatcher struct {
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[string][]Subscriber

	ch   chan Event
	done chan struct{}
}

func NewDispatcher(logger zerolog.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		logger: logger,
		subs:   make(map[string][]Subscriber),
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Subscribe registers a subscriber for an event type. Must be called
// before the first Publish of that type to guarantee delivery.
func (d *Dispatcher) Subscribe(eventType string, s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[eventType] = append(d.subs[eventType], s)
}

// Publish enqueues an event. When the buffer is full the event is
// dropped with a log entry rather than blocking the request path.
func (d *Dispatcher) Publish(eventType string, payload map[string]interface{}) {
	ev := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	select {
	case d.ch <- ev:
	default:
		d.logger.Warn().Str("event_type", eventType).Msg("event buffer full, dropping event")
	}
}

func (d *Dispatcher) run() {
	for ev := range d.ch {
		d.deliver(ev)
	}
	close(d.done)
}

func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	subs := d.subs[ev.Type]
	d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range subs {
		if err := s.Handle(ctx, ev); err != nil {
			d.logger.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", ev.Type).
				Msg("event subscriber failed")
		}
	}
}

// Close drains pending events and stops the worker.
func (d *Dispatcher) Close() {
	close(d.ch)
	<-d.done
}
