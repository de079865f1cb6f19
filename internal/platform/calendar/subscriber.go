package calendar

import (
	"context"
	"time"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/events"
)

// Subscriber mirrors appointment lifecycle events into the provider's
// external calendar.
type Subscriber struct {
	sync Sync
}

func NewSubscriber(sync Sync) *Subscriber {
	return &Subscriber{sync: sync}
}

// Register attaches the subscriber to the dispatcher.
func (s *Subscriber) Register(d *events.Dispatcher) {
	d.Subscribe(events.AppointmentCreated, events.SubscriberFunc(s.onCreated))
	d.Subscribe(events.AppointmentCancelled, events.SubscriberFunc(s.onCancelled))
}

func (s *Subscriber) onCreated(ctx context.Context, ev events.Event) error {
	providerID, _ := ev.Payload["provider_id"].(string)
	if providerID == "" {
		return nil
	}
	start, _ := ev.Payload["start_time"].(time.Time)
	duration, _ := ev.Payload["duration_minutes"].(int)
	location, _ := ev.Payload["location"].(string)

	_, err := s.sync.CreateEvent(ctx, providerID, EventInput{
		Summary:  "Appointment",
		Location: location,
		Start:    start,
		End:      start.Add(time.Duration(duration) * time.Minute),
	})
	return err
}

func (s *Subscriber) onCancelled(ctx context.Context, ev events.Event) error {
	providerID, _ := ev.Payload["provider_id"].(string)
	if providerID == "" {
		return nil
	}

	if eventID, _ := ev.Payload["calendar_event_id"].(string); eventID != "" {
		if err := s.sync.DeleteEvent(ctx, providerID, eventID); err != nil {
			return err
		}
	}

	// A slot imported from the external calendar gets its "free"
	// placeholder back once the booking is gone.
	if source, _ := ev.Payload["slot_source"].(string); source == "external" {
		start, _ := ev.Payload["start_time"].(time.Time)
		duration, _ := ev.Payload["duration_minutes"].(int)
		_, err := s.sync.RecreateFreePlaceholder(ctx, providerID, EventInput{
			Start: start,
			End:   start.Add(time.Duration(duration) * time.Minute),
		})
		return err
	}
	return nil
}
