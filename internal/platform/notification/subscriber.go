package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/events"
)

// Subscriber translates scheduling events into provider/patient mail
// and push messages. Recipient addressing uses the contact fields the
// publisher put in the payload; events without them are skipped.
type Subscriber struct {
	mailer Mailer
	pusher Pusher
}

func NewSubscriber(mailer Mailer, pusher Pusher) *Subscriber {
	return &Subscriber{mailer: mailer, pusher: pusher}
}

// Register attaches the subscriber to the dispatcher.
func (s *Subscriber) Register(d *events.Dispatcher) {
	d.Subscribe(events.AppointmentCreated, events.SubscriberFunc(s.onCreated))
	d.Subscribe(events.AppointmentCancelled, events.SubscriberFunc(s.onCancelled))
}

func (s *Subscriber) onCreated(ctx context.Context, ev events.Event) error {
	start, _ := ev.Payload["start_time"].(time.Time)
	duration, _ := ev.Payload["duration_minutes"].(int)
	location, _ := ev.Payload["location"].(string)

	ics := RenderICS(ICSEvent{
		UID:      ev.ID.String(),
		Summary:  "Appointment",
		Location: location,
		Start:    start,
		Duration: time.Duration(duration) * time.Minute,
	})

	subject := fmt.Sprintf("Appointment booked for %s", start.Format("2006-01-02 15:04"))
	body := fmt.Sprintf("An appointment was booked for %s.", start.Format(time.RFC1123))

	var firstErr error
	if email, _ := ev.Payload["patient_email"].(string); email != "" {
		if err := s.mailer.SendEmail(ctx, email, subject, body, ics); err != nil {
			firstErr = err
		}
	}
	if email, _ := ev.Payload["provider_email"].(string); email != "" {
		if err := s.mailer.SendEmail(ctx, email, subject, body, ics); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if userID, _ := ev.Payload["provider_id"].(string); userID != "" {
		if err := s.pusher.Push(ctx, userID, "New appointment", body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Subscriber) onCancelled(ctx context.Context, ev events.Event) error {
	start, _ := ev.Payload["start_time"].(time.Time)
	subject := "Appointment cancelled"
	body := fmt.Sprintf("The appointment on %s was cancelled.", start.Format(time.RFC1123))

	var firstErr error
	for _, key := range []string{"patient_email", "provider_email"} {
		if email, _ := ev.Payload[key].(string); email != "" {
			if err := s.mailer.SendEmail(ctx, email, subject, body, nil); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if userID, _ := ev.Payload["provider_id"].(string); userID != "" {
		if err := s.pusher.Push(ctx, userID, subject, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
