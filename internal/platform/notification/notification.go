// Package notification holds the outbound messaging collaborators the
// scheduling core calls after commit: email with calendar attachments
// and device push. The core depends only on the interfaces; failures
// are logged by the event dispatcher and never affect bookings.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mailer sends an email, optionally with an ICS calendar attachment.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string, ics []byte) error
}

// Pusher delivers a push notification to a user's devices.
type Pusher interface {
	Push(ctx context.Context, userID, title, body string) error
}

// ---------------------------------------------------------------------------
// ICS generation
// ---------------------------------------------------------------------------

// ICSEvent carries the fields rendered into a calendar attachment.
type ICSEvent struct {
	UID      string
	Summary  string
	Location string
	Start    time.Time
	Duration time.Duration
}

// RenderICS produces a minimal single-event iCalendar document.
func RenderICS(ev ICSEvent) []byte {
	var b strings.Builder
	stamp := func(t time.Time) string { return t.UTC().Format("20060102T150405Z") }

	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//care-server//scheduling//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", ev.UID)
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", stamp(time.Now()))
	fmt.Fprintf(&b, "DTSTART:%s\r\n", stamp(ev.Start))
	fmt.Fprintf(&b, "DTEND:%s\r\n", stamp(ev.Start.Add(ev.Duration)))
	fmt.Fprintf(&b, "SUMMARY:%s\r\n", ev.Summary)
	if ev.Location != "" {
		fmt.Fprintf(&b, "LOCATION:%s\r\n", ev.Location)
	}
	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

// ---------------------------------------------------------------------------
// Mock collaborators (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
	ICS     []byte
}

// MockMailer is a test double for Mailer.
type MockMailer struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockMailer) SendEmail(_ context.Context, to, subject, body string, ics []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body, ICS: ics})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockMailer) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// PushCall records a single call to Push.
type PushCall struct {
	UserID string
	Title  string
	Body   string
}

// MockPusher is a test double for Pusher.
type MockPusher struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
}

// Push records the call and optionally returns an error.
func (m *MockPusher) Push(_ context.Context, userID, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{UserID: userID, Title: title, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded push calls.
func (m *MockPusher) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}
