// Package calendar synchronizes booked appointments with a provider's
// external calendar. It is a post-commit collaborator: the booking
// transaction never waits on it.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Sync is the boundary the scheduling core publishes against.
type Sync interface {
	CreateEvent(ctx context.Context, providerID string, ev EventInput) (string, error)
	DeleteEvent(ctx context.Context, providerID, eventID string) error
	// RecreateFreePlaceholder restores the "free" marker event for a
	// slot that was sourced from the external calendar and has been
	// freed again by a cancellation.
	RecreateFreePlaceholder(ctx context.Context, providerID string, ev EventInput) (string, error)
}

// EventInput describes a calendar event to create.
type EventInput struct {
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Client talks to the calendar gateway over REST.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateEvent(ctx context.Context, providerID string, ev EventInput) (string, error) {
	return c.post(ctx, fmt.Sprintf("%s/providers/%s/events", c.baseURL, providerID), ev)
}

func (c *Client) DeleteEvent(ctx context.Context, providerID, eventID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/providers/%s/events/%s", c.baseURL, providerID, eventID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("calendar delete: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) RecreateFreePlaceholder(ctx context.Context, providerID string, ev EventInput) (string, error) {
	ev.Summary = "free"
	return c.post(ctx, fmt.Sprintf("%s/providers/%s/events", c.baseURL, providerID), ev)
}

func (c *Client) post(ctx context.Context, url string, ev EventInput) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("calendar create: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ---------------------------------------------------------------------------
// Mock (test double)
// ---------------------------------------------------------------------------

// MockSync records calendar calls for tests.
type MockSync struct {
	mu           sync.Mutex
	Created      []EventInput
	Deleted      []string
	Placeholders []EventInput
	ShouldFail   bool
}

func (m *MockSync) CreateEvent(_ context.Context, _ string, ev EventInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return "", errors.New("calendar unavailable")
	}
	m.Created = append(m.Created, ev)
	return fmt.Sprintf("evt-%d", len(m.Created)), nil
}

func (m *MockSync) DeleteEvent(_ context.Context, _, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("calendar unavailable")
	}
	m.Deleted = append(m.Deleted, eventID)
	return nil
}

func (m *MockSync) RecreateFreePlaceholder(_ context.Context, _ string, ev EventInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return "", errors.New("calendar unavailable")
	}
	m.Placeholders = append(m.Placeholders, ev)
	return fmt.Sprintf("ph-%d", len(m.Placeholders)), nil
}
