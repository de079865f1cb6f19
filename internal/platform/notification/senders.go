package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"
)

// SMTPMailer delivers mail through a plain SMTP relay. Messages with an
// ICS payload go out as multipart/mixed with a calendar attachment.
type SMTPMailer struct {
	addr string
	from string
}

func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
}

func (m *SMTPMailer) SendEmail(_ context.Context, to, subject, body string, ics []byte) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")

	if len(ics) == 0 {
		msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		msg.WriteString(body)
	} else {
		const boundary = "care-server-boundary"
		fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)
		fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, body)
		fmt.Fprintf(&msg, "--%s\r\n", boundary)
		msg.WriteString("Content-Type: text/calendar; method=REQUEST\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("Content-Disposition: attachment; filename=appointment.ics\r\n\r\n")
		msg.WriteString(base64.StdEncoding.EncodeToString(ics))
		fmt.Fprintf(&msg, "\r\n--%s--\r\n", boundary)
	}

	return smtp.SendMail(m.addr, nil, m.from, []string{to}, msg.Bytes())
}

// HTTPPusher forwards push notifications to the push gateway over REST.
type HTTPPusher struct {
	baseURL string
	http    *http.Client
}

func NewHTTPPusher(baseURL string) *HTTPPusher {
	return &HTTPPusher{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPPusher) Push(ctx context.Context, userID, title, body string) error {
	if p.baseURL == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"title":   title,
		"body":    body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway: unexpected status %d", resp.StatusCode)
	}
	return nil
}
