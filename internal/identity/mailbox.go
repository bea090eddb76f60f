package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoEmail is returned when no matching message arrives in time.
var ErrNoEmail = errors.New("identity: no matching email")

// VerifyCodeHeader carries the confirmation code in verification mail.
const VerifyCodeHeader = "x-verify-code"

// Message is one email held by the mail service.
type Message struct {
	To       []Address         `json:"to"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text"`
	Headers  map[string]string `json:"headers"`
	Received time.Time         `json:"receivedAt"`
}

// Address is an email participant.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Header looks up a message header case-insensitively.
func (m Message) Header(name string) string {
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasVerifyCode matches messages carrying a confirmation code.
func HasVerifyCode(m Message) bool { return m.Header(VerifyCodeHeader) != "" }

// Mailbox is one restmail-style inbox.
type Mailbox struct {
	User       string
	BaseURL    string
	HTTPClient *http.Client

	Interval    time.Duration // between polls
	MaxAttempts int
	sleep       func(context.Context, time.Duration) error
}

// NewMailbox opens the inbox for user on the mail service at baseURL.
func NewMailbox(baseURL, user string) *Mailbox {
	return &Mailbox{
		User:        user,
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Interval:    time.Second,
		MaxAttempts: 60,
		sleep:       sleepCtx,
	}
}

// Address returns the email address delivered into this mailbox.
func (m *Mailbox) Address() string {
	host := "restmail.net"
	if u, err := url.Parse(m.BaseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return m.User + "@" + host
}

func (m *Mailbox) url() string {
	return m.BaseURL + "/mail/" + url.PathEscape(m.User)
}

// Fetch returns every message currently in the inbox.
func (m *Mailbox) Fetch(ctx context.Context) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch mail: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("decoding mail: %w", err)
	}
	return msgs, nil
}

// WaitForEmail polls the inbox until a message satisfies match, up to
// MaxAttempts polls Interval apart.
func (m *Mailbox) WaitForEmail(ctx context.Context, match func(Message) bool) (Message, error) {
	for attempt := 1; attempt <= m.MaxAttempts; attempt++ {
		msgs, err := m.Fetch(ctx)
		if err != nil {
			return Message{}, err
		}
		for _, msg := range msgs {
			if match(msg) {
				return msg, nil
			}
		}
		if attempt == m.MaxAttempts {
			break
		}
		if err := m.sleep(ctx, m.Interval); err != nil {
			return Message{}, err
		}
	}
	return Message{}, fmt.Errorf("%w for %s after %d attempts", ErrNoEmail, m.User, m.MaxAttempts)
}

// Clear deletes every message in the inbox.
func (m *Mailbox) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.url(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("clear mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("clear mail: status %d", resp.StatusCode)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
