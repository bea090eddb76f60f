// Package identity creates and removes throwaway accounts on a Firefox
// Accounts style identity provider, confirming them through a restmail
// style mailbox.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Session is an account session returned by the auth server.
type Session struct {
	UID   string `json:"uid"`
	Token string `json:"sessionToken"`

	client *Client
}

// Client talks to the auth server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates an auth server client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx reply from the auth server.
type APIError struct {
	Path       string
	StatusCode int
	Errno      int    `json:"errno"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity %s: status %d errno %d: %s", e.Path, e.StatusCode, e.Errno, e.Message)
	}
	return fmt.Sprintf("identity %s: status %d", e.Path, e.StatusCode)
}

type credentials struct {
	Email  string `json:"email"`
	AuthPW string `json:"authPW"`
}

// CreateAccount registers email with password. The password itself never
// leaves the process.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*Session, error) {
	authPW, err := AuthPW(email, password)
	if err != nil {
		return nil, err
	}

	session := &Session{client: c}
	if err := c.post(ctx, "/account/create", credentials{Email: email, AuthPW: authPW}, session); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if session.UID == "" {
		return nil, fmt.Errorf("create account: response carried no uid")
	}
	return session, nil
}

// VerifyEmailCode confirms the account's email address.
func (s *Session) VerifyEmailCode(ctx context.Context, code string) error {
	body := map[string]string{"uid": s.UID, "code": code}
	if err := s.client.post(ctx, "/recovery_email/verify_code", body, nil); err != nil {
		return fmt.Errorf("verify email code: %w", err)
	}
	return nil
}

// DestroyAccount removes the account.
func (c *Client) DestroyAccount(ctx context.Context, email, password string) error {
	authPW, err := AuthPW(email, password)
	if err != nil {
		return err
	}
	if err := c.post(ctx, "/account/destroy", credentials{Email: email, AuthPW: authPW}, nil); err != nil {
		return fmt.Errorf("destroy account: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Path: path, StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		apiErr.Path, apiErr.StatusCode = path, resp.StatusCode
		return apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
