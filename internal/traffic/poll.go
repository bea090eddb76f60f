package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/FairForge/marketplace/internal/loadtest"
)

// Upload polling defaults.
const (
	DefaultPollAttempts = 200
	DefaultPollInterval = time.Second
	pollSampleName      = "/en-US/developers/upload/:uuid"
)

// ErrPollTimeout is returned when an upload neither validates nor fails
// within the attempt ceiling.
var ErrPollTimeout = errors.New("upload did not complete")

const uploadStatusSchema = `{
	"type": "object",
	"required": ["upload"],
	"properties": {
		"upload": {"type": ["string", "null"]},
		"error": {"type": ["string", "null"]},
		"processed": {"type": "boolean"},
		"url": {"type": ["string", "null"]}
	}
}`

var uploadStatusLoader = gojsonschema.NewStringLoader(uploadStatusSchema)

// UploadStatus is the JSON document served at an upload's poll URL.
type UploadStatus struct {
	Upload     string          `json:"upload"`
	Validation json.RawMessage `json:"validation"`
	Error      string          `json:"error"`
	Processed  bool            `json:"processed"`
	URL        string          `json:"url"`
}

// Validated reports whether the status carries a validation result.
func (s *UploadStatus) Validated() bool {
	v := strings.TrimSpace(string(s.Validation))
	switch v {
	case "", "null", "{}", "[]", "false", `""`, "0":
		return false
	}
	return true
}

func decodeUploadStatus(body []byte) (*UploadStatus, error) {
	result, err := gojsonschema.Validate(uploadStatusLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}

	var status UploadStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Poller follows an upload's poll URL until the upload is validated, fails
// or the attempt ceiling is reached. Each poll is one sample.
type Poller struct {
	Client      *Client
	MaxAttempts int
	Interval    time.Duration

	// Sleep waits between attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller with the default ceiling and interval.
func NewPoller(client *Client) *Poller {
	return &Poller{
		Client:      client,
		MaxAttempts: DefaultPollAttempts,
		Interval:    DefaultPollInterval,
		Sleep:       sleepCtx,
	}
}

// Poll returns the upload identifier of the validated upload. Every
// failure it returns has already been recorded.
func (p *Poller) Poll(ctx context.Context, pollURL string) (string, error) {
	if p.MaxAttempts <= 0 {
		return "", fmt.Errorf("poll %s: no attempts allowed", pollURL)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last *Response
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := p.Client.Get(ctx, pollURL, NoRedirects(), Catch(), Name(pollSampleName))
		if err != nil {
			return "", err
		}

		if resp.StatusCode != http.StatusOK {
			return "", fail(resp, fmt.Errorf("Unexpected status: %d", resp.StatusCode))
		}
		status, err := decodeUploadStatus(resp.Body)
		if err != nil {
			return "", fail(resp, fmt.Errorf("Failed to parse JSON when polling. Status: %d: %w", resp.StatusCode, err))
		}
		if status.Error != "" {
			return "", fail(resp, fmt.Errorf("Unexpected error: %s", status.Error))
		}
		if status.Validated() {
			resp.Success()
			return status.Upload, nil
		}

		if attempt == p.MaxAttempts {
			last = resp
			break
		}
		resp.Success()
		if err := sleep(ctx, p.Interval); err != nil {
			return "", err
		}
	}

	return "", fail(last, fmt.Errorf("%w in %d tries", ErrPollTimeout, p.MaxAttempts))
}

func fail(resp *Response, err error) error {
	resp.Failure(err)
	return loadtest.Reported(err)
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
