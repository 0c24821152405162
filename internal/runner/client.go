// Package runner is the HTTP client for the backend service that performs the
// actual image processing and uploads the finished archive.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Request is the job description forwarded to the runner.
type Request struct {
	JobID     string          `json:"job_id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// StatusError reports a non-success runner response. The body text is kept
// verbatim so it can be surfaced as the job's error cause.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runner returned %d: %s", e.Code, e.Body)
}

type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *http.Client
}

func NewClient(base, token string, timeout time.Duration) *Client {
	return &Client{
		base:    strings.TrimRight(base, "/"),
		token:   token,
		timeout: timeout,
		http:    &http.Client{},
	}
}

// Generate posts the job to the runner and returns the raw success body.
// A hung runner is cut off by the configured timeout rather than left to
// occupy the job until its record expires.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal runner request")
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build runner request")
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read runner response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
