// Package relay posts messages to the downstream print-relay endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the relay call timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// Poster sends a message to the printer. Implemented by *Client; faked in tests.
type Poster interface {
	// Post returns nil on success, *RejectedError for an unexpected status, and *ConnError for transport failures.
	Post(ctx context.Context, message string) error
}

// Client posts {"message": ...} to the relay URL.
type Client struct {
	URL           string
	SuccessStatus int
	HTTPClient    *http.Client
}

// NewClient returns a relay client. successStatus <= 0 means 200; timeout <= 0 means DefaultTimeout.
func NewClient(url string, successStatus int, timeout time.Duration) *Client {
	if successStatus <= 0 {
		successStatus = http.StatusOK
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		URL:           url,
		SuccessStatus: successStatus,
		HTTPClient:    &http.Client{Timeout: timeout},
	}
}

type payload struct {
	Message string `json:"message"`
}

// Post sends message to the relay. Success is an exact match on SuccessStatus.
func (c *Client) Post(ctx context.Context, message string) error {
	raw, err := json.Marshal(payload{Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return &ConnError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &ConnError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != c.SuccessStatus {
		return &RejectedError{StatusCode: resp.StatusCode}
	}
	return nil
}

var _ Poster = (*Client)(nil)
