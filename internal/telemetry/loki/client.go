// Package loki pushes print history entries to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"print-relay/internal/audit"
	"print-relay/internal/audit/domain"
)

// DefaultJob is the job label on every pushed stream.
const DefaultJob = "print-relay"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// line is the JSON log line. Sender and message text stay out of labels to keep stream cardinality low.
type line struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client pushes entries to one Loki instance.
type Client struct {
	baseURL    string
	job        string
	httpClient *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). Returns nil when baseURL is empty.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		job:        DefaultJob,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Push sends e as one log line labelled with its status and failure kind.
func (c *Client) Push(ctx context.Context, e *domain.LogEntry) error {
	if e == nil {
		return nil
	}
	body, err := json.Marshal(line{ID: e.ID, Source: e.Source, Status: e.Status, Message: e.Message})
	if err != nil {
		return err
	}
	labels := map[string]string{"status": e.Status}
	if kind := audit.KindOf(e.Status); kind != audit.KindNone {
		labels["kind"] = kind
	}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return c.PushLine(ctx, ts, string(body), labels)
}

// PushLine sends a single log line at timestamp with labels added to the job label.
// Returns an error if the HTTP request fails or Loki returns non-2xx.
func (c *Client) PushLine(ctx context.Context, timestamp time.Time, logLine string, labels map[string]string) error {
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), logLine}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
