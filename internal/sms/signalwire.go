// Package sms sends outbound text messages through the SignalWire
// compatibility (LaML) REST API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Sender delivers one SMS and returns the gateway's message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// SignalWireClient sends SMS via the SignalWire Messages endpoint.
type SignalWireClient struct {
	ProjectID  string
	Token      string
	SpaceURL   string
	From       string
	HTTPClient *http.Client
}

// NewSignalWireClient returns a client for the given space (e.g. "example.signalwire.com").
func NewSignalWireClient(projectID, token, spaceURL, from string) *SignalWireClient {
	return &SignalWireClient{
		ProjectID:  projectID,
		Token:      token,
		SpaceURL:   spaceURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewSender returns a SignalWire client when every credential is set, otherwise a no-op sender.
func NewSender(projectID, token, spaceURL, from string) Sender {
	if projectID == "" || token == "" || spaceURL == "" || from == "" {
		log.Printf("sms: SignalWire credentials not configured; outbound SMS disabled")
		return NoopSender{}
	}
	return NewSignalWireClient(projectID, token, spaceURL, from)
}

// Send posts one message. The body is not logged.
func (c *SignalWireClient) Send(ctx context.Context, to, body string) (string, error) {
	if c.ProjectID == "" || c.Token == "" {
		return "", errors.New("sms: SignalWire credentials not configured")
	}
	form := url.Values{}
	form.Set("From", c.From)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.ProjectID, c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms: send to %s: %w", to, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(raw))
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("sms: decode response: %w", err)
	}
	return out.SID, nil
}

func (c *SignalWireClient) messagesURL() string {
	base := strings.TrimRight(c.SpaceURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/api/laml/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(c.ProjectID))
}

// NoopSender drops messages. Used when the gateway is not configured.
type NoopSender struct{}

// Send logs the recipient and returns an empty id.
func (NoopSender) Send(ctx context.Context, to, body string) (string, error) {
	log.Printf("sms: gateway not configured, dropping reply to %s", to)
	return "", nil
}
