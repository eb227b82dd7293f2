package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	defaultAPIURL  = "https://slack.com/api"
)

// ErrNoReplyTarget is returned when a message has no response_url and no bot token is configured.
var ErrNoReplyTarget = errors.New("slack: no reply target")

// Client posts replies to Slack.
type Client struct {
	BotToken   string
	APIURL     string
	HTTPClient *http.Client
}

// NewClient returns a client. botToken may be empty; then only response_url replies work.
func NewClient(botToken string) *Client {
	if botToken == "" {
		log.Printf("slack: SLACK_BOT_TOKEN not set; event replies disabled")
	}
	return &Client{
		BotToken:   botToken,
		APIURL:     defaultAPIURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Reply answers m through its response_url when present, else chat.postMessage.
func (c *Client) Reply(ctx context.Context, m Message, text string) error {
	if m.ResponseURL != "" {
		return c.PostResponse(ctx, m.ResponseURL, text)
	}
	if c.BotToken == "" || m.Channel == "" {
		return ErrNoReplyTarget
	}
	return c.PostMessage(ctx, m.Channel, text)
}

// PostResponse sends an ephemeral follow-up to a slash command response_url.
func (c *Client) PostResponse(ctx context.Context, responseURL, text string) error {
	payload := map[string]string{"response_type": "ephemeral", "text": text}
	resp, err := c.postJSON(ctx, responseURL, "", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("slack: response_url failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// PostMessage calls chat.postMessage.
func (c *Client) PostMessage(ctx context.Context, channel, text string) error {
	payload := map[string]string{"channel": channel, "text": text}
	resp, err := c.postJSON(ctx, c.APIURL+"/chat.postMessage", c.BotToken, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("slack: decode chat.postMessage: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack: chat.postMessage: %s", out.Error)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url, token string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack: post: %w", err)
	}
	return resp, nil
}
