// Package slack normalizes Slack webhook payloads, verifies request
// signatures, and posts replies.
package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind classifies an inbound request.
type Kind int

const (
	// KindIgnored needs no action (bot messages, retries, unsupported events).
	KindIgnored Kind = iota
	// KindURLVerification must echo Challenge.
	KindURLVerification
	// KindMessage carries a user message to print.
	KindMessage
)

// Message is a user message normalized from either an event callback or a slash command.
type Message struct {
	PrincipalID string
	DisplayName string
	Text        string
	// ResponseURL is set for slash commands.
	ResponseURL string
	// Channel is the conversation to reply in when there is no ResponseURL.
	Channel string
}

// Source returns the history label for m.
func (m Message) Source() string {
	return fmt.Sprintf("Slack: %s (%s)", m.DisplayName, m.PrincipalID)
}

// Inbound is a parsed request.
type Inbound struct {
	Kind      Kind
	Challenge string
	Message   Message
}

// ErrMalformed is returned for bodies that are neither a known JSON envelope nor a slash command.
var ErrMalformed = errors.New("slack: malformed payload")

var mentionRE = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

type envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     *struct {
		Type        string `json:"type"`
		Subtype     string `json:"subtype"`
		User        string `json:"user"`
		Text        string `json:"text"`
		Channel     string `json:"channel"`
		ChannelType string `json:"channel_type"`
		BotID       string `json:"bot_id"`
		Username    string `json:"username"`
	} `json:"event"`
}

// Parse normalizes body. contentType selects JSON (Events API) or form (slash command) decoding.
func Parse(contentType string, body []byte) (Inbound, error) {
	if strings.HasPrefix(strings.TrimSpace(contentType), "application/json") || looksLikeJSON(body) {
		return parseJSON(body)
	}
	return parseForm(body)
}

func parseJSON(body []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case "url_verification":
		return Inbound{Kind: KindURLVerification, Challenge: env.Challenge}, nil
	case "event_callback":
	default:
		return Inbound{Kind: KindIgnored}, nil
	}
	ev := env.Event
	if ev == nil {
		return Inbound{Kind: KindIgnored}, nil
	}
	// A mention in a channel arrives as both app_mention and message; only
	// direct messages are taken from the message stream.
	switch {
	case ev.Type == "app_mention":
	case ev.Type == "message" && ev.ChannelType == "im":
	default:
		return Inbound{Kind: KindIgnored}, nil
	}
	if ev.BotID != "" || ev.Subtype != "" || ev.User == "" {
		return Inbound{Kind: KindIgnored}, nil
	}
	text := strings.TrimSpace(mentionRE.ReplaceAllString(ev.Text, ""))
	if text == "" {
		return Inbound{Kind: KindIgnored}, nil
	}
	name := ev.Username
	if name == "" {
		name = ev.User
	}
	return Inbound{Kind: KindMessage, Message: Message{
		PrincipalID: ev.User,
		DisplayName: name,
		Text:        text,
		Channel:     ev.Channel,
	}}, nil
}

func parseForm(body []byte) (Inbound, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	userID := form.Get("user_id")
	if userID == "" {
		return Inbound{}, ErrMalformed
	}
	name := form.Get("user_name")
	if name == "" {
		name = userID
	}
	return Inbound{Kind: KindMessage, Message: Message{
		PrincipalID: userID,
		DisplayName: name,
		Text:        strings.TrimSpace(form.Get("text")),
		ResponseURL: form.Get("response_url"),
		Channel:     form.Get("channel_id"),
	}}, nil
}

func looksLikeJSON(body []byte) bool {
	s := strings.TrimSpace(string(body))
	return strings.HasPrefix(s, "{")
}
