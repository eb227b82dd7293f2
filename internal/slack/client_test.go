package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_ReplyViaResponseURL(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("response_url posts must not carry the bot token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("xoxb-token")
	if err := c.Reply(context.Background(), Message{ResponseURL: srv.URL, Channel: "C1"}, "✅ Printed!"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got["text"] != "✅ Printed!" || got["response_type"] != "ephemeral" {
		t.Errorf("payload = %v", got)
	}
}

func TestClient_ReplyViaPostMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer xoxb-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("xoxb-token")
	c.APIURL = srv.URL
	if err := c.Reply(context.Background(), Message{Channel: "C1"}, "hi"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got["channel"] != "C1" || got["text"] != "hi" {
		t.Errorf("payload = %v", got)
	}
}

func TestClient_PostMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()
	c := NewClient("xoxb-token")
	c.APIURL = srv.URL
	if err := c.PostMessage(context.Background(), "C404", "hi"); err == nil {
		t.Error("expected chat.postMessage error")
	}
}

func TestClient_ResponseURLFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	if err := NewClient("").PostResponse(context.Background(), srv.URL, "hi"); err == nil {
		t.Error("expected response_url error")
	}
}

func TestClient_NoReplyTarget(t *testing.T) {
	c := NewClient("")
	if err := c.Reply(context.Background(), Message{Channel: "C1"}, "hi"); !errors.Is(err, ErrNoReplyTarget) {
		t.Errorf("Reply without token = %v, want ErrNoReplyTarget", err)
	}
}
