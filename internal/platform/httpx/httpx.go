// Package httpx holds small helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
)

// MaxBodyBytes caps inbound webhook and form bodies.
const MaxBodyBytes = 1 << 20

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpx: write json: %v", err)
	}
}

// WriteText writes a plain-text response with status.
func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Printf("httpx: write text: %v", err)
	}
}

// ClientIP returns the first X-Forwarded-For hop when present, else the remote address without port.
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}

// LimitBody caps r's body at MaxBodyBytes.
func LimitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
}
