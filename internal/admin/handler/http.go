// Package handler serves admin login.
package handler

import (
	"encoding/json"
	"log"
	"mime"
	"net/http"
	"time"

	"print-relay/internal/platform/httpx"
)

// Subject is the token subject for the single admin principal.
const Subject = "admin"

// SecretMatcher checks the admin secret.
type SecretMatcher interface {
	Matches(candidate string) bool
}

// TokenIssuer signs admin session tokens.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// LoginRequest is the login body (form field or JSON).
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler serves admin authentication.
type Handler struct {
	secret SecretMatcher
	tokens TokenIssuer
}

// NewHandler returns the admin handler.
func NewHandler(secret SecretMatcher, tokens TokenIssuer) *Handler {
	return &Handler{secret: secret, tokens: tokens}
}

// Login answers POST /admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	httpx.LimitBody(w, r)
	password, ok := decodePassword(r)
	if !ok {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if password == "" || !h.secret.Matches(password) {
		log.Printf("admin: failed login from %s", httpx.ClientIP(r))
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid password"})
		return
	}
	token, exp, err := h.tokens.Issue(Subject)
	if err != nil {
		log.Printf("admin: issue token: %v", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not issue token"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp.UTC()})
}

func decodePassword(r *http.Request) (string, bool) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", false
		}
		return req.Password, true
	}
	if err := r.ParseForm(); err != nil {
		return "", false
	}
	return r.PostForm.Get("password"), true
}
