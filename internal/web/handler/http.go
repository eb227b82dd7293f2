// Package handler serves the web portal's submission API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"net/http"

	"print-relay/internal/audit"
	"print-relay/internal/dispatch"
	"print-relay/internal/platform/httpx"
	"print-relay/internal/policy/engine"
)

// Status strings returned to the portal.
const (
	StatusPrinted = "✅ PRINT_SUCCESS: Message queued"
	StatusDenied  = "❌ ACCESS_DENIED: Invalid Keycode"
	StatusEmpty   = "❌ EMPTY_MESSAGE: Nothing to print"
)

// SecretMatcher checks the shared keycode.
type SecretMatcher interface {
	Matches(candidate string) bool
}

// Relayer performs one relay call synchronously and records its outcome.
type Relayer interface {
	Relay(ctx context.Context, message, source string) dispatch.Result
}

// Submission is the request body (form fields or JSON).
type Submission struct {
	Password string `json:"password"`
	Message  string `json:"message"`
}

// Response is returned for every submission.
type Response struct {
	Status string `json:"status"`
}

// Handler serves the portal endpoints.
type Handler struct {
	secret    SecretMatcher
	admission engine.Evaluator
	relay     Relayer
	audit     audit.AuditLogger
	limit     int
}

// NewHandler returns the web handler. limit is reported to the portal; enforcement is the admission policy's.
func NewHandler(secret SecretMatcher, admission engine.Evaluator, relay Relayer, auditLogger audit.AuditLogger, limit int) *Handler {
	return &Handler{secret: secret, admission: admission, relay: relay, audit: auditLogger, limit: limit}
}

// Info answers GET / with the portal settings.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"character_limit": h.limit})
}

// Submit answers POST /. The relay call is made before responding.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	httpx.LimitBody(w, r)
	sub, err := decodeSubmission(r)
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, Response{Status: "❌ BAD_REQUEST: " + err.Error()})
		return
	}
	ctx := r.Context()
	source := httpx.ClientIP(r)

	if !h.secret.Matches(sub.Password) {
		h.log(ctx, source, audit.StatusDenied, sub.Message)
		httpx.WriteJSON(w, http.StatusUnauthorized, Response{Status: StatusDenied})
		return
	}
	if sub.Message == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, Response{Status: StatusEmpty})
		return
	}

	if h.admission != nil {
		adm, err := h.admission.Admit(ctx, engine.ChannelWeb, sub.Message)
		if err != nil {
			log.Printf("web: admission failed: %v", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: "❌ UNAVAILABLE: Try again later"})
			return
		}
		if !adm.Allowed {
			h.log(ctx, source, audit.StatusLimitExceeded, sub.Message)
			httpx.WriteJSON(w, http.StatusRequestEntityTooLarge, Response{
				Status: fmt.Sprintf("❌ LIMIT_EXCEEDED: Message exceeds %d characters", adm.Limit),
			})
			return
		}
	}

	res := h.relay.Relay(ctx, sub.Message, source)
	switch res.Outcome {
	case dispatch.OutcomeSuccess:
		httpx.WriteJSON(w, http.StatusOK, Response{Status: StatusPrinted})
	case dispatch.OutcomeRejected:
		httpx.WriteJSON(w, http.StatusBadGateway, Response{Status: fmt.Sprintf("❌ HA_ERR: Error: %d", res.StatusCode)})
	default:
		httpx.WriteJSON(w, http.StatusBadGateway, Response{Status: fmt.Sprintf("❌ CONN_FAIL: %v", res.Err)})
	}
}

func decodeSubmission(r *http.Request) (Submission, error) {
	var sub Submission
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			return sub, fmt.Errorf("invalid JSON")
		}
		return sub, nil
	}
	if err := r.ParseForm(); err != nil {
		return sub, fmt.Errorf("invalid form")
	}
	sub.Password = r.PostForm.Get("password")
	sub.Message = r.PostForm.Get("message")
	return sub, nil
}

func (h *Handler) log(ctx context.Context, source, status, message string) {
	if h.audit != nil {
		h.audit.Log(ctx, source, status, message)
	}
}
