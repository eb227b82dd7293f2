// Package handler serves liveness and readiness probes.
package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"print-relay/internal/platform/httpx"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the admission policy compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Serving statuses.
const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

const checkTimeout = 2 * time.Second

// Response is the probe body.
type Response struct {
	Status string `json:"status"`
}

// Handler serves /healthz and /readyz.
type Handler struct {
	pinger Pinger
	policy PolicyChecker
}

// NewHandler returns a health handler. Nil dependencies are skipped by readiness.
func NewHandler(pinger Pinger, policy PolicyChecker) *Handler {
	return &Handler{pinger: pinger, policy: policy}
}

// Live always reports serving while the process is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Response{Status: StatusServing})
}

// Ready reports NOT_SERVING with 503 when the database or policy engine is unhealthy.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()
	if h.pinger != nil {
		if err := h.pinger.PingContext(ctx); err != nil {
			log.Printf("health: database ping failed: %v", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: StatusNotServing})
			return
		}
	}
	if h.policy != nil {
		if err := h.policy.HealthCheck(ctx); err != nil {
			log.Printf("health: policy check failed: %v", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: StatusNotServing})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, Response{Status: StatusServing})
}
