// Package handler receives Slack Events API callbacks and slash commands.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"print-relay/internal/audit"
	"print-relay/internal/dispatch"
	"print-relay/internal/platform/httpx"
	"print-relay/internal/policy/engine"
	"print-relay/internal/ratelimit"
	"print-relay/internal/slack"
)

// Immediate and follow-up reply texts.
const (
	ReplySending  = "🖨️ Sending to printer..."
	ReplyPrinted  = "✅ Printed!"
	ReplyConnFail = "❌ Could not reach the printer. Please try again later."
	ReplyEmpty    = "Please include a message to print."
)

// Limiter is the per-principal rate limiter.
type Limiter interface {
	Check(ctx context.Context, principal string) (ratelimit.Decision, error)
}

// Replier sends a reply to the conversation a message came from.
type Replier interface {
	Reply(ctx context.Context, m slack.Message, text string) error
}

// Dispatcher runs relay jobs and standalone replies in the background.
type Dispatcher interface {
	Submit(ctx context.Context, job dispatch.Job) error
	Notify(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Handler serves POST /slack.
type Handler struct {
	verifier   *slack.Verifier
	limiter    Limiter
	admission  engine.Evaluator
	dispatcher Dispatcher
	replier    Replier
	audit      audit.AuditLogger
}

// NewHandler returns a Slack webhook handler. A nil verifier disables signature checks.
func NewHandler(verifier *slack.Verifier, limiter Limiter, admission engine.Evaluator, dispatcher Dispatcher, replier Replier, auditLogger audit.AuditLogger) *Handler {
	return &Handler{
		verifier:   verifier,
		limiter:    limiter,
		admission:  admission,
		dispatcher: dispatcher,
		replier:    replier,
		audit:      auditLogger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.LimitBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteText(w, http.StatusBadRequest, "bad request")
		return
	}
	if err := h.verifier.Verify(r.Header, body); err != nil {
		log.Printf("slack: rejected request: %v", err)
		httpx.WriteText(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	// Slack retries events it thinks timed out; the first delivery was already handled.
	if r.Header.Get("X-Slack-Retry-Num") != "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	in, err := slack.Parse(r.Header.Get("Content-Type"), body)
	if err != nil {
		log.Printf("slack: %v", err)
		httpx.WriteText(w, http.StatusBadRequest, "bad request")
		return
	}
	switch in.Kind {
	case slack.KindURLVerification:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"challenge": in.Challenge})
	case slack.KindMessage:
		h.respond(w, in.Message, h.handleMessage(r.Context(), in.Message))
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleMessage applies the rate limit and admission policy, enqueues the job, and returns the immediate reply.
func (h *Handler) handleMessage(ctx context.Context, m slack.Message) string {
	if m.Text == "" {
		return ReplyEmpty
	}

	decision, err := h.limiter.Check(ctx, m.PrincipalID)
	if err != nil {
		log.Printf("slack: rate limit check for %s failed: %v", m.PrincipalID, err)
	}
	if !decision.Allowed {
		if decision.NewlyBlocked {
			h.log(ctx, m.Source(), audit.StatusRateLimited, m.Text)
		}
		return decision.RetryHint
	}

	if h.admission != nil {
		adm, err := h.admission.Admit(ctx, engine.ChannelSlack, m.Text)
		if err != nil {
			log.Printf("slack: admission for %s failed: %v", m.PrincipalID, err)
			return ratelimit.UnavailableHint
		}
		if !adm.Allowed {
			h.log(ctx, m.Source(), audit.StatusLimitExceeded, m.Text)
			return fmt.Sprintf("❌ Message too long (max %d characters).", adm.Limit)
		}
	}

	job := dispatch.Job{
		Message: m.Text,
		Source:  m.Source(),
		Ack: func(ctx context.Context, res dispatch.Result) error {
			return h.reply(ctx, m, resultReply(res))
		},
	}
	if err := h.dispatcher.Submit(ctx, job); err != nil {
		log.Printf("slack: enqueue for %s failed: %v", m.PrincipalID, err)
		return ratelimit.UnavailableHint
	}
	return ReplySending
}

// respond answers slash commands in the HTTP body. Event callbacks cannot be answered
// that way, so their reply goes out through the Replier.
func (h *Handler) respond(w http.ResponseWriter, m slack.Message, text string) {
	if m.ResponseURL == "" && text != ReplySending {
		err := h.dispatcher.Notify(context.Background(), "slack reply", func(ctx context.Context) error {
			return h.reply(ctx, m, text)
		})
		if err != nil {
			log.Printf("slack: enqueue reply for %s failed: %v", m.PrincipalID, err)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"response_type": "ephemeral", "text": text})
}

// reply sends text to m's conversation. A message with nowhere to reply to is not an error.
func (h *Handler) reply(ctx context.Context, m slack.Message, text string) error {
	err := h.replier.Reply(ctx, m, text)
	if errors.Is(err, slack.ErrNoReplyTarget) {
		return nil
	}
	return err
}

func (h *Handler) log(ctx context.Context, source, status, message string) {
	if h.audit != nil {
		h.audit.Log(ctx, source, status, message)
	}
}

func resultReply(res dispatch.Result) string {
	switch res.Outcome {
	case dispatch.OutcomeSuccess:
		return ReplyPrinted
	case dispatch.OutcomeRejected:
		return fmt.Sprintf("❌ Printer error: %d", res.StatusCode)
	default:
		return ReplyConnFail
	}
}
