// Package handler receives inbound SMS webhooks.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"print-relay/internal/audit"
	"print-relay/internal/challenge"
	"print-relay/internal/dispatch"
	"print-relay/internal/platform/httpx"
	"print-relay/internal/policy/engine"
	"print-relay/internal/sms"
)

// Reply texts sent back to the sender.
const (
	ReplyPrompt      = "Please reply with the access password to print your message."
	ReplyPrinted     = "✅ Message printed successfully!"
	ReplyDenied      = "❌ Invalid password. Access denied."
	ReplyConnFail    = "❌ Could not reach the printer. Please try again later."
	ReplyUnavailable = "⚠️ Printing is temporarily unavailable. Please try again later."
)

// Authorizer reports whether a sender skips the password challenge.
type Authorizer interface {
	IsAuthorized(ctx context.Context, identity string) bool
}

// Dispatcher runs relay jobs and standalone replies in the background.
type Dispatcher interface {
	Submit(ctx context.Context, job dispatch.Job) error
	Notify(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Handler serves POST /sms. It always answers 200 "OK"; replies go out through the Sender.
type Handler struct {
	whitelist  Authorizer
	challenges *challenge.Machine
	admission  engine.Evaluator
	dispatcher Dispatcher
	sender     sms.Sender
	audit      audit.AuditLogger
}

// NewHandler returns an SMS webhook handler.
func NewHandler(whitelist Authorizer, challenges *challenge.Machine, admission engine.Evaluator, dispatcher Dispatcher, sender sms.Sender, auditLogger audit.AuditLogger) *Handler {
	return &Handler{
		whitelist:  whitelist,
		challenges: challenges,
		admission:  admission,
		dispatcher: dispatcher,
		sender:     sender,
		audit:      auditLogger,
	}
}

// ServeHTTP handles one inbound message (form fields From and Body).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.LimitBody(w, r)
	if err := r.ParseForm(); err != nil {
		log.Printf("sms: parse form: %v", err)
		httpx.WriteText(w, http.StatusOK, "OK")
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if from == "" || body == "" {
		httpx.WriteText(w, http.StatusOK, "OK")
		return
	}
	h.handle(r.Context(), from, body)
	httpx.WriteText(w, http.StatusOK, "OK")
}

func (h *Handler) handle(ctx context.Context, from, body string) {
	source := "SMS: " + from

	if h.whitelist != nil && h.whitelist.IsAuthorized(ctx, from) {
		if !h.admit(ctx, from, source, body) {
			return
		}
		h.relay(ctx, from, source, body)
		return
	}

	out, err := h.challenges.Handle(ctx, from, body, func(message string) bool {
		return h.admit(ctx, from, source, message)
	})
	switch {
	case errors.Is(err, challenge.ErrNotAdmitted):
		return
	case err != nil:
		log.Printf("sms: challenge for %s failed: %v", from, err)
		h.reply(ctx, from, ReplyUnavailable)
		return
	}

	switch out.Action {
	case challenge.ActionPrompt:
		h.reply(ctx, from, ReplyPrompt)
	case challenge.ActionRelease:
		h.relay(ctx, from, source, out.Message)
	case challenge.ActionDeny:
		h.log(ctx, source, audit.StatusDenied, out.Message)
		h.reply(ctx, from, ReplyDenied)
	}
}

// admit runs the length check. A denial is logged and answered here.
func (h *Handler) admit(ctx context.Context, from, source, message string) bool {
	if h.admission == nil {
		return true
	}
	adm, err := h.admission.Admit(ctx, engine.ChannelSMS, message)
	if err != nil {
		log.Printf("sms: admission for %s failed: %v", from, err)
		h.reply(ctx, from, ReplyUnavailable)
		return false
	}
	if adm.Allowed {
		return true
	}
	h.log(ctx, source, audit.StatusLimitExceeded, message)
	h.reply(ctx, from, tooLongReply(adm.Limit))
	return false
}

func (h *Handler) relay(ctx context.Context, from, source, message string) {
	job := dispatch.Job{
		Message: message,
		Source:  source,
		Ack: func(ctx context.Context, res dispatch.Result) error {
			_, err := h.sender.Send(ctx, from, resultReply(res))
			return err
		},
	}
	if err := h.dispatcher.Submit(ctx, job); err != nil {
		log.Printf("sms: enqueue for %s failed: %v", from, err)
	}
}

func (h *Handler) reply(ctx context.Context, to, text string) {
	err := h.dispatcher.Notify(ctx, "sms reply", func(ctx context.Context) error {
		_, err := h.sender.Send(ctx, to, text)
		return err
	})
	if err != nil {
		log.Printf("sms: enqueue reply to %s failed: %v", to, err)
	}
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

func tooLongReply(limit int) string {
	if limit > 0 {
		return fmt.Sprintf("❌ Message too long (max %d characters).", limit)
	}
	return "❌ Message not accepted."
}
