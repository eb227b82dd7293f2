// Package server wires the channel, admin, and health handlers into one HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	adminhandler "print-relay/internal/admin/handler"
	audithandler "print-relay/internal/audit/handler"
	healthhandler "print-relay/internal/health/handler"
	"print-relay/internal/server/interceptors"
	webhandler "print-relay/internal/web/handler"
)

// Deps holds the handlers mounted by NewRouter.
type Deps struct {
	// Web serves GET / and POST /. If nil, the portal routes are not mounted.
	Web *webhandler.Handler
	// SMS receives the gateway webhook at POST /sms. If nil, the route is not mounted.
	SMS http.Handler
	// Slack receives events and slash commands at POST /slack. If nil, the route is not mounted.
	Slack http.Handler
	// Admin serves POST /admin/login. If nil, admin routes are not mounted.
	Admin *adminhandler.Handler
	// History serves the /admin/history routes behind admin auth. Requires Admin and Tokens.
	History *audithandler.Handler
	// Tokens validates admin bearer tokens.
	Tokens interceptors.TokenValidator
	// Health serves /healthz and /readyz. If nil, both answer 200 unconditionally.
	Health *healthhandler.Handler
}

// Paths excluded from request metrics.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// NewRouter returns the HTTP handler for all inbound routes.
//
// Route → handler mapping:
//   - GET  /, POST /         → internal/web/handler
//   - POST /sms              → internal/sms/handler
//   - POST /slack            → internal/slack/handler
//   - POST /admin/login      → internal/admin/handler
//   - /admin/history[.csv]   → internal/audit/handler (admin bearer token)
//   - GET  /healthz, /readyz → internal/health/handler
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(interceptors.Telemetry(probePaths))

	health := deps.Health
	if health == nil {
		health = healthhandler.NewHandler(nil, nil)
	}
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)

	if deps.Web != nil {
		r.Get("/", deps.Web.Info)
		r.Post("/", deps.Web.Submit)
	}
	if deps.SMS != nil {
		r.Method(http.MethodPost, "/sms", deps.SMS)
	}
	if deps.Slack != nil {
		r.Method(http.MethodPost, "/slack", deps.Slack)
	}

	if deps.Admin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", deps.Admin.Login)
			if deps.History == nil || deps.Tokens == nil {
				return
			}
			r.Group(func(r chi.Router) {
				r.Use(interceptors.RequireAdmin(deps.Tokens))
				r.Get("/history", deps.History.List)
				r.Get("/history.csv", deps.History.ExportCSV)
				r.Delete("/history", deps.History.Clear)
			})
		})
	}
	return r
}
