package interceptors

import (
	"net/http"
	"strings"

	"print-relay/internal/platform/httpx"
)

const bearerPrefix = "bearer "

// TokenValidator validates an admin bearer token and returns its subject.
type TokenValidator interface {
	Validate(token string) (string, error)
}

type errorBody struct {
	Error string `json:"error"`
}

// RequireAdmin returns middleware that rejects requests without a valid admin Bearer token
// and sets the admin subject in context for the rest.
func RequireAdmin(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" || tokens == nil {
				httpx.WriteJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid authorization"})
				return
			}
			subject, err := tokens.Validate(token)
			if err != nil {
				httpx.WriteJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid authorization"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), subject)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
