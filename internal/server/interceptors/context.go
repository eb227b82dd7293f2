package interceptors

import "context"

type contextKey struct{ name string }

var adminSubjectKey = contextKey{"admin_subject"}

// WithAdmin returns a context carrying the authenticated admin subject.
func WithAdmin(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminSubjectKey, subject)
}

// GetAdmin returns the admin subject from context and true if set; otherwise "", false.
func GetAdmin(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminSubjectKey).(string)
	return v, ok
}
