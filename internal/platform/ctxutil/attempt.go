// Package ctxutil carries request-scoped identifiers through contexts so
// that log lines from lower layers can be tied to the operation that caused
// them.
package ctxutil

import "context"

type attemptKey struct{}

// WithAttempt tags ctx with the id of the load attempt it belongs to.
func WithAttempt(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, attemptKey{}, id)
}

// Attempt returns the load attempt id carried by ctx, or "".
func Attempt(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(attemptKey{}).(string)
	return id
}
