package logger

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback when there is none.
// A nil fallback yields a no-op logger so callers never need a nil check.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	if fallback == nil {
		return NewNop()
	}
	return fallback
}
