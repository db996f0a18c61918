package context

import "context"

type requestIDKey struct{}
type traceIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func GetRequestID(ctx context.Context) string {
	v := ctx.Value(requestIDKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// WithTraceID tags background work (consumer deliveries, sweeps) that has no request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceID prefers an explicit trace id and falls back to the request id.
func TraceID(ctx context.Context) string {
	if s, ok := ctx.Value(traceIDKey{}).(string); ok && s != "" {
		return s
	}
	return GetRequestID(ctx)
}
