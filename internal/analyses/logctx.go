package analyses

import "context"

type requestIDKey struct{}

// WithRequestID tags ctx so service logs can be joined with the request log.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// logFields starts the field set of an analysis scoped log line. kv holds
// alternating keys and values.
func logFields(ctx context.Context, analysisID string, kv ...any) map[string]any {
	fields := make(map[string]any, 2+len(kv)/2)
	if id := requestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	fields["analysis_id"] = analysisID
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return fields
}
