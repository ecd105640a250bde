package core

import "context"

type contextKey string

const (
	ctxKeyTrigger    contextKey = "import_trigger"
	ctxKeyRemoteAddr contextKey = "import_remote_addr"
)

// Import triggers stored with run history.
const (
	TriggerCLI = "cli"
	TriggerAPI = "api"
)

// ContextWithTrigger records what started the import for run history.
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// ContextWithRemoteAddr records the client address of an API-triggered import.
func ContextWithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ctxKeyRemoteAddr, addr)
}

// TriggerFromContext returns the import trigger, defaulting to TriggerCLI.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok && v != "" {
		return v
	}
	return TriggerCLI
}

// RemoteAddrFromContext returns the client address, if any.
func RemoteAddrFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRemoteAddr).(string); ok {
		return v
	}
	return ""
}
