package web

import (
	"context"
	"net/http"

	"github.com/korhy/cookbook/internal/core"
)

// withRequestMetadata tags ctx as an API triggered run from the client
// address. RemoteAddr has already been rewritten by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithTrigger(ctx, core.TriggerAPI)
	return core.ContextWithRemoteAddr(ctx, r.RemoteAddr)
}
