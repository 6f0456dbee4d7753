package httpapi

import (
	"context"
)

// serverBaseCtx is canceled on daemon shutdown. Generation handlers join it
// with the request context so an in-flight NDJSON stream stops at its next
// flush when the process is going down.
var serverBaseCtx = context.Background()

// SetBaseContext installs the daemon's shutdown context. Passing nil resets
// to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context that ends when either parent is done. The
// cancel func must be called when the handler returns to stop the bridging
// goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}
