package httpapi

import (
	"context"
)

// serverBaseCtx ties request handling to daemon lifetime: main cancels it on
// shutdown so in-flight generations stop instead of outliving the listener.
// Background until main installs its own.
var serverBaseCtx = context.Background()

// SetBaseContext installs the daemon-lifetime context that generation
// handlers derive from.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context canceled when either input is done, so a
// generation stops on client disconnect or daemon shutdown, whichever comes
// first. The cancel func must run on handler exit to release the watcher
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
