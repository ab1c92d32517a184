package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that is not cancelled with parent.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from parent and applies its own
// deadline. Shutdown work such as persisting learned state uses it so an
// interrupt does not abort the final write.
//
//	saveCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	err := store.Persist(saveCtx)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(DetachContext(parent), timeout)
}
