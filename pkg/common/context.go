package common

import (
	"context"
	"time"
)

// DetachedContext bounds a store round-trip with its own timeout while
// dropping the caller's cancellation signal. In-flight bookkeeping writes
// finish even when the client request is aborted mid-pipeline.
func DetachedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
