// Package context holds small helpers around context.Context used by the
// server accept loop.
package context

import (
	"context"
)

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
