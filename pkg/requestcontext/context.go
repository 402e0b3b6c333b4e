// Package requestcontext carries request-scoped values that services read
// without importing net/http. Middleware sets them for HTTP requests; the
// CLI and tests set them directly.
package requestcontext

import (
	"context"
	"time"

	id "actarchive/pkg/domain"
)

type key int

const (
	keyUserID key = iota
	keyRequestID
	keyRequestTime
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// UserID returns the acting user, or the nil UUID when none is set.
func UserID(ctx context.Context) id.UserID {
	v, _ := value[id.UserID](ctx, keyUserID)
	return v
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// RequestID returns the correlation id assigned by the request middleware.
func RequestID(ctx context.Context) string {
	v, _ := value[string](ctx, keyRequestID)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// Now returns the instant pinned for this request, so every timestamp
// written while serving it agrees. Outside a request it is the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, keyRequestTime); ok {
		return t
	}
	return time.Now()
}

// WithTime pins Now for ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyRequestTime, t)
}
