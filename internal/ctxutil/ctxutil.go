package ctxutil

import (
	"context"
	"time"
)

type key int

const (
	keyUserID key = iota
	keyOpName
)

// WithUserID /UserID carry the authenticated caller id for logs.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserID(ctx context.Context) (int64, bool) {
	v := ctx.Value(keyUserID)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// WithOp and Op carry the operation name (route pattern or job name).
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) {
	v := ctx.Value(keyOpName)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

var DefaultDBTimeout = 5 * time.Second

func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout bounds a single store call; a parent deadline that is sooner
// wins.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		remain := time.Until(dl)
		if remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}

// Detached keeps the values of parent but ignores its cancellation, with its
// own timeout. Used for work that must finish during shutdown drain.
func Detached(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return WithTimeout(context.WithoutCancel(parent), d)
}
