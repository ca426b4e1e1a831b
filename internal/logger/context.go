package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds operation-scoped logging context threaded through the
// worker pools in pkg/envoy and pkg/recovery, so every chunk a goroutine
// handles logs with the snapshot prefix, digest, and worker slot that
// produced it.
type LogContext struct {
	Prefix    string    // Bucket/snapshot prefix this operation concerns
	Digest    string    // Content digest the current chunk belongs to
	Worker    int       // Worker-pool slot index (0 outside a pool)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given bucket/snapshot prefix.
func NewLogContext(prefix string) *LogContext {
	return &LogContext{
		Prefix:    prefix,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		Prefix:    lc.Prefix,
		Digest:    lc.Digest,
		Worker:    lc.Worker,
		StartTime: lc.StartTime,
	}
}

// WithDigest returns a copy with the digest set, for a worker that has
// picked up the next chunk or file in its queue.
func (lc *LogContext) WithDigest(digest string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Digest = digest
	}
	return clone
}

// WithWorker returns a copy with the worker slot index set.
func (lc *LogContext) WithWorker(worker int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Worker = worker
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
