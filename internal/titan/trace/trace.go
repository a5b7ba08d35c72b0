// Package trace provides trace ID generation and context propagation so a
// single inbound event can be correlated across session resolution,
// planning, broker execution, and the persisted trace timeline.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type traceKey struct{}

// GenerateID returns a new random trace ID, prefixed so it is visually
// distinguishable from goal/approval UUIDs in logs.
func GenerateID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("trace_%d", time.Now().UnixNano())
	}
	return "trc_" + hex.EncodeToString(buf)
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, or "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
