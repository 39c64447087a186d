// Package reqid carries the per-request correlation id across HTTP, gRPC
// and log lines.
package reqid

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	// Header is the HTTP header the id travels in.
	Header = "X-Request-Id"
	// MetadataKey is the gRPC metadata key; metadata keys are lower case.
	MetadataKey = "x-request-id"
)

// maxLen caps ids accepted from callers.
const maxLen = 128

type ctxKey struct{}

// New returns a fresh id: a UUIDv4 without dashes.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sanitize returns the inbound id if it is usable, otherwise a fresh one.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxLen || strings.ContainsAny(id, "\r\n") {
		return New()
	}
	return id
}

func With(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func From(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Attr is a log attribute for the id in ctx.
func Attr(ctx context.Context) slog.Attr {
	return slog.String("request_id", From(ctx))
}
