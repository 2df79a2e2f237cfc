// Package snsctx carries wire tracing settings through a context.Context.
package snsctx

import (
	"context"
	"encoding/hex"
	"log/slog"
)

type ctxIndex int

const ctxIndexVerbose ctxIndex = iota

func IsVerbose(ctx context.Context) bool {
	val := ctx.Value(ctxIndexVerbose)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// Dump logs a hex dump of frame at debug level when ctx is verbose.
func Dump(ctx context.Context, msg string, frame []byte, attrs ...any) {
	if !IsVerbose(ctx) {
		return
	}
	slog.DebugContext(ctx, msg, append(attrs, "frame", "\n"+hex.Dump(frame))...)
}
