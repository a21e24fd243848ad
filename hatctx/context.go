// Package hatctx carries the bus trace sink through a context. Drivers write
// raw transfers to it so a failing programming run can be inspected after the
// fact.
package hatctx

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
)

type ctxIndex int

const ctxIndexTrace ctxIndex = iota

// WithTrace returns a context whose bus transfers are written to w. A nil w
// turns tracing off.
func WithTrace(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, ctxIndexTrace, w)
}

func trace(ctx context.Context) io.Writer {
	w, _ := ctx.Value(ctxIndexTrace).(io.Writer)
	return w
}

// Tracing reports whether ctx has a trace sink.
func Tracing(ctx context.Context) bool {
	return trace(ctx) != nil
}

func Tracef(ctx context.Context, format string, args ...any) {
	w := trace(ctx)
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

// Dump writes a labelled hex dump of data.
func Dump(ctx context.Context, label string, data []byte) {
	w := trace(ctx)
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "%s (%d bytes)\n%s", label, len(data), hex.Dump(data))
}
