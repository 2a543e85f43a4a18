package strataingest

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// pkgLogger is what clients fall back to when the caller's context carries
// no logger. Disabled until SetLogger is called.
var pkgLogger atomic.Pointer[zerolog.Logger]

// SetLogger replaces the package's fallback logger. Safe to call while
// ingest calls are in flight. Contexts that already carry a zerolog logger
// are left alone.
func SetLogger(l zerolog.Logger) {
	pkgLogger.Store(&l)
}

// withLogger makes sure ctx carries a logger before it crosses into the
// transport layers.
func withLogger(ctx context.Context) context.Context {
	if zerolog.Ctx(ctx).GetLevel() != zerolog.Disabled {
		return ctx
	}
	if l := pkgLogger.Load(); l != nil {
		return l.WithContext(ctx)
	}
	return ctx
}
