package framepool

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// attribute formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr is read from stream callbacks, so it is swapped atomically.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger sets the logger shared by framepool, its sub-packages and the
// registered process device. framepool is silent until it is called; nil
// restores the silent logger. It is safe for concurrent use.
//
// Log levels used by framepool:
//   - [slog.LevelDebug]: buffer allocation, stream creation, deferred releases
//   - [slog.LevelInfo]: lifecycle events (device registered, pool shut down)
//   - [slog.LevelWarn]: non-fatal issues (stream errors, teardown failures,
//     images still referenced at close)
//
// Example:
//
//	framepool.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	procMu.Lock()
	d := procDevice
	procMu.Unlock()
	if d != nil {
		propagateLogger(d, l)
	}
}

// Logger returns the logger set by SetLogger. transfer and gpu log through it.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger hands l to d when d accepts a logger.
func propagateLogger(d any, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
