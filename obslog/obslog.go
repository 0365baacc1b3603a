// Package obslog centralizes the core's observability hook. Shape-tracker
// and expression errors are fatal and surface straight to the caller; the
// only thing the core logs on its own behalf is non-fatal rewrite-pass
// activity: skipped matches and kernel compiles.
package obslog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("component", "luminal").Logger()
)

// Logger returns the package-wide logger. Callers that want structured
// fields should chain off it, e.g. obslog.Logger().Info().Str("pass",
// "matmul").Msg("compiling").
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetOutput redirects the logger's writer, e.g. to io.Discard in tests that
// don't want compiler chatter on stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(w).With().Timestamp().Str("component", "luminal").Logger()
}

// SetLevel adjusts the global minimum log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// RewriteSkipped logs a non-fatal skipped match: the rewrite pass logs it
// and continues to the next match rather than aborting.
func RewriteSkipped(pass string, node int64, reason string) {
	Logger().Debug().
		Str("pass", pass).
		Int64("node", node).
		Str("reason", reason).
		Msg("rewrite skipped")
}

// KernelCompiled logs a kernel compilation. Compilation is expensive enough
// that each pass caches one per (variant, device) rather than repeating it.
func KernelCompiled(variant, device string) {
	Logger().Debug().
		Str("variant", variant).
		Str("device", device).
		Msg("kernel compiled")
}
