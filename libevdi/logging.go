package libevdi

import (
	"sync/atomic"

	"github.com/bnema/openvd/internal/logger"
)

// LogFunc receives one fully formatted libevdi log line. The string is only
// guaranteed to be meaningful for the duration of the call; it is already a Go
// copy, so retaining it is safe.
type LogFunc func(message string)

// DefaultLogger writes libevdi messages to the application logger at debug level
func DefaultLogger(message string) {
	logger.Debug("evdi", "msg", message)
}

var activeLogger atomic.Pointer[LogFunc]

func init() {
	resetLogger()
}

// SetLogger replaces the process-wide log sink and returns the previous one.
// A nil fn restores DefaultLogger.
func SetLogger(fn LogFunc) LogFunc {
	if fn == nil {
		fn = DefaultLogger
	}
	prev := activeLogger.Swap(&fn)
	if prev == nil {
		return DefaultLogger
	}
	return *prev
}

func resetLogger() {
	fn := LogFunc(DefaultLogger)
	activeLogger.Store(&fn)
}

// emitLog forwards one line to the active sink. A panicking sink is
// swallowed so that native logging never unwinds into C.
func emitLog(message string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("evdi log sink panicked", "panic", r, "msg", message)
		}
	}()

	fn := activeLogger.Load()
	if fn == nil {
		DefaultLogger(message)
		return
	}
	(*fn)(message)
}

// emitDiagnostic reports a bridge-level problem to the application logger and
// to the active sink
func emitDiagnostic(message string) {
	logger.Warn("evdi bridge", "err", message)
	emitLog("bridge: " + message)
}
