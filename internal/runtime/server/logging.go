package server

import (
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var debugLog = log.New(io.Discard, "", log.LstdFlags)

// SetVerboseLogging toggles verbose server logging.
// When disabled (default), debug output is discarded.
func SetVerboseLogging(enable bool) {
	if enable {
		debugLog.SetOutput(os.Stderr)
	} else {
		debugLog.SetOutput(io.Discard)
	}
}

// throttledLogger emits at most one line per interval and silently drops
// the rest. Used for rate-limit drop reporting.
type throttledLogger struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newThrottledLogger(interval time.Duration) *throttledLogger {
	return &throttledLogger{interval: interval}
}

func (t *throttledLogger) Printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	log.Printf(format, args...)
}
