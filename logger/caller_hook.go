package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// skippedCallers are function-name fragments that never count as a call site.
var skippedCallers = []string{"sirupsen/logrus", "optionflow/logger."}

// callerHook rewrites entry.Caller to the first frame outside logrus and
// the wrappers in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isWrapperFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapperFrame(fn string) bool {
	if fn == "" {
		return true
	}
	for _, s := range skippedCallers {
		if strings.Contains(fn, s) {
			return true
		}
	}
	return false
}
