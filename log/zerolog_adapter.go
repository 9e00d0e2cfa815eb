package log

import (
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// LeveledLogger adapts the global zerolog logger to the key/value logging
// interface expected by HTTP client libraries such as go-retryablehttp.
type LeveledLogger struct {
	component string
}

// NewLeveledLogger returns an adapter that tags every event with component.
func NewLeveledLogger(component string) *LeveledLogger {
	return &LeveledLogger{component: component}
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.emit(zlog.Error(), msg, keysAndValues)
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(zlog.Warn(), msg, keysAndValues)
}

func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.emit(zlog.Info(), msg, keysAndValues)
}

// Debug is used by retryablehttp for every request; it stays at trace level
// so request URLs do not flood debug output.
func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(zlog.Trace(), msg, keysAndValues)
}

func (l *LeveledLogger) emit(event *zerolog.Event, msg string, keysAndValues []interface{}) {
	if l.component != "" {
		event = event.Str("component", l.component)
	}
	event.Fields(keysAndValues).Msg(msg)
}
