package audit

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded by the federation services.
const (
	ActionProviderSaved      = "provider.saved"
	ActionProviderDeleted    = "provider.deleted"
	ActionConnectionAdded    = "connection.added"
	ActionConnectionsRemoved = "connection.removed"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`   // Local user id
	Target    string    `json:"target,omitempty"` // Provider id or connection key
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout)
)

func newLogger(out io.Writer) zerolog.Logger {
	return zerolog.New(out).With().Str("log", "audit").Logger()
}

// SetOutput redirects audit events, e.g. to a dedicated file.
func SetOutput(out io.Writer) {
	mu.Lock()
	logger = newLogger(out)
	mu.Unlock()
}

// Record writes one audit event. A nil err marks the action successful.
func Record(ctx context.Context, action, user, target string, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		User:      user,
		Target:    target,
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}

	mu.RLock()
	l := logger
	mu.RUnlock()

	l.Log().Ctx(ctx).
		Time("timestamp", event.Timestamp).
		Str("action", event.Action).
		Str("user", event.User).
		Str("target", event.Target).
		Bool("success", event.Success).
		Str("error", event.Error).
		Msg("")
}
