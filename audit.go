package logauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine.
const (
	EventRegister          = "account.register"
	EventLoginSuccess      = "login.success"
	EventLoginFailure      = "login.failure"
	EventLoginLocked       = "login.locked"
	EventTwoFactorPending  = "login.2fa_pending"
	EventTwoFactorSuccess  = "login.2fa_success"
	EventTwoFactorFailure  = "login.2fa_failure"
	EventRefreshSuccess    = "refresh.success"
	EventRefreshFailure    = "refresh.failure"
	EventRefreshReplay     = "refresh.replay_blocked"
	EventLogout            = "logout"
	EventPasswordChange    = "password.change"
	EventResetRequested    = "password.reset_requested"
	EventResetConfirmed    = "password.reset_confirmed"
	EventResetFailure      = "password.reset_failure"
	EventTwoFactorSetup    = "2fa.setup"
	EventTwoFactorEnabled  = "2fa.enabled"
	EventTwoFactorDisabled = "2fa.disabled"
	EventAccountDisabled   = "account.disabled"
)

// AuditEvent is one security-relevant occurrence. AccountID is omitted on
// failures where the account could not be resolved.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher. Implementations must be
// safe for concurrent use and should return quickly; slow sinks back-pressure
// or drop depending on AuditConfig.DropIfFull.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink hands events to a consumer goroutine over a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit forwards the event, giving up when ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the consumer side of the channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink appends one JSON object per line to a writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit writes the event as a single JSON line. Marshal and write failures
// are silent; audit must never fail an authentication operation.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
