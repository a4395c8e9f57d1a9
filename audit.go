package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// AuditEvent is one security-relevant occurrence: a login outcome, an MFA
// state change, a role mutation. Events carry identifiers, never secrets.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives emitted audit events.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink writes audit events into a buffered channel for the host
// application to drain.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
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

// Audit event types emitted by the engine.
const (
	EventLoginSuccess      = "login.success"
	EventLoginFailure      = "login.failure"
	EventLoginRateLimited  = "login.rate_limited"
	EventMFAChallenge      = "mfa.challenge_issued"
	EventMFASuccess        = "mfa.success"
	EventMFAFailure        = "mfa.failure"
	EventMFAReplay         = "mfa.challenge_replayed"
	EventMFAEnabled        = "mfa.enabled"
	EventMFADisabled       = "mfa.disabled"
	EventBackupCodeUsed    = "mfa.backup_code_used"
	EventBackupRegenerated = "mfa.backup_codes_regenerated"
	EventRefreshSuccess    = "token.refresh_success"
	EventRefreshFailure    = "token.refresh_failure"
	EventRegistered        = "account.registered"
	EventEmailVerified     = "account.email_verified"
	EventPasswordResetSent = "account.password_reset_requested"
	EventPasswordResetDone = "account.password_reset_completed"
	EventRoleMutated       = "rbac.role_mutated"
	EventPermissionDenied  = "rbac.permission_denied"
)

// dispatcher fans audit events out to a sink from a single background
// goroutine. Emission never blocks engine operations: when the buffer is
// full the event is dropped and counted.
type dispatcher struct {
	sink    AuditSink
	queue   chan AuditEvent
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

func newDispatcher(sink AuditSink, bufferSize int) *dispatcher {
	d := &dispatcher{
		sink:  sink,
		queue: make(chan AuditEvent, bufferSize),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	ctx := context.Background()
	for ev := range d.queue {
		d.sink.Emit(ctx, ev)
	}
	close(d.done)
}

func (d *dispatcher) emit(ev AuditEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
	}
}

// close drains the queue and waits for the worker to finish.
func (d *dispatcher) close() {
	d.once.Do(func() { close(d.queue) })
	<-d.done
}

// Dropped reports how many events were discarded due to backpressure.
func (d *dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher queue was full. Zero when auditing is disabled.
func (e *Engine) AuditDropped() uint64 {
	if e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
