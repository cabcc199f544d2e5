package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	AuditCallStart    AuditEventType = "call_start"
	AuditCallComplete AuditEventType = "call_complete"
	AuditCallError    AuditEventType = "call_error"
	AuditCompatCheck  AuditEventType = "compat_check"
	AuditCompatBlock  AuditEventType = "compat_block"
	AuditCompatWarn   AuditEventType = "compat_warn"
	AuditValidation   AuditEventType = "validation_reject"
)

// AuditEvent is one structured audit entry for a CloudManager operation.
type AuditEvent struct {
	EventType  AuditEventType
	Operation  string // e.g. create_blockchain
	Target     string // path or resource id
	OwnerID    string
	Success    bool
	StatusCode int
	Duration   time.Duration
	Error      string
	Message    string
}

// AuditLogger writes audit events to the audit category.
type AuditLogger struct {
	logger *zap.Logger
}

// Audit returns an audit logger bound to the audit category.
func Audit() *AuditLogger {
	return &AuditLogger{logger: Get(CategoryAudit)}
}

// NewAuditLogger wraps an explicit logger, for callers with injected loggers.
func NewAuditLogger(l *zap.Logger) *AuditLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditLogger{logger: l}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if a == nil || a.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.String("op", event.Operation),
		zap.Bool("success", event.Success),
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.OwnerID != "" {
		fields = append(fields, zap.String("owner", event.OwnerID))
	}
	if event.StatusCode != 0 {
		fields = append(fields, zap.Int("status", event.StatusCode))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	if event.Success {
		a.logger.Info(msg, fields...)
	} else {
		a.logger.Warn(msg, fields...)
	}
}

// CallStart records the dispatch of an operation.
func (a *AuditLogger) CallStart(op, target, owner string) {
	a.Log(AuditEvent{EventType: AuditCallStart, Operation: op, Target: target, OwnerID: owner, Success: true})
}

// CallComplete records a successful operation.
func (a *AuditLogger) CallComplete(op, target string, status int, d time.Duration) {
	a.Log(AuditEvent{EventType: AuditCallComplete, Operation: op, Target: target, StatusCode: status, Duration: d, Success: true})
}

// CallError records a failed operation.
func (a *AuditLogger) CallError(op, target string, status int, d time.Duration, err error) {
	ev := AuditEvent{EventType: AuditCallError, Operation: op, Target: target, StatusCode: status, Duration: d}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}
