package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one kind of accessibility-feedback event.
type AuditEventType string

const (
	AuditTalkpointCreate AuditEventType = "talkpoint_create"
	AuditTalkpointRemove AuditEventType = "talkpoint_remove"
	AuditReconcile       AuditEventType = "reconcile"
	AuditStopped         AuditEventType = "stopped"
	AuditDispatch        AuditEventType = "dispatch"
	AuditDispatchError   AuditEventType = "dispatch_error"
	AuditContinue        AuditEventType = "continue"
	AuditSessionStart    AuditEventType = "session_start"
	AuditSessionEnd      AuditEventType = "session_end"
)

// AuditEvent is one JSON line of the audit trail. The trail lets a user
// review afterwards what was announced during a debug session.
type AuditEvent struct {
	EventType    AuditEventType
	SessionID    string
	BreakpointID string
	Target       string // file:line or talkpoint kind
	Success      bool
	DurationMs   int64
	Error        string
	Message      string
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditZap    *zap.Logger
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging
type AuditLogger struct {
	sessionID string
}

// InitAudit opens the audit trail file. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(dir, fmt.Sprintf("%s_audit.jsonl", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.EpochMillisTimeEncoder
	encCfg.LevelKey = ""
	encCfg.CallerKey = ""
	auditZap = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), zapcore.DebugLevel))
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditZap != nil {
		_ = auditZap.Sync()
		auditZap = nil
	}
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithSession creates an audit logger scoped to a debug session
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditZap == nil {
		return
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.Bool("success", event.Success),
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session", event.SessionID))
	}
	if event.BreakpointID != "" {
		fields = append(fields, zap.String("breakpoint", event.BreakpointID))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", event.DurationMs))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	auditZap.Info(event.Message, fields...)
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// TalkpointCreated logs a committed talkpoint
func (a *AuditLogger) TalkpointCreated(breakpointID, kind, location string) {
	a.Log(AuditEvent{
		EventType:    AuditTalkpointCreate,
		BreakpointID: breakpointID,
		Target:       location,
		Success:      true,
		Message:      fmt.Sprintf("%s talkpoint created at %s", kind, location),
	})
}

// TalkpointRemoved logs a removed talkpoint
func (a *AuditLogger) TalkpointRemoved(breakpointID, reason string) {
	a.Log(AuditEvent{
		EventType:    AuditTalkpointRemove,
		BreakpointID: breakpointID,
		Success:      true,
		Message:      reason,
	})
}

// Reconciled logs the outcome of identity reconciliation
func (a *AuditLogger) Reconciled(kept, dropped int) {
	a.Log(AuditEvent{
		EventType: AuditReconcile,
		Success:   true,
		Message:   fmt.Sprintf("reconciled %d talkpoints, dropped %d", kept, dropped),
	})
}

// Stopped logs a stopped event and how many talkpoints it matched
func (a *AuditLogger) Stopped(location string, matched int, dur time.Duration) {
	a.Log(AuditEvent{
		EventType:  AuditStopped,
		Target:     location,
		Success:    matched > 0,
		DurationMs: dur.Milliseconds(),
		Message:    fmt.Sprintf("stopped at %s, %d talkpoints matched", location, matched),
	})
}

// Dispatched logs one feedback dispatch
func (a *AuditLogger) Dispatched(breakpointID, kind string, err error) {
	ev := AuditEvent{
		EventType:    AuditDispatch,
		BreakpointID: breakpointID,
		Target:       kind,
		Success:      err == nil,
		Message:      "feedback dispatched",
	}
	if err != nil {
		ev.EventType = AuditDispatchError
		ev.Error = err.Error()
		ev.Message = "feedback failed"
	}
	a.Log(ev)
}

// Continued logs an automatic continue
func (a *AuditLogger) Continued(threadID int, err error) {
	ev := AuditEvent{
		EventType: AuditContinue,
		Target:    fmt.Sprintf("thread:%d", threadID),
		Success:   err == nil,
		Message:   "execution continued",
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// SessionStart logs the start of a debug session
func (a *AuditLogger) SessionStart(program string) {
	a.Log(AuditEvent{EventType: AuditSessionStart, Target: program, Success: true, Message: "debug session started"})
}

// SessionEnd logs the end of a debug session
func (a *AuditLogger) SessionEnd(err error) {
	ev := AuditEvent{EventType: AuditSessionEnd, Success: err == nil, Message: "debug session ended"}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}
