package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent mirrors one invocation state transition into the audit log
type AuditEvent struct {
	InvocationID string                 `json:"invocation_id"`
	ToolName     string                 `json:"tool_name,omitempty"`
	FromStatus   string                 `json:"from_status,omitempty"`
	ToStatus     string                 `json:"to_status"`
	Actor        string                 `json:"actor"`
	Reason       string                 `json:"reason,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
}

// AuditLogger mirrors transition records to a JSON log sink. The
// authoritative trail lives in the dispatch store; this sink exists so
// operators can tail decisions without querying it.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditOnce sync.Once
	auditMu   sync.RWMutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the global audit logger instance
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		auditMu.Lock()
		defer auditMu.Unlock()
		if auditInst == nil {
			// Default to stderr if not initialized
			auditInst = &AuditLogger{
				logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
			}
		}
	})
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// InitAuditLogger points the global audit logger at a specific file
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditMu.Lock()
	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	auditMu.Unlock()
	return nil
}

// Record emits an audit event to the log sink and, when the context
// carries an active span, as an OpenTelemetry span event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent("invocation.transition", trace.WithAttributes(
			attribute.String("audit.invocation_id", event.InvocationID),
			attribute.String("audit.to_status", event.ToStatus),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("invocation_id", event.InvocationID).
		Str("tool_name", event.ToolName).
		Str("from_status", event.FromStatus).
		Str("to_status", event.ToStatus).
		Str("actor", event.Actor).
		Str("reason", event.Reason).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// RecordTransition mirrors one invocation transition via the global logger
func RecordTransition(ctx context.Context, event AuditEvent) {
	GetAuditLogger().Record(ctx, event)
}
