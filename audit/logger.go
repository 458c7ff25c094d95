package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
	"github.com/rs/zerolog/log"
)

const (
	// Event types
	EventTypeFieldSave    = "field.save"
	EventTypeFieldRead    = "field.read"
	EventTypeQueryRewrite = "query.rewrite"
	EventTypeBatchEncrypt = "batch.encrypt"

	// Operations
	OperationEncrypt = "encrypt"
	OperationDecrypt = "decrypt"
	OperationToggle  = "toggle"
	OperationRewrite = "rewrite"
	OperationVerify  = "verify"

	// Statuses
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// StdoutAuditLogger implements interfaces.AuditLogger writing through zerolog
type StdoutAuditLogger struct{}

// NewStdoutAuditLogger creates a new stdout audit logger
func NewStdoutAuditLogger() *StdoutAuditLogger {
	return &StdoutAuditLogger{}
}

// LogEvent logs an audit event with essential context information
func (l *StdoutAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}

	logEvent := log.Debug().
		Str("auditId", event.ID).
		Time("timestamp", event.Timestamp).
		Str("eventType", event.EventType).
		Str("operation", event.Operation).
		Str("status", event.Status).
		Str("model", event.Model)

	for _, key := range []ContextKey{KeyCollection, KeyFieldPath, KeyPhase, KeyRecordID, KeyUserID, KeyError} {
		if v := event.Context[string(key)]; v != "" {
			logEvent = logEvent.Str(string(key), v)
		}
	}
	for k, v := range event.Metadata {
		logEvent = logEvent.Interface(k, v)
	}

	logEvent.Msg("Audit event")
	return nil
}

// GetEvents returns events matching the filter (not implemented for stdout logger)
func (l *StdoutAuditLogger) GetEvents(ctx context.Context, filter map[string]interface{}) ([]*types.AuditEvent, error) {
	return nil, fmt.Errorf("getting events not supported for stdout logger")
}

// MemoryAuditLogger keeps the most recent events in memory
type MemoryAuditLogger struct {
	mu     sync.Mutex
	limit  int
	events []*types.AuditEvent
}

// NewMemoryAuditLogger creates a memory logger holding at most limit events
func NewMemoryAuditLogger(limit int) *MemoryAuditLogger {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryAuditLogger{limit: limit}
}

// LogEvent stores the event, evicting the oldest when full
func (l *MemoryAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == l.limit {
		l.events = l.events[1:]
	}
	l.events = append(l.events, event)
	return nil
}

// GetEvents returns events whose fields equal every filter entry. Supported filter keys
// are eventType, operation, status, model and any context key.
func (l *MemoryAuditLogger) GetEvents(ctx context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*types.AuditEvent
	for _, e := range l.events {
		if matches(e, filters) {
			out = append(out, e)
		}
	}
	return out, nil
}

func matches(e *types.AuditEvent, filters map[string]interface{}) bool {
	for k, want := range filters {
		var got string
		switch k {
		case "eventType":
			got = e.EventType
		case "operation":
			got = e.Operation
		case "status":
			got = e.Status
		case "model":
			got = e.Model
		default:
			got = e.Context[k]
		}
		if fmt.Sprint(want) != got {
			return false
		}
	}
	return true
}

func prepare(event *types.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Context == nil {
		event.Context = make(map[string]string)
	}
	return nil
}

// WithContext creates a new context with essential audit information
func WithContext(ctx context.Context, model, collection string) context.Context {
	ctx = context.WithValue(ctx, KeyModel, model)
	ctx = context.WithValue(ctx, KeyCollection, collection)
	return ctx
}

// WithFieldPath adds the hook field path to the context
func WithFieldPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, KeyFieldPath, path)
}

// WithPhase adds the transform phase to the context
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, KeyPhase, phase)
}

// WithUserContext adds user information to the context
func WithUserContext(ctx context.Context, userID string) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, KeyUserID, userID)
	}
	return ctx
}

// WithOperation adds operation information to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, KeyOperation, operation)
}

// WithRecordID adds record ID information to the context
func WithRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, KeyRecordID, recordID)
}

// NewAuditEvent creates a new audit event with essential fields
func NewAuditEvent(eventType, operation, model string) *types.AuditEvent {
	return &types.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Operation: operation,
		Status:    StatusSuccess,
		Model:     model,
		Context:   make(map[string]string),
		Metadata:  make(map[string]interface{}),
	}
}

// FromContext copies the audit keys present in ctx into the event context
func FromContext(ctx context.Context, event *types.AuditEvent) {
	for _, key := range []ContextKey{KeyCollection, KeyFieldPath, KeyPhase, KeyRecordID, KeyUserID, KeyOperation} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			event.Context[string(key)] = v
		}
	}
}
