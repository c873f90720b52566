package observability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventUpload         AuditEventType = "upload"
	AuditEventIngest         AuditEventType = "ingest.complete"
	AuditEventDuplicate      AuditEventType = "ingest.duplicate"
	AuditEventIngestError    AuditEventType = "ingest.error"
	AuditEventSearch         AuditEventType = "search"
	AuditEventChat           AuditEventType = "chat"
	AuditEventIndexProvision AuditEventType = "index.provision"
	AuditEventWorkflowStart  AuditEventType = "workflow.start"
	AuditEventWorkflowEnd    AuditEventType = "workflow.end"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	userID    string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		userID:    config.UserID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	if event.UserID == "" {
		event.UserID = l.userID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogUpload logs an accepted upload.
func (l *AuditLogger) LogUpload(ctx context.Context, path string, size int) {
	l.Log(&AuditEvent{
		EventType: AuditEventUpload,
		Success:   true,
		Message:   fmt.Sprintf("Upload accepted: %s", path),
		Details: map[string]interface{}{
			"path": path,
			"size": size,
		},
	})
}

// LogIngest logs a completed ingestion.
func (l *AuditLogger) LogIngest(ctx context.Context, path, fingerprint string, chunks int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngest,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Ingested %s (%d chunks)", path, chunks),
		Details: map[string]interface{}{
			"path":        path,
			"fingerprint": fingerprint,
			"chunks":      chunks,
		},
	})
}

// LogDuplicate logs a document skipped as already indexed.
func (l *AuditLogger) LogDuplicate(ctx context.Context, path, fingerprint string) {
	l.Log(&AuditEvent{
		EventType: AuditEventDuplicate,
		Success:   true,
		Message:   fmt.Sprintf("Skipped duplicate: %s", path),
		Details: map[string]interface{}{
			"path":        path,
			"fingerprint": fingerprint,
		},
	})
}

// LogIngestError logs a failed ingestion.
func (l *AuditLogger) LogIngestError(ctx context.Context, path string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventIngestError,
		Success:     false,
		Message:     fmt.Sprintf("Ingestion failed: %s", path),
		ErrorDetail: err.Error(),
		Details: map[string]interface{}{
			"path": path,
		},
	})
}

// LogSearch logs a served similarity search.
func (l *AuditLogger) LogSearch(ctx context.Context, query string, topK, results int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventSearch,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Search returned %d results", results),
		Details: map[string]interface{}{
			"query":   query,
			"top_k":   topK,
			"results": results,
		},
	})
}

// LogChat logs an LLM chat exchange.
func (l *AuditLogger) LogChat(ctx context.Context, provider, model string, inputTokens, outputTokens int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventChat,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Chat completion from %s/%s", provider, model),
		Details: map[string]interface{}{
			"provider":      provider,
			"model":         model,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  inputTokens + outputTokens,
		},
	})
}

// LogIndexProvision logs index provisioning.
func (l *AuditLogger) LogIndexProvision(ctx context.Context, index string, dimension int) {
	l.Log(&AuditEvent{
		EventType: AuditEventIndexProvision,
		Success:   true,
		Message:   fmt.Sprintf("Index ready: %s", index),
		Details: map[string]interface{}{
			"index":     index,
			"dimension": dimension,
		},
	})
}

// LogWorkflowStart logs a corpus ingestion workflow start.
func (l *AuditLogger) LogWorkflowStart(ctx context.Context, workflowID string, fileCount int) {
	l.Log(&AuditEvent{
		EventType:  AuditEventWorkflowStart,
		WorkflowID: workflowID,
		Success:    true,
		Message:    fmt.Sprintf("Workflow started: %d files", fileCount),
		Details: map[string]interface{}{
			"file_count": fileCount,
		},
	})
}

// LogWorkflowEnd logs a corpus ingestion workflow completion.
func (l *AuditLogger) LogWorkflowEnd(ctx context.Context, workflowID string, success bool, duration time.Duration, ingested, duplicates, failed int) {
	l.Log(&AuditEvent{
		EventType:  AuditEventWorkflowEnd,
		WorkflowID: workflowID,
		Success:    success,
		Duration:   duration,
		Message:    fmt.Sprintf("Workflow completed: %d ingested, %d duplicates, %d failed", ingested, duplicates, failed),
		Details: map[string]interface{}{
			"ingested":   ingested,
			"duplicates": duplicates,
			"failed":     failed,
		},
	})
}

// ReadAuditLog decodes audit events from a JSONL stream. Lines that do
// not parse as events are skipped, so a trail interleaved with other
// process output stays readable.
func ReadAuditLog(r io.Reader) ([]AuditEvent, error) {
	var events []AuditEvent

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev AuditEvent
		if err := json.Unmarshal(line, &ev); err != nil || ev.EventType == "" {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return events, nil
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		// Return a disabled logger if not initialized
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
