package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ==================== AuditConfig Tests ====================

func TestDefaultAuditConfig(t *testing.T) {
	cfg := DefaultAuditConfig()
	if !cfg.Enabled {
		t.Fatal("expected enabled by default")
	}
	if cfg.OutputPath != "stdout" {
		t.Fatalf("expected stdout, got %s", cfg.OutputPath)
	}
}

// ==================== AuditLogger Tests ====================

func TestAuditLogger_New_Stdout(t *testing.T) {
	l, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestAuditLogger_New_File(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	l, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: logPath,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Fatal("expected log file to be created")
	}
}

func TestAuditLogger_New_NilConfig(t *testing.T) {
	l, err := NewAuditLogger(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected non-nil logger with default config")
	}
}

func TestAuditLogger_Log_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{
		writer:  &buf,
		enabled: false,
	}

	err := l.Log(&AuditEvent{EventType: AuditEventIngest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() > 0 {
		t.Fatal("expected no output when disabled")
	}
}

func TestAuditLogger_Log_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{
		writer:    &buf,
		sessionID: "test-session",
		userID:    "test-user",
		enabled:   true,
	}

	err := l.Log(&AuditEvent{
		EventType: AuditEventIngest,
		Success:   true,
		Message:   "test message",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var event AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}

	if event.EventType != AuditEventIngest {
		t.Fatalf("expected ingest.complete, got %s", event.EventType)
	}
	if event.SessionID != "test-session" {
		t.Fatalf("expected test-session, got %s", event.SessionID)
	}
	if event.UserID != "test-user" {
		t.Fatalf("expected test-user, got %s", event.UserID)
	}
}

func TestAuditLogger_Log_FillsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{
		writer:  &buf,
		enabled: true,
	}

	before := time.Now().UTC()
	l.Log(&AuditEvent{EventType: AuditEventIngest})
	after := time.Now().UTC()

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Fatal("timestamp should be set automatically")
	}
}

func TestAuditLogger_SessionID_Generated(t *testing.T) {
	l, _ := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	})

	if l.sessionID == "" {
		t.Fatal("expected auto-generated session ID")
	}
	if !strings.HasPrefix(l.sessionID, "session-") {
		t.Fatalf("expected session- prefix, got %s", l.sessionID)
	}
}

// ==================== Convenience Methods Tests ====================

func TestAuditLogger_LogIngest(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, enabled: true}

	l.LogIngest(context.Background(), "contracts/Token.sol", "abc123", 4, 2*time.Second)

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.EventType != AuditEventIngest {
		t.Fatalf("expected ingest.complete, got %s", event.EventType)
	}
	if !event.Success {
		t.Fatal("expected success")
	}
	if event.Details["path"] != "contracts/Token.sol" {
		t.Fatalf("expected path in details, got %v", event.Details)
	}
	if event.Details["chunks"] != float64(4) {
		t.Fatalf("expected 4 chunks in details, got %v", event.Details["chunks"])
	}
}

func TestAuditLogger_LogDuplicate(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, enabled: true}

	l.LogDuplicate(context.Background(), "Token.sol", "abc123")

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.EventType != AuditEventDuplicate {
		t.Fatalf("expected ingest.duplicate, got %s", event.EventType)
	}
	if event.Details["fingerprint"] != "abc123" {
		t.Fatalf("expected fingerprint in details, got %v", event.Details)
	}
}

func TestAuditLogger_LogIngestError(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, enabled: true}

	l.LogIngestError(context.Background(), "bad.sol", errors.New("index unavailable"))

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.EventType != AuditEventIngestError {
		t.Fatalf("expected ingest.error, got %s", event.EventType)
	}
	if event.Success {
		t.Fatal("expected failure")
	}
	if event.ErrorDetail != "index unavailable" {
		t.Fatalf("expected error detail, got %s", event.ErrorDetail)
	}
}

func TestAuditLogger_LogSearch(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, enabled: true}

	l.LogSearch(context.Background(), "reentrancy guard", 5, 3, 100*time.Millisecond)

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.EventType != AuditEventSearch {
		t.Fatalf("expected search, got %s", event.EventType)
	}
	if event.Details["query"] != "reentrancy guard" {
		t.Fatalf("expected query in details, got %v", event.Details)
	}
	if event.Details["results"] != float64(3) {
		t.Fatalf("expected 3 results in details, got %v", event.Details["results"])
	}
}

func TestAuditLogger_LogChat(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, enabled: true}

	l.LogChat(context.Background(), "openai", "gpt-4", 120, 80, time.Second)

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.EventType != AuditEventChat {
		t.Fatalf("expected chat, got %s", event.EventType)
	}
	if event.Details["total_tokens"] != float64(200) {
		t.Fatalf("expected 200 total tokens, got %v", event.Details["total_tokens"])
	}
}

func TestAuditLogger_LogWorkflowEnd(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, enabled: true}

	l.LogWorkflowEnd(context.Background(), "wf-42", true, time.Minute, 10, 2, 1)

	var event AuditEvent
	json.Unmarshal(buf.Bytes(), &event)

	if event.EventType != AuditEventWorkflowEnd {
		t.Fatalf("expected workflow.end, got %s", event.EventType)
	}
	if event.WorkflowID != "wf-42" {
		t.Fatalf("expected wf-42, got %s", event.WorkflowID)
	}
	if event.Details["duplicates"] != float64(2) {
		t.Fatalf("expected 2 duplicates in details, got %v", event.Details)
	}
}

// ==================== File Output Tests ====================

func TestAuditLogger_File_AppendsJSONL(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.jsonl")

	l, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: logPath,
		SessionID:  "s-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.LogIngest(context.Background(), "a.sol", "h1", 1, time.Second)
	l.LogDuplicate(context.Background(), "a.sol", "h1")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	for i, line := range lines {
		var event AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if event.SessionID != "s-1" {
			t.Fatalf("line %d session = %s, want s-1", i, event.SessionID)
		}
	}
}

// ==================== Reader Tests ====================

func TestReadAuditLog(t *testing.T) {
	var buf bytes.Buffer
	l := &AuditLogger{writer: &buf, sessionID: "s-1", enabled: true}

	l.LogIngest(context.Background(), "a.sol", "h1", 2, time.Second)
	buf.WriteString("plain log line, not an event\n")
	l.LogSearch(context.Background(), "reentrancy", 5, 1, time.Millisecond)
	buf.WriteString("{\"not_an_event\": true}\n")

	events, err := ReadAuditLog(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != AuditEventIngest {
		t.Fatalf("expected ingest.complete first, got %s", events[0].EventType)
	}
	if events[1].EventType != AuditEventSearch {
		t.Fatalf("expected search second, got %s", events[1].EventType)
	}
	if events[1].Details["query"] != "reentrancy" {
		t.Fatalf("expected query detail to survive the round trip, got %v", events[1].Details)
	}
}

// ==================== Global Logger Tests ====================

func TestAudit_Uninitialized_ReturnsDisabled(t *testing.T) {
	l := Audit()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	// Must be a no-op without panicking.
	if err := l.Log(&AuditEvent{EventType: AuditEventSearch}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
