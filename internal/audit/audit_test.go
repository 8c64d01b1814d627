package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"estatedesk.org/internal/obs"
)

func TestLogRecorderEmitsStructuredEntry(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithActor(ctx, "user-42")

	NewLogRecorder().Record(ctx, "successful_agent_login", map[string]any{"agent_id": "S101"})

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "security" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "successful_agent_login" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor_id"] != "user-42" {
		t.Fatalf("unexpected actor id: %v", entry["actor_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["agent_id"] != "S101" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogRecorderEmptyActionDoesNotEmit(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	NewLogRecorder().Record(context.Background(), "   ", nil)
	if buf.Len() != 0 {
		t.Fatalf("empty action should not produce a log line, got %q", buf.String())
	}
}

type capturingRecorder struct {
	mu     sync.Mutex
	events []Event
	wg     *sync.WaitGroup
}

func (c *capturingRecorder) Record(ctx context.Context, action string, detail map[string]any) {
	c.mu.Lock()
	c.events = append(c.events, buildEvent(ctx, action, detail))
	c.mu.Unlock()
	if c.wg != nil {
		c.wg.Done()
	}
}

func TestAsyncRecorderDrainsInOrder(t *testing.T) {
	sink := &capturingRecorder{}
	r := NewAsyncRecorder(sink, 8)

	ctx := WithRequestID(context.Background(), "req-1")
	r.Record(ctx, "agent_password_mismatch", map[string]any{"agent_id": "S101"})
	r.Record(ctx, "rate_limit_exceeded", nil)
	r.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(sink.events))
	}
	if sink.events[0].Action != "agent_password_mismatch" || sink.events[1].Action != "rate_limit_exceeded" {
		t.Fatalf("events drained out of order: %+v", sink.events)
	}
	if sink.events[0].RequestID != "req-1" {
		t.Fatalf("request id not carried to the worker: %+v", sink.events[0])
	}
}

func TestAsyncRecorderRecordAfterCloseIsContained(t *testing.T) {
	r := NewAsyncRecorder(&capturingRecorder{}, 1)
	r.Close()
	// Must not panic or block.
	r.Record(context.Background(), "late_event", nil)
}

func TestPGRecorderInsertFailureIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into security_events").WillReturnError(context.DeadlineExceeded)

	// Record must not surface the failure in any way.
	NewPGRecorder(db).Record(context.Background(), "manager_email_not_found", map[string]any{"email": "x@example.com"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRecorderInsertsEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into security_events").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "successful_manager_login", "user-42", "req-9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := WithActor(WithRequestID(context.Background(), "req-9"), "user-42")
	NewPGRecorder(db).Record(ctx, "successful_manager_login", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
