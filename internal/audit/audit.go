// Package audit is the append-only security event log. Recording is
// fire-and-forget: a sink failure must never change the outcome of the
// operation that produced the event, so every implementation swallows its
// own errors and falls back to stderr.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"estatedesk.org/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorIDKey   ctxKey = "audit_actor_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting identity id to the context for audit logging.
func WithActor(ctx context.Context, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorIDKey, actorID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(actorIDKey).(string); ok {
		return v
	}
	return ""
}

// Event is one security event. Write-once; the read path belongs to the
// reporting layer, not to this package.
type Event struct {
	Action     string
	Detail     map[string]any
	OccurredAt time.Time
	RequestID  string
	ActorID    string
}

// Recorder accepts security events. Implementations never return an error
// and never panic into the caller.
type Recorder interface {
	Record(ctx context.Context, action string, detail map[string]any)
}

func buildEvent(ctx context.Context, action string, detail map[string]any) Event {
	ev := Event{
		Action:     strings.TrimSpace(action),
		OccurredAt: time.Now().UTC(),
		RequestID:  requestIDFromContext(ctx),
		ActorID:    actorFromContext(ctx),
	}
	if len(detail) > 0 {
		copied := make(map[string]any, len(detail))
		for k, v := range detail {
			copied[k] = v
		}
		ev.Detail = copied
	} else {
		ev.Detail = map[string]any{}
	}
	return ev
}

func fallback(action string, err any) {
	fmt.Fprintf(os.Stderr, "audit: record %q failed: %v\n", action, err)
}

// LogRecorder writes events as JSON lines through the shared logger.
type LogRecorder struct{}

// NewLogRecorder returns a console-backed recorder.
func NewLogRecorder() *LogRecorder { return &LogRecorder{} }

func (r *LogRecorder) Record(ctx context.Context, action string, detail map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			fallback(action, p)
		}
	}()
	ev := buildEvent(ctx, action, detail)
	if ev.Action == "" {
		fallback(action, "event action is required")
		return
	}
	entry := map[string]any{
		"ts":     ev.OccurredAt.Format(time.RFC3339Nano),
		"type":   "security",
		"event":  ev.Action,
		"fields": ev.Detail,
	}
	if ev.RequestID != "" {
		entry["request_id"] = ev.RequestID
	}
	if ev.ActorID != "" {
		entry["actor_id"] = ev.ActorID
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fallback(action, err)
		return
	}
	obs.Logger().Println(string(data))
}

// Multi fans one event out to several sinks.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, action string, detail map[string]any) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, action, detail)
		}
	}
}

// Discard drops every event. Used where a Recorder is required but auditing
// is not wired, e.g. unit tests of unrelated behaviour.
type Discard struct{}

func (Discard) Record(context.Context, string, map[string]any) {}
