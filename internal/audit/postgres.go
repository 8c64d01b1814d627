package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"estatedesk.org/internal/ids"
)

// PGRecorder appends events to the security_events table. Insert failures are
// contained: they go to the stderr fallback and never reach the caller.
type PGRecorder struct {
	db  *sql.DB
	now func() time.Time
}

// NewPGRecorder returns a recorder backed by db.
func NewPGRecorder(db *sql.DB) *PGRecorder {
	return &PGRecorder{db: db, now: time.Now}
}

func (r *PGRecorder) Record(ctx context.Context, action string, detail map[string]any) {
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
	payload, err := json.Marshal(ev.Detail)
	if err != nil {
		fallback(action, err)
		return
	}
	_, err = r.db.ExecContext(ctx,
		`insert into security_events(id, occurred_at, action, actor_id, request_id, detail)
		 values($1,$2,$3,$4,$5,$6)`,
		ids.New(), ev.OccurredAt, ev.Action, ev.ActorID, ev.RequestID, payload,
	)
	if err != nil {
		fallback(action, err)
	}
}
