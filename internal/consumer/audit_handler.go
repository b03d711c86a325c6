package consumer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditHandler appends consumed events to workout_event_log. Redelivered
// events are ignored by event_id.
type AuditHandler struct {
	db  Execer
	now func() time.Time
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(db Execer) *AuditHandler {
	return &AuditHandler{db: db, now: time.Now}
}

// Handle stores the event payload in the workout_event_log table.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	tag, err := h.db.Exec(ctx,
		`INSERT INTO workout_event_log (event_id, event_type, workout_id, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (event_id) DO NOTHING`,
		msg.Event.EventID,
		msg.Event.EventType,
		msg.Event.WorkoutID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		[]byte(msg.Payload),
		h.now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		recordDuplicate(msg)
	}
	return nil
}
