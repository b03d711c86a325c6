package outbox

import (
	"context"
	"fmt"
)

// Status summarises the outbox backlog.
type Status struct {
	Pending   int64
	Parked    int64
	Published int64
}

// Inspect counts outbox rows by delivery state.
func Inspect(ctx context.Context, db DB, maxAttempts int) (Status, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return Status{}, err
	}
	defer tx.Rollback(ctx)

	var st Status
	err = tx.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE published_at IS NULL AND attempts < $1),
            COUNT(*) FILTER (WHERE published_at IS NULL AND attempts >= $1),
            COUNT(*) FILTER (WHERE published_at IS NOT NULL)
        FROM workout_outbox`, maxAttempts).Scan(&st.Pending, &st.Parked, &st.Published)
	if err != nil {
		return Status{}, fmt.Errorf("count outbox rows: %w", err)
	}
	return st, nil
}

// Requeue resets the attempt counter of parked rows so the dispatcher picks
// them up again. It returns the number of rows requeued.
func Requeue(ctx context.Context, db DB, maxAttempts int) (int64, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	tag, err := db.Exec(ctx,
		`UPDATE workout_outbox SET attempts = 0, last_error = NULL WHERE published_at IS NULL AND attempts >= $1`,
		maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue parked events: %w", err)
	}
	requeuedCounter.Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
