// Package postgres provides Postgres-backed persistence for workouts and their outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/events"
	"example.com/workouts/internal/observability"
	"example.com/workouts/internal/persistence"
)

// DB is the subset of *pgxpool.Pool the store needs. pgxmock pools satisfy it too.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Option configures a Store.
type Option func(*Store)

// WithEvents records a workout_outbox row in the same transaction as every mutation.
func WithEvents() Option {
	return func(s *Store) { s.events = true }
}

// WithClock overrides the clock used for event and metric timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store opens one transaction per session; the pooled connection behind it is
// returned when the transaction commits or rolls back.
type Store struct {
	db     DB
	events bool
	now    func() time.Time
}

// NewStore constructs a Store.
func NewStore(db DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open implements domain.Store.
func (s *Store) Open(ctx context.Context) (domain.Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &session{store: s, tx: tx}, nil
}

const selectWorkouts = `SELECT id, name, start_time, end_time, notes, distance, heartrate, workout_type FROM workouts`

type session struct {
	store *Store
	tx    pgx.Tx
	done  bool
}

func (s *session) Query(ctx context.Context, filter domain.Filter) ([]domain.Workout, error) {
	clause := persistence.FilterClause(filter, placeholder, nil)

	rows, err := s.tx.Query(ctx, selectWorkouts+clause.SQL+` ORDER BY id`, clause.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Workout, 0)
	for rows.Next() {
		workout, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, workout)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *session) Find(ctx context.Context, id int64) (*domain.Workout, error) {
	workout, err := scanWorkout(s.tx.QueryRow(ctx, selectWorkouts+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &workout, nil
}

func (s *session) Insert(ctx context.Context, workout domain.Workout) (domain.Workout, error) {
	const stmt = `INSERT INTO workouts (name, start_time, end_time, notes, distance, heartrate, workout_type)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`

	row := s.tx.QueryRow(ctx, stmt,
		workout.Name,
		workout.StartTime,
		workout.EndTime,
		workout.Notes,
		workout.Distance,
		workout.HeartRate,
		workout.Type.String(),
	)
	if err := row.Scan(&workout.ID); err != nil {
		return domain.Workout{}, err
	}

	if err := s.commit(ctx, events.TypeWorkoutCreated, observability.OpCreate, workout); err != nil {
		return domain.Workout{}, err
	}
	return workout, nil
}

func (s *session) Replace(ctx context.Context, id int64, workout domain.Workout) (domain.Workout, error) {
	const stmt = `UPDATE workouts
        SET name=$2, start_time=$3, end_time=$4, notes=$5, distance=$6, heartrate=$7, workout_type=$8
        WHERE id=$1`

	tag, err := s.tx.Exec(ctx, stmt,
		id,
		workout.Name,
		workout.StartTime,
		workout.EndTime,
		workout.Notes,
		workout.Distance,
		workout.HeartRate,
		workout.Type.String(),
	)
	if err != nil {
		return domain.Workout{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Workout{}, domain.ErrNotFound
	}

	workout.ID = id
	if err := s.commit(ctx, events.TypeWorkoutUpdated, observability.OpUpdate, workout); err != nil {
		return domain.Workout{}, err
	}
	return workout, nil
}

func (s *session) Delete(ctx context.Context, id int64) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM workouts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return s.commit(ctx, events.TypeWorkoutDeleted, observability.OpDelete, domain.Workout{ID: id})
}

func (s *session) HeartRateStats(ctx context.Context) (domain.HeartRateStats, error) {
	var stats domain.HeartRateStats
	row := s.tx.QueryRow(ctx, `SELECT COUNT(*), COALESCE(AVG(heartrate), 0)::float8 FROM workouts`)
	if err := row.Scan(&stats.Count, &stats.Average); err != nil {
		return domain.HeartRateStats{}, err
	}
	return stats, nil
}

func (s *session) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback(ctx)
}

// commit appends the outbox event when enabled and commits the transaction.
func (s *session) commit(ctx context.Context, eventType, op string, workout domain.Workout) error {
	now := s.store.now()
	if s.store.events {
		if err := s.insertOutbox(ctx, events.NewWorkoutChanged(eventType, workout, now)); err != nil {
			return err
		}
	}

	s.done = true
	if err := s.tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordWorkoutMutation(op, now)
	return nil
}

func (s *session) insertOutbox(ctx context.Context, evt events.WorkoutChanged) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO workout_outbox (event_id, event_type, workout_id, payload, created_at)
        VALUES ($1,$2,$3,$4,$5)`

	_, err = s.tx.Exec(ctx, stmt, evt.EventID, evt.EventType, evt.WorkoutID, body, evt.OccurredAt)
	return err
}

func scanWorkout(row pgx.Row) (domain.Workout, error) {
	var (
		w        domain.Workout
		typeName string
	)
	if err := row.Scan(&w.ID, &w.Name, &w.StartTime, &w.EndTime, &w.Notes, &w.Distance, &w.HeartRate, &typeName); err != nil {
		return domain.Workout{}, err
	}
	typ, err := domain.ParseWorkoutType(typeName)
	if err != nil {
		return domain.Workout{}, fmt.Errorf("workout %d: %w", w.ID, err)
	}
	w.Type = typ
	w.StartTime = w.StartTime.UTC()
	w.EndTime = w.EndTime.UTC()
	return w, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
