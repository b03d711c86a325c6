// Package sqlite stores workouts in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/observability"
	"example.com/workouts/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

// Timestamps are stored as fixed-width UTC text so that string comparison
// orders them chronologically.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Store hands out one pooled *sql.Conn per session.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory(ctx context.Context) (*Store, error) {
	return New(ctx, ":memory:")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema returns the DDL applied by EnsureSchema.
func Schema() string {
	return schemaSQL
}

// EnsureSchema creates any missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// Reset drops the workouts table, including its id sequence, and recreates it.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS workouts; DELETE FROM sqlite_sequence WHERE name = 'workouts'`); err != nil {
		return err
	}
	return s.EnsureSchema(ctx)
}

// Open implements domain.Store.
func (s *Store) Open(ctx context.Context) (domain.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &session{conn: conn}, nil
}

const selectWorkouts = `SELECT id, name, start_time, end_time, notes, distance, heartrate, workout_type FROM workouts`

type session struct {
	conn *sql.Conn
}

func (s *session) Query(ctx context.Context, filter domain.Filter) ([]domain.Workout, error) {
	clause := persistence.FilterClause(filter, func(int) string { return "?" }, encodeTimeArg)

	rows, err := s.conn.QueryContext(ctx, selectWorkouts+clause.SQL+` ORDER BY id`, clause.Args...)
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
	return results, rows.Err()
}

func (s *session) Find(ctx context.Context, id int64) (*domain.Workout, error) {
	workout, err := scanWorkout(s.conn.QueryRowContext(ctx, selectWorkouts+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &workout, nil
}

func (s *session) Insert(ctx context.Context, workout domain.Workout) (domain.Workout, error) {
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO workouts (name, start_time, end_time, notes, distance, heartrate, workout_type) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		workout.Name,
		encodeTime(workout.StartTime),
		encodeTime(workout.EndTime),
		workout.Notes,
		workout.Distance,
		workout.HeartRate,
		workout.Type.String(),
	)
	if err != nil {
		return domain.Workout{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Workout{}, err
	}
	workout.ID = id
	observability.RecordWorkoutMutation(observability.OpCreate, time.Now())
	return workout, nil
}

func (s *session) Replace(ctx context.Context, id int64, workout domain.Workout) (domain.Workout, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE workouts SET name = ?, start_time = ?, end_time = ?, notes = ?, distance = ?, heartrate = ?, workout_type = ? WHERE id = ?`,
		workout.Name,
		encodeTime(workout.StartTime),
		encodeTime(workout.EndTime),
		workout.Notes,
		workout.Distance,
		workout.HeartRate,
		workout.Type.String(),
		id,
	)
	if err != nil {
		return domain.Workout{}, err
	}
	if err := requireAffected(res); err != nil {
		return domain.Workout{}, err
	}
	workout.ID = id
	observability.RecordWorkoutMutation(observability.OpUpdate, time.Now())
	return workout, nil
}

func (s *session) Delete(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM workouts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	observability.RecordWorkoutMutation(observability.OpDelete, time.Now())
	return nil
}

func (s *session) HeartRateStats(ctx context.Context) (domain.HeartRateStats, error) {
	var stats domain.HeartRateStats
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(heartrate), 0.0) FROM workouts`).
		Scan(&stats.Count, &stats.Average)
	return stats, err
}

// Close returns the connection to the pool.
func (s *session) Close(ctx context.Context) error {
	return s.conn.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row scanner) (domain.Workout, error) {
	var (
		w                domain.Workout
		startRaw, endRaw string
		typeName         string
	)
	if err := row.Scan(&w.ID, &w.Name, &startRaw, &endRaw, &w.Notes, &w.Distance, &w.HeartRate, &typeName); err != nil {
		return domain.Workout{}, err
	}

	var err error
	if w.StartTime, err = decodeTime(startRaw); err != nil {
		return domain.Workout{}, fmt.Errorf("workout %d start_time: %w", w.ID, err)
	}
	if w.EndTime, err = decodeTime(endRaw); err != nil {
		return domain.Workout{}, fmt.Errorf("workout %d end_time: %w", w.ID, err)
	}
	if w.Type, err = domain.ParseWorkoutType(typeName); err != nil {
		return domain.Workout{}, fmt.Errorf("workout %d: %w", w.ID, err)
	}
	return w, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimeArg(t time.Time) any {
	return encodeTime(t)
}

func decodeTime(raw string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, raw, time.UTC)
}
