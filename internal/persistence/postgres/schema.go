package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const dropSQL = `DROP TABLE IF EXISTS workout_event_log, workout_outbox, workouts`

// Schema returns the DDL applied by EnsureSchema.
func Schema() string {
	return schemaSQL
}

// EnsureSchema creates any missing tables. It is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// Reset drops every table and recreates the schema, discarding all data.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, dropSQL); err != nil {
		return err
	}
	return s.EnsureSchema(ctx)
}
