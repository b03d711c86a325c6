// Package domain defines the business logic for the workout service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store hands out request-scoped sessions. Every Session returned by Open
// must be closed by the caller.
type Store interface {
	Open(ctx context.Context) (Session, error)
}

// Session captures persistence operations bound to one acquired connection.
type Session interface {
	Query(ctx context.Context, filter Filter) ([]Workout, error)
	// Find returns nil, nil when no workout has the id.
	Find(ctx context.Context, id int64) (*Workout, error)
	Insert(ctx context.Context, workout Workout) (Workout, error)
	// Replace and Delete return ErrNotFound when no workout has the id.
	Replace(ctx context.Context, id int64, workout Workout) (Workout, error)
	Delete(ctx context.Context, id int64) error
	HeartRateStats(ctx context.Context) (HeartRateStats, error)
	// Close releases the connection and discards uncommitted work.
	Close(ctx context.Context) error
}

// Service orchestrates workout workflows.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListWorkouts returns every workout matching the filter, ordered by id.
func (s *Service) ListWorkouts(ctx context.Context, filter Filter) ([]Workout, error) {
	if filter.MinDistance != nil && *filter.MinDistance < 0 {
		return nil, fmt.Errorf("%w: negative minimum distance", ErrInvalidArgument)
	}
	if filter.After != nil {
		after := filter.After.UTC()
		filter.After = &after
	}

	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	defer sess.Close(ctx)

	workouts, err := sess.Query(ctx, filter)
	if err != nil {
		return nil, storageErr(err)
	}
	return workouts, nil
}

// GetWorkout fetches by ID.
func (s *Service) GetWorkout(ctx context.Context, id int64) (*Workout, error) {
	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	defer sess.Close(ctx)

	workout, err := sess.Find(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if workout == nil {
		return nil, ErrNotFound
	}
	return workout, nil
}

// AverageHeartRate returns the mean heart rate across all workouts. With no
// workouts recorded the mean is undefined and ErrNotFound is returned.
func (s *Service) AverageHeartRate(ctx context.Context) (float64, error) {
	sess, err := s.store.Open(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	defer sess.Close(ctx)

	stats, err := sess.HeartRateStats(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	if stats.Count == 0 {
		return 0, fmt.Errorf("%w: no workouts recorded", ErrNotFound)
	}
	return stats.Average, nil
}

// CreateWorkout validates and stores a new workout. Any ID on the input is ignored.
func (s *Service) CreateWorkout(ctx context.Context, workout Workout) (*Workout, error) {
	workout = normalize(workout)
	if err := workout.Validate(); err != nil {
		return nil, err
	}
	workout.ID = 0

	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	defer sess.Close(ctx)

	stored, err := sess.Insert(ctx, workout)
	if err != nil {
		return nil, storageErr(err)
	}
	return &stored, nil
}

// UpdateWorkout replaces every mutable field of the workout with the given id.
// Concurrent updates of the same id are last-write-wins.
func (s *Service) UpdateWorkout(ctx context.Context, id int64, workout Workout) (*Workout, error) {
	workout = normalize(workout)
	if err := workout.Validate(); err != nil {
		return nil, err
	}
	workout.ID = id

	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	defer sess.Close(ctx)

	stored, err := sess.Replace(ctx, id, workout)
	if err != nil {
		return nil, storageErr(err)
	}
	return &stored, nil
}

// DeleteWorkout permanently removes the workout.
func (s *Service) DeleteWorkout(ctx context.Context, id int64) error {
	sess, err := s.store.Open(ctx)
	if err != nil {
		return storageErr(err)
	}
	defer sess.Close(ctx)

	if err := sess.Delete(ctx, id); err != nil {
		return storageErr(err)
	}
	return nil
}

// normalize stores times as UTC microseconds, the finest precision every
// driver keeps, so a created record reads back unchanged.
func normalize(w Workout) Workout {
	w.StartTime = w.StartTime.UTC().Truncate(time.Microsecond)
	w.EndTime = w.EndTime.UTC().Truncate(time.Microsecond)
	return w
}

// storageErr passes domain errors through and tags everything else as a storage failure.
func storageErr(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
