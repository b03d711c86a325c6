// Package memory keeps workouts in process memory for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/workouts/internal/domain"
)

// Store stores workouts in a map guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	workouts map[int64]domain.Workout
	nextID   int64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		workouts: make(map[int64]domain.Workout),
		nextID:   1,
	}
}

// Open implements domain.Store. Sessions share the store and hold no resources.
func (s *Store) Open(ctx context.Context) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return session{store: s}, nil
}

// EnsureSchema is a no-op; the map needs no setup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return ctx.Err()
}

// Reset drops every workout and restarts id assignment.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workouts = make(map[int64]domain.Workout)
	s.nextID = 1
	return nil
}

type session struct {
	store *Store
}

func (s session) Query(ctx context.Context, filter domain.Filter) ([]domain.Workout, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	results := make([]domain.Workout, 0, len(s.store.workouts))
	for _, workout := range s.store.workouts {
		if filter.Matches(workout) {
			results = append(results, workout)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (s session) Find(ctx context.Context, id int64) (*domain.Workout, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	workout, ok := s.store.workouts[id]
	if !ok {
		return nil, nil
	}
	return &workout, nil
}

func (s session) Insert(ctx context.Context, workout domain.Workout) (domain.Workout, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	workout.ID = s.store.nextID
	s.store.nextID++
	s.store.workouts[workout.ID] = workout
	return workout, nil
}

func (s session) Replace(ctx context.Context, id int64, workout domain.Workout) (domain.Workout, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, ok := s.store.workouts[id]; !ok {
		return domain.Workout{}, domain.ErrNotFound
	}
	workout.ID = id
	s.store.workouts[id] = workout
	return workout, nil
}

func (s session) Delete(ctx context.Context, id int64) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, ok := s.store.workouts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.store.workouts, id)
	return nil
}

func (s session) HeartRateStats(ctx context.Context) (domain.HeartRateStats, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var stats domain.HeartRateStats
	var total int64
	for _, workout := range s.store.workouts {
		stats.Count++
		total += int64(workout.HeartRate)
	}
	if stats.Count > 0 {
		stats.Average = float64(total) / float64(stats.Count)
	}
	return stats, nil
}

func (s session) Close(ctx context.Context) error { return nil }
