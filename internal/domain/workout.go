package domain

import (
	"fmt"
	"time"
)

// WorkoutType classifies a workout. The zero value is WorkoutTypeBase.
type WorkoutType uint8

const (
	WorkoutTypeBase WorkoutType = iota
	WorkoutTypeRecovery
	WorkoutTypeLong
	WorkoutTypeSpeed
	WorkoutTypeInterval
)

var workoutTypeNames = map[WorkoutType]string{
	WorkoutTypeBase:     "base",
	WorkoutTypeRecovery: "recovery",
	WorkoutTypeLong:     "long",
	WorkoutTypeSpeed:    "speed",
	WorkoutTypeInterval: "interval",
}

var workoutTypesByName = func() map[string]WorkoutType {
	out := make(map[string]WorkoutType, len(workoutTypeNames))
	for t, name := range workoutTypeNames {
		out[name] = t
	}
	return out
}()

// String returns the wire and storage name of the type.
func (t WorkoutType) String() string {
	if name, ok := workoutTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("WorkoutType(%d)", uint8(t))
}

// ParseWorkoutType maps a stored or wire name onto the closed type set.
// Unknown names fail with ErrInvalidArgument.
func ParseWorkoutType(name string) (WorkoutType, error) {
	t, ok := workoutTypesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown workout_type %q", ErrInvalidArgument, name)
	}
	return t, nil
}

// WorkoutTypes lists every known type in declaration order.
func WorkoutTypes() []WorkoutType {
	return []WorkoutType{WorkoutTypeBase, WorkoutTypeRecovery, WorkoutTypeLong, WorkoutTypeSpeed, WorkoutTypeInterval}
}

// Workout is one recorded exercise session.
type Workout struct {
	ID        int64
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Notes     string
	Distance  float64
	HeartRate int
	Type      WorkoutType
}

// Validate checks the invariants shared by create and update.
func (w Workout) Validate() error {
	switch {
	case w.StartTime.IsZero():
		return fmt.Errorf("%w: start_time is required", ErrInvalidArgument)
	case w.EndTime.IsZero():
		return fmt.Errorf("%w: end_time is required", ErrInvalidArgument)
	case w.Distance < 0:
		return fmt.Errorf("%w: negative distance", ErrInvalidArgument)
	case w.HeartRate < 0:
		return fmt.Errorf("%w: negative heartrate", ErrInvalidArgument)
	case w.EndTime.Before(w.StartTime):
		return fmt.Errorf("%w: end time precedes start time", ErrInvalidArgument)
	}
	if _, ok := workoutTypeNames[w.Type]; !ok {
		return fmt.Errorf("%w: unknown workout_type %d", ErrInvalidArgument, uint8(w.Type))
	}
	return nil
}

// Filter narrows a list query. Nil fields are not applied; set fields combine with AND.
type Filter struct {
	Type        *WorkoutType
	MinDistance *float64
	After       *time.Time
}

// Matches reports whether w satisfies every set predicate.
func (f Filter) Matches(w Workout) bool {
	if f.Type != nil && w.Type != *f.Type {
		return false
	}
	if f.MinDistance != nil && w.Distance < *f.MinDistance {
		return false
	}
	if f.After != nil && !w.StartTime.After(*f.After) {
		return false
	}
	return true
}

// HeartRateStats is the aggregate behind the average heart rate endpoint.
type HeartRateStats struct {
	Count   int64
	Average float64
}
