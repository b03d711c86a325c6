// Package events defines the change events published for workouts.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/workouts/internal/domain"
)

// Event types carried in the event_type header and payload.
const (
	TypeWorkoutCreated = "workout.created"
	TypeWorkoutUpdated = "workout.updated"
	TypeWorkoutDeleted = "workout.deleted"
)

// WorkoutSnapshot is the state of a workout after the change.
type WorkoutSnapshot struct {
	Name        string    `json:"name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Notes       string    `json:"notes"`
	Distance    float64   `json:"distance"`
	HeartRate   int       `json:"heartrate"`
	WorkoutType string    `json:"workout_type"`
}

// WorkoutChanged is emitted after a workout is created, replaced or deleted.
// Workout is nil for deletions.
type WorkoutChanged struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	WorkoutID  int64            `json:"workout_id"`
	Workout    *WorkoutSnapshot `json:"workout,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewWorkoutChanged builds an event with a fresh id.
func NewWorkoutChanged(eventType string, workout domain.Workout, occurredAt time.Time) WorkoutChanged {
	evt := WorkoutChanged{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		WorkoutID:  workout.ID,
		OccurredAt: occurredAt.UTC(),
	}
	if eventType != TypeWorkoutDeleted {
		evt.Workout = &WorkoutSnapshot{
			Name:        workout.Name,
			StartTime:   workout.StartTime,
			EndTime:     workout.EndTime,
			Notes:       workout.Notes,
			Distance:    workout.Distance,
			HeartRate:   workout.HeartRate,
			WorkoutType: workout.Type.String(),
		}
	}
	return evt
}

// Validate checks the fields a consumer relies on.
func (e WorkoutChanged) Validate() error {
	switch e.EventType {
	case TypeWorkoutCreated, TypeWorkoutUpdated:
		if e.Workout == nil {
			return fmt.Errorf("%s event without workout snapshot", e.EventType)
		}
	case TypeWorkoutDeleted:
	default:
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.EventID == "" {
		return errors.New("missing event_id")
	}
	if e.WorkoutID <= 0 {
		return fmt.Errorf("invalid workout_id %d", e.WorkoutID)
	}
	return nil
}
