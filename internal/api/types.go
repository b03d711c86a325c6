package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/workouts/internal/domain"
)

// WorkoutRequest is the payload for POST /workouts and PUT /workouts/{id}.
// An id in the body is accepted and ignored.
type WorkoutRequest struct {
	ID          *int64    `json:"id,omitempty"`
	Name        string    `json:"name"`
	StartTime   Timestamp `json:"start_time"`
	EndTime     Timestamp `json:"end_time"`
	Notes       string    `json:"notes"`
	Distance    float64   `json:"distance"`
	HeartRate   int       `json:"heartrate"`
	WorkoutType string    `json:"workout_type"`
}

func (r WorkoutRequest) toDomain() (domain.Workout, error) {
	typ := domain.WorkoutTypeBase
	if name := strings.TrimSpace(r.WorkoutType); name != "" {
		parsed, err := domain.ParseWorkoutType(name)
		if err != nil {
			return domain.Workout{}, err
		}
		typ = parsed
	}
	return domain.Workout{
		Name:      r.Name,
		StartTime: r.StartTime.Time,
		EndTime:   r.EndTime.Time,
		Notes:     r.Notes,
		Distance:  r.Distance,
		HeartRate: r.HeartRate,
		Type:      typ,
	}, nil
}

// WorkoutView is the wire representation of a stored workout.
type WorkoutView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Notes       string    `json:"notes"`
	Distance    float64   `json:"distance"`
	HeartRate   int       `json:"heartrate"`
	WorkoutType string    `json:"workout_type"`
}

func toWorkoutView(w domain.Workout) WorkoutView {
	return WorkoutView{
		ID:          w.ID,
		Name:        w.Name,
		StartTime:   w.StartTime.UTC(),
		EndTime:     w.EndTime.UTC(),
		Notes:       w.Notes,
		Distance:    w.Distance,
		HeartRate:   w.HeartRate,
		WorkoutType: w.Type.String(),
	}
}

// AverageHeartRateResponse is returned by GET /workouts/heartrate/average.
type AverageHeartRateResponse struct {
	AverageHeartRate float64 `json:"avg_heart_rate"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// Timestamp accepts RFC 3339 plus zone-less datetimes and plain dates,
// which are read as UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses the formats Timestamp accepts.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", domain.ErrInvalidArgument, raw)
}

// UnmarshalJSON implements json.Unmarshaler. null leaves the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseFilter(query url.Values) (domain.Filter, error) {
	var filter domain.Filter

	if raw := query.Get("workout_type"); raw != "" {
		typ, err := domain.ParseWorkoutType(raw)
		if err != nil {
			return domain.Filter{}, err
		}
		filter.Type = &typ
	}

	if raw := query.Get("min_distance"); raw != "" {
		distance, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(distance) || math.IsInf(distance, 0) {
			return domain.Filter{}, fmt.Errorf("%w: min_distance must be a finite number", domain.ErrInvalidArgument)
		}
		filter.MinDistance = &distance
	}

	if raw := query.Get("after_time"); raw != "" {
		after, err := ParseTimestamp(raw)
		if err != nil {
			return domain.Filter{}, err
		}
		filter.After = &after
	}

	return filter, nil
}
