package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/persistence/memory"
)

func newTestMux(store domain.Store) *http.ServeMux {
	handler := NewHandler(domain.NewService(store), slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

const tempoRun = `{
	"id": 77,
	"name": "tempo",
	"start_time": "2024-03-03T07:00:00Z",
	"end_time": "2024-03-03T07:45:00Z",
	"notes": "windy",
	"distance": 9.5,
	"heartrate": 155,
	"workout_type": "speed"
}`

func TestCreateAndGetWorkout(t *testing.T) {
	mux := newTestMux(memory.NewStore())

	rr := do(t, mux, http.MethodPost, "/workouts", tempoRun)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[WorkoutView](t, rr)
	if created.ID == 77 || created.ID == 0 {
		t.Fatalf("expected store-assigned id, got %d", created.ID)
	}
	if created.WorkoutType != "speed" || created.HeartRate != 155 || created.Distance != 9.5 {
		t.Fatalf("unexpected body %+v", created)
	}

	rr = do(t, mux, http.MethodGet, "/workouts/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[WorkoutView](t, rr)
	if got != created {
		t.Fatalf("expected %+v got %+v", created, got)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
}

func TestCreateDefaultsAndNaiveTimestamps(t *testing.T) {
	mux := newTestMux(memory.NewStore())

	rr := do(t, mux, http.MethodPost, "/workouts", `{"start_time":"2024-03-03T07:00:00","end_time":"2024-03-03"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("end before start should be rejected, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodPost, "/workouts", `{"start_time":"2024-03-03","end_time":"2024-03-03T07:00:00.5"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[WorkoutView](t, rr)
	if created.WorkoutType != "base" {
		t.Fatalf("expected default type base, got %q", created.WorkoutType)
	}
	want := time.Date(2024, 3, 3, 7, 0, 0, 500_000_000, time.UTC)
	if !created.EndTime.Equal(want) {
		t.Fatalf("expected end %s got %s", want, created.EndTime)
	}
}

func TestCreateRejectsInvalidPayloads(t *testing.T) {
	cases := map[string]struct {
		body string
		code string
	}{
		"malformed json":    {`{"name":`, "invalid_request"},
		"bad timestamp":     {`{"start_time":"yesterday","end_time":"2024-03-03T07:00:00Z"}`, "invalid_request"},
		"negative distance": {`{"start_time":"2024-03-03T07:00:00Z","end_time":"2024-03-03T08:00:00Z","distance":-1}`, "validation_failed"},
		"negative hr":       {`{"start_time":"2024-03-03T07:00:00Z","end_time":"2024-03-03T08:00:00Z","heartrate":-5}`, "validation_failed"},
		"unknown type":      {`{"start_time":"2024-03-03T07:00:00Z","end_time":"2024-03-03T08:00:00Z","workout_type":"yoga"}`, "validation_failed"},
		"missing start":     {`{"end_time":"2024-03-03T08:00:00Z"}`, "validation_failed"},
		"trailing data":     {`{"start_time":"2024-03-03T07:00:00Z","end_time":"2024-03-03T08:00:00Z"} trailing-garbage`, "invalid_request"},
		"two objects":       {`{"start_time":"2024-03-03T07:00:00Z","end_time":"2024-03-03T08:00:00Z"}{}`, "invalid_request"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			mux := newTestMux(store)

			rr := do(t, mux, http.MethodPost, "/workouts", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
			}
			resp := decode[ErrorResponse](t, rr)
			if resp.Type != tc.code {
				t.Fatalf("expected %s got %+v", tc.code, resp)
			}

			list := decode[[]WorkoutView](t, do(t, mux, http.MethodGet, "/workouts", ""))
			if len(list) != 0 {
				t.Fatalf("invalid workout was persisted: %+v", list)
			}
		})
	}
}

func TestGetWorkoutErrors(t *testing.T) {
	mux := newTestMux(memory.NewStore())

	rr := do(t, mux, http.MethodGet, "/workouts/abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodGet, "/workouts/42", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Type != "not_found" {
		t.Fatalf("unexpected error body %+v", resp)
	}
}

func TestUpdateWorkout(t *testing.T) {
	mux := newTestMux(memory.NewStore())
	do(t, mux, http.MethodPost, "/workouts", tempoRun)

	rr := do(t, mux, http.MethodPut, "/workouts/1", `{"id":5,"name":"easy","start_time":"2024-03-04T07:00:00Z","end_time":"2024-03-04T07:30:00Z","workout_type":"recovery"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	updated := decode[WorkoutView](t, rr)
	if updated.ID != 1 || updated.Name != "easy" || updated.Notes != "" || updated.Distance != 0 || updated.WorkoutType != "recovery" {
		t.Fatalf("expected full replacement with path id, got %+v", updated)
	}

	rr = do(t, mux, http.MethodPut, "/workouts/99", `{"start_time":"2024-03-04T07:00:00Z","end_time":"2024-03-04T07:30:00Z"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodPut, "/workouts/99", `{"start_time":"2024-03-04T07:00:00Z","end_time":"2024-03-04T07:30:00Z","distance":-3}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("validation should run before existence check, got %d", rr.Code)
	}
}

func TestDeleteWorkout(t *testing.T) {
	mux := newTestMux(memory.NewStore())
	do(t, mux, http.MethodPost, "/workouts", tempoRun)

	rr := do(t, mux, http.MethodDelete, "/workouts/1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}

	rr = do(t, mux, http.MethodDelete, "/workouts/1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete should be 404, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodGet, "/workouts/1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("deleted workout still readable, got %d", rr.Code)
	}
}

func TestListWorkoutsFilters(t *testing.T) {
	mux := newTestMux(memory.NewStore())
	bodies := []string{
		`{"name":"a","start_time":"2024-03-01T07:00:00Z","end_time":"2024-03-01T08:00:00Z","distance":5,"workout_type":"long"}`,
		`{"name":"b","start_time":"2024-03-02T07:00:00Z","end_time":"2024-03-02T08:00:00Z","distance":20,"workout_type":"long"}`,
		`{"name":"c","start_time":"2024-03-03T07:00:00Z","end_time":"2024-03-03T08:00:00Z","distance":25,"workout_type":"speed"}`,
	}
	for _, body := range bodies {
		if rr := do(t, mux, http.MethodPost, "/workouts", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed failed: %d %s", rr.Code, rr.Body.String())
		}
	}

	cases := map[string][]string{
		"/workouts":                                          {"a", "b", "c"},
		"/workouts?workout_type=long":                        {"a", "b"},
		"/workouts?workout_type=long&min_distance=10":        {"b"},
		"/workouts?min_distance=20":                          {"b", "c"},
		"/workouts?after_time=2024-03-02T07:00:00Z":          {"c"},
		"/workouts?after_time=2024-03-01T12:00:00":           {"b", "c"},
		"/workouts?after_time=2024-03-02&workout_type=speed": {"c"},
	}
	for target, want := range cases {
		rr := do(t, mux, http.MethodGet, target, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", target, rr.Code)
		}
		list := decode[[]WorkoutView](t, rr)
		names := make([]string, 0, len(list))
		for _, w := range list {
			names = append(names, w.Name)
		}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Fatalf("%s: expected %v got %v", target, want, names)
		}
	}
}

func TestListWorkoutsRejectsBadQuery(t *testing.T) {
	mux := newTestMux(memory.NewStore())

	for _, target := range []string{
		"/workouts?workout_type=yoga",
		"/workouts?min_distance=far",
		"/workouts?min_distance=-1",
		"/workouts?min_distance=inf",
		"/workouts?min_distance=-Inf",
		"/workouts?min_distance=NaN",
		"/workouts?after_time=soon",
	} {
		rr := do(t, mux, http.MethodGet, target, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, rr.Code)
		}
	}
}

func TestAverageHeartRate(t *testing.T) {
	mux := newTestMux(memory.NewStore())

	rr := do(t, mux, http.MethodGet, "/workouts/heartrate/average", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no workouts, got %d", rr.Code)
	}

	for _, hr := range []string{"100", "120", "140"} {
		do(t, mux, http.MethodPost, "/workouts", `{"start_time":"2024-03-01T07:00:00Z","end_time":"2024-03-01T08:00:00Z","heartrate":`+hr+`}`)
	}

	rr = do(t, mux, http.MethodGet, "/workouts/heartrate/average", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	resp := decode[AverageHeartRateResponse](t, rr)
	if resp.AverageHeartRate != 120 {
		t.Fatalf("expected 120 got %v", resp.AverageHeartRate)
	}
	if !strings.Contains(rr.Body.String(), `"avg_heart_rate"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestUnsupportedMethod(t *testing.T) {
	mux := newTestMux(memory.NewStore())

	rr := do(t, mux, http.MethodPatch, "/workouts/1", `{}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Type != "method_not_allowed" {
		t.Fatalf("unexpected body %+v", resp)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header")
	}

	for _, method := range []string{http.MethodDelete, http.MethodPost, http.MethodTrace} {
		rr = do(t, mux, method, "/workouts/heartrate/average", "")
		if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != "GET" {
			t.Fatalf("%s: expected 405 with Allow GET, got %d %q", method, rr.Code, rr.Header().Get("Allow"))
		}
	}
}

func TestStorageFailureIsServerError(t *testing.T) {
	mux := newTestMux(failingStore{})

	rr := do(t, mux, http.MethodGet, "/workouts", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Type != "server_error" || strings.Contains(resp.Detail, "connection refused") {
		t.Fatalf("unexpected error body %+v", resp)
	}
}

func TestHealthz(t *testing.T) {
	rr := do(t, newTestMux(memory.NewStore()), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rr.Code, rr.Body.String())
	}
}

type failingStore struct{}

func (failingStore) Open(ctx context.Context) (domain.Session, error) {
	return nil, errors.New("dial tcp: connection refused")
}
