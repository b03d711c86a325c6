// Package api exposes HTTP handlers for the workout service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/logger"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	log     *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{service: service, log: log}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /workouts", h.listWorkouts)
	mux.HandleFunc("POST /workouts", h.createWorkout)
	mux.HandleFunc("GET /workouts/heartrate/average", h.averageHeartRate)
	mux.HandleFunc("GET /workouts/{id}", h.getWorkout)
	mux.HandleFunc("PUT /workouts/{id}", h.updateWorkout)
	mux.HandleFunc("DELETE /workouts/{id}", h.deleteWorkout)
	mux.HandleFunc("GET /healthz", healthz)

	// Method-less patterns are less specific than the ones above, so they
	// only see unsupported verbs.
	mux.HandleFunc("/workouts", methodNotAllowed("GET, POST"))
	mux.HandleFunc("/workouts/heartrate/average", methodNotAllowed("GET"))
	mux.HandleFunc("/workouts/{id}", methodNotAllowed("GET, PUT, DELETE"))
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	workouts, err := h.service.ListWorkouts(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]WorkoutView, 0, len(workouts))
	for _, workout := range workouts {
		items = append(items, toWorkoutView(workout))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	workout, err := h.service.GetWorkout(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutView(*workout))
}

func (h *Handler) averageHeartRate(w http.ResponseWriter, r *http.Request) {
	avg, err := h.service.AverageHeartRate(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AverageHeartRateResponse{AverageHeartRate: avg})
}

func (h *Handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWorkout(w, r)
	if !ok {
		return
	}

	input, err := req.toDomain()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	created, err := h.service.CreateWorkout(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkoutView(*created))
}

func (h *Handler) updateWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeWorkout(w, r)
	if !ok {
		return
	}

	input, err := req.toDomain()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	updated, err := h.service.UpdateWorkout(r.Context(), id, input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutView(*updated))
}

func (h *Handler) deleteWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteWorkout(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "workout id must be an integer")
		return 0, false
	}
	return id, true
}

func decodeWorkout(w http.ResponseWriter, r *http.Request) (WorkoutRequest, bool) {
	var req WorkoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body: "+err.Error())
		return WorkoutRequest{}, false
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unexpected data after JSON object")
		return WorkoutRequest{}, false
	}
	return req, true
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		logger.FromContext(r.Context(), h.log).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := ErrorResponse{
		Type:   code,
		Detail: detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
