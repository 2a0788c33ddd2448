package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"focus-timer/internal/middleware"
	"focus-timer/internal/models"
)

type timerService interface {
	Start(ctx context.Context, userID uuid.UUID, req models.StartTimerRequest) (*models.TimerSession, error)
	Pause(ctx context.Context, userID uuid.UUID, id int64) (*models.TimerSession, error)
	Resume(ctx context.Context, userID uuid.UUID, id int64) (*models.TimerSession, error)
	Stop(ctx context.Context, userID uuid.UUID, id int64, notes *string) (*models.TimerSession, error)
	Discard(ctx context.Context, userID uuid.UUID, id int64) error
	Running(ctx context.Context, userID uuid.UUID) (*models.TimerSession, error)
	Sessions(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.TimerSession, error)
	Today(ctx context.Context, userID uuid.UUID) (*models.TodayStats, error)
}

type TimerHandler struct {
	timer timerService
}

func NewTimerHandler(timer timerService) *TimerHandler {
	return &TimerHandler{timer: timer}
}

func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.StartTimerRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.timer.Start(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *TimerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.timer.Pause(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *TimerHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.timer.Resume(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *TimerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req models.StopTimerRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.timer.Stop(r.Context(), userID, id, req.Notes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *TimerHandler) Discard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	if err := h.timer.Discard(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Timer discarded"})
}

// Running responds with the active session or JSON null.
func (h *TimerHandler) Running(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	session, err := h.timer.Running(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *TimerHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	filter, fields := parseSessionFilter(r)
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid query parameters", fields, r))
		return
	}

	sessions, err := h.timer.Sessions(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *TimerHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	stats, err := h.timer.Today(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return 0, false
	}
	return id, true
}

// decodeOptionalBody decodes a JSON body; an empty body leaves dst untouched.
func decodeOptionalBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseSessionFilter(r *http.Request) (models.SessionFilter, map[string]string) {
	q := r.URL.Query()
	fields := make(map[string]string)
	filter := models.SessionFilter{Limit: 100}

	parseID := func(key string) *int64 {
		raw := q.Get(key)
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			fields[key] = key + " must be a positive integer"
			return nil
		}
		return &n
	}
	filter.PlanID = parseID("plan_id")
	filter.ProjectID = parseID("project_id")

	if raw := q.Get("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fields["date"] = "date must be YYYY-MM-DD"
		} else {
			filter.Date = &d
		}
	}

	if raw := q.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["skip"] = "skip must be >= 0"
		} else {
			filter.Skip = n
		}
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			fields["limit"] = "limit must be between 1 and 1000"
		} else {
			filter.Limit = n
		}
	}

	return filter, fields
}
