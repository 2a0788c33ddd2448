package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"focus-timer/internal/middleware"
	"focus-timer/internal/models"
	"focus-timer/internal/services"
)

type stubTimerService struct {
	session  *models.TimerSession
	sessions []*models.TimerSession
	stats    *models.TodayStats
	err      error

	lastUser   uuid.UUID
	lastID     int64
	lastStart  models.StartTimerRequest
	lastNotes  *string
	lastFilter models.SessionFilter
}

func (s *stubTimerService) Start(ctx context.Context, userID uuid.UUID, req models.StartTimerRequest) (*models.TimerSession, error) {
	s.lastUser, s.lastStart = userID, req
	return s.session, s.err
}

func (s *stubTimerService) Pause(ctx context.Context, userID uuid.UUID, id int64) (*models.TimerSession, error) {
	s.lastUser, s.lastID = userID, id
	return s.session, s.err
}

func (s *stubTimerService) Resume(ctx context.Context, userID uuid.UUID, id int64) (*models.TimerSession, error) {
	s.lastUser, s.lastID = userID, id
	return s.session, s.err
}

func (s *stubTimerService) Stop(ctx context.Context, userID uuid.UUID, id int64, notes *string) (*models.TimerSession, error) {
	s.lastUser, s.lastID, s.lastNotes = userID, id, notes
	return s.session, s.err
}

func (s *stubTimerService) Discard(ctx context.Context, userID uuid.UUID, id int64) error {
	s.lastUser, s.lastID = userID, id
	return s.err
}

func (s *stubTimerService) Running(ctx context.Context, userID uuid.UUID) (*models.TimerSession, error) {
	s.lastUser = userID
	return s.session, s.err
}

func (s *stubTimerService) Sessions(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.TimerSession, error) {
	s.lastUser, s.lastFilter = userID, f
	return s.sessions, s.err
}

func (s *stubTimerService) Today(ctx context.Context, userID uuid.UUID) (*models.TodayStats, error) {
	s.lastUser = userID
	return s.stats, s.err
}

func newTimerRequest(method, target, body string, userID uuid.UUID, id string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Error.Code
}

func TestTimerHandler_Start(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	planID := int64(5)
	stub := &stubTimerService{session: &models.TimerSession{ID: 42, UserID: userID, PlanID: &planID, StartTime: start}}
	h := NewTimerHandler(stub)

	req := newTimerRequest(http.MethodPost, "/api/v1/timer/start", `{"plan_id":5,"title":"Chapter 3","is_zen_mode":true}`, userID, "")
	rr := httptest.NewRecorder()
	h.Start(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}
	if stub.lastUser != userID || stub.lastStart.PlanID == nil || *stub.lastStart.PlanID != 5 || !stub.lastStart.IsZenMode ||
		stub.lastStart.Title == nil || *stub.lastStart.Title != "Chapter 3" {
		t.Fatalf("service received unexpected request: %+v", stub.lastStart)
	}

	var session models.TimerSession
	if err := json.NewDecoder(rr.Body).Decode(&session); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if session.ID != 42 || !session.StartTime.Equal(start) {
		t.Fatalf("unexpected session in response: %+v", session)
	}
}

func TestTimerHandler_StartEmptyBody(t *testing.T) {
	stub := &stubTimerService{session: &models.TimerSession{ID: 1}}
	h := NewTimerHandler(stub)

	rr := httptest.NewRecorder()
	h.Start(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/start", "", uuid.New(), ""))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d for empty body, got %d", http.StatusCreated, rr.Code)
	}
}

func TestTimerHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"conflict", &services.ConflictError{Message: "A timer session is already running"}, http.StatusConflict, "CONFLICT"},
		{"validation", &services.ValidationError{Fields: map[string]string{"plan_id": "bad"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", &services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTimerHandler(&stubTimerService{err: tc.err})

			rr := httptest.NewRecorder()
			h.Start(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/start", `{}`, uuid.New(), ""))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := decodeErrorCode(t, rr); code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, code)
			}
		})
	}
}

func TestTimerHandler_InvalidSessionID(t *testing.T) {
	stub := &stubTimerService{}
	h := NewTimerHandler(stub)

	for _, id := range []string{"abc", "0", "-4"} {
		rr := httptest.NewRecorder()
		h.Pause(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/"+id+"/pause", "", uuid.New(), id))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("id %q: expected status %d, got %d", id, http.StatusBadRequest, rr.Code)
		}
	}
	if stub.lastID != 0 {
		t.Fatalf("service must not be called for invalid ids")
	}
}

func TestTimerHandler_PauseResumeStopDiscard(t *testing.T) {
	userID := uuid.New()
	stub := &stubTimerService{session: &models.TimerSession{ID: 42, UserID: userID}}
	h := NewTimerHandler(stub)

	rr := httptest.NewRecorder()
	h.Pause(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/42/pause", "", userID, "42"))
	if rr.Code != http.StatusOK || stub.lastID != 42 {
		t.Fatalf("pause: status %d, id %d", rr.Code, stub.lastID)
	}

	rr = httptest.NewRecorder()
	h.Resume(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/42/resume", "", userID, "42"))
	if rr.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Stop(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/42/stop", `{"notes":"chapter 3"}`, userID, "42"))
	if rr.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rr.Code)
	}
	if stub.lastNotes == nil || *stub.lastNotes != "chapter 3" {
		t.Fatalf("stop: notes not forwarded, got %v", stub.lastNotes)
	}

	rr = httptest.NewRecorder()
	h.Stop(rr, newTimerRequest(http.MethodPost, "/api/v1/timer/42/stop", `{"notes":`, userID, "42"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("stop with malformed body: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Discard(rr, newTimerRequest(http.MethodDelete, "/api/v1/timer/42", "", userID, "42"))
	if rr.Code != http.StatusOK {
		t.Fatalf("discard: expected 200, got %d", rr.Code)
	}
}

func TestTimerHandler_RunningNone(t *testing.T) {
	h := NewTimerHandler(&stubTimerService{})

	rr := httptest.NewRecorder()
	h.Running(rr, newTimerRequest(http.MethodGet, "/api/v1/timer/running", "", uuid.New(), ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "null" {
		t.Fatalf("expected null body, got %q", body)
	}
}

func TestTimerHandler_SessionsQuery(t *testing.T) {
	stub := &stubTimerService{sessions: []*models.TimerSession{{ID: 7}}}
	h := NewTimerHandler(stub)

	rr := httptest.NewRecorder()
	h.Sessions(rr, newTimerRequest(http.MethodGet, "/api/v1/timer/sessions?plan_id=5&date=2026-03-02&skip=10&limit=20", "", uuid.New(), ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	f := stub.lastFilter
	if f.PlanID == nil || *f.PlanID != 5 || f.ProjectID != nil || f.Skip != 10 || f.Limit != 20 {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if f.Date == nil || f.Date.Format("2006-01-02") != "2026-03-02" {
		t.Fatalf("unexpected date filter: %v", f.Date)
	}

	var sessions []models.TimerSession
	if err := json.NewDecoder(rr.Body).Decode(&sessions); err != nil || len(sessions) != 1 {
		t.Fatalf("unexpected sessions body: %v, %v", sessions, err)
	}
}

func TestParseSessionFilter_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{"bad plan", "plan_id=x", "plan_id"},
		{"negative project", "project_id=-1", "project_id"},
		{"bad date", "date=03/02/2026", "date"},
		{"negative skip", "skip=-1", "skip"},
		{"limit too large", "limit=1001", "limit"},
		{"limit zero", "limit=0", "limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/timer/sessions?"+tc.query, nil)
			_, fields := parseSessionFilter(req)
			if fields[tc.field] == "" {
				t.Fatalf("expected error for %s, got %v", tc.field, fields)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timer/sessions", nil)
	filter, fields := parseSessionFilter(req)
	if len(fields) != 0 || filter.Limit != 100 || filter.Skip != 0 {
		t.Fatalf("unexpected defaults: %+v, %v", filter, fields)
	}
}

func TestTimerHandler_Today(t *testing.T) {
	avg := 91.5
	h := NewTimerHandler(&stubTimerService{stats: &models.TodayStats{TotalDuration: 3600, SessionCount: 2, FocusScoreAvg: &avg}})

	rr := httptest.NewRecorder()
	h.Today(rr, newTimerRequest(http.MethodGet, "/api/v1/timer/today", "", uuid.New(), ""))

	var stats models.TodayStats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalDuration != 3600 || stats.SessionCount != 2 || stats.FocusScoreAvg == nil || *stats.FocusScoreAvg != 91.5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
