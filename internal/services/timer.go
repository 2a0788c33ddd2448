package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"focus-timer/internal/models"
	"focus-timer/internal/repository"
)

const (
	startLockTTL      = 10 * time.Second
	defaultListLimit  = 100
	maxListLimit      = 1000
	autoStopNote      = "auto-stopped after exceeding maximum duration"
	todayStatsKeyDate = "2006-01-02"
)

type timerRepository interface {
	Create(ctx context.Context, s *models.TimerSession) error
	GetActive(ctx context.Context, userID uuid.UUID) (*models.TimerSession, error)
	GetByID(ctx context.Context, id int64, userID uuid.UUID) (*models.TimerSession, error)
	Pause(ctx context.Context, id int64, userID uuid.UUID, at time.Time) (*models.TimerSession, error)
	Resume(ctx context.Context, id int64, userID uuid.UUID, at time.Time) (*models.TimerSession, error)
	Finalize(ctx context.Context, s *models.TimerSession) (*models.TimerSession, error)
	Delete(ctx context.Context, id int64, userID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.TimerSession, error)
	TodayStats(ctx context.Context, userID uuid.UUID, day time.Time) (*models.TodayStats, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.TimerSession, error)
}

// TimerService owns the server side of the session lifecycle. The redis
// client is optional: without it start locking, stats caching and event
// publishing are skipped.
type TimerService struct {
	repo     timerRepository
	redis    *redis.Client
	statsTTL time.Duration
	now      func() time.Time
}

func NewTimerService(repo timerRepository, redisClient *redis.Client, statsTTL time.Duration) *TimerService {
	return &TimerService{
		repo:     repo,
		redis:    redisClient,
		statsTTL: statsTTL,
		now:      time.Now,
	}
}

func (s *TimerService) Start(ctx context.Context, userID uuid.UUID, req models.StartTimerRequest) (*models.TimerSession, error) {
	fieldErrors := make(map[string]string)
	if req.PlanID != nil && *req.PlanID <= 0 {
		fieldErrors["plan_id"] = "plan_id must be positive"
	}
	if req.ProjectID != nil && *req.ProjectID <= 0 {
		fieldErrors["project_id"] = "project_id must be positive"
	}
	title := req.Title
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		switch {
		case trimmed == "":
			title = nil
		case utf8.RuneCountInString(trimmed) > models.MaxTitleLength:
			fieldErrors["title"] = fmt.Sprintf("title must be at most %d characters", models.MaxTitleLength)
		default:
			title = &trimmed
		}
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if s.redis != nil {
		lockKey := "timer_start_lock:" + userID.String()
		locked, err := s.redis.SetNX(ctx, lockKey, "1", startLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire start lock: %w", err)
		}
		if !locked {
			return nil, &ConflictError{Message: "A timer is already being started"}
		}
		defer s.redis.Del(ctx, lockKey)
	}

	active, err := s.repo.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if active != nil {
		return nil, &ConflictError{Message: "A timer session is already running"}
	}

	session := &models.TimerSession{
		UserID:    userID,
		PlanID:    req.PlanID,
		ProjectID: req.ProjectID,
		Title:     title,
		StartTime: s.timestamp(),
		IsZenMode: req.IsZenMode,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, &ConflictError{Message: "A timer session is already running"}
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.publish(ctx, userID, models.EventTimerStarted, session)
	return session, nil
}

func (s *TimerService) Pause(ctx context.Context, userID uuid.UUID, id int64) (*models.TimerSession, error) {
	session, err := s.repo.Pause(ctx, id, userID, s.timestamp())
	if err != nil {
		return nil, s.transitionError(ctx, userID, id, err, "Session is not running")
	}

	s.publish(ctx, userID, models.EventTimerPaused, session)
	return session, nil
}

func (s *TimerService) Resume(ctx context.Context, userID uuid.UUID, id int64) (*models.TimerSession, error) {
	session, err := s.repo.Resume(ctx, id, userID, s.timestamp())
	if err != nil {
		return nil, s.transitionError(ctx, userID, id, err, "Session is not paused")
	}

	s.publish(ctx, userID, models.EventTimerResumed, session)
	return session, nil
}

// Stop finalizes the session. Paused intervals, including a pause still
// open at stop, are excluded from the duration.
func (s *TimerService) Stop(ctx context.Context, userID uuid.UUID, id int64, notes *string) (*models.TimerSession, error) {
	session, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.EndTime != nil {
		return nil, &ConflictError{Message: "Session is already stopped"}
	}

	finalizeSession(session, s.timestamp(), notes)

	stopped, err := s.repo.Finalize(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrNoTransition) {
			return nil, &ConflictError{Message: "Session is already stopped"}
		}
		return nil, fmt.Errorf("failed to stop session: %w", err)
	}

	s.invalidateToday(ctx, userID, stopped.StartTime)
	s.publish(ctx, userID, models.EventTimerStopped, stopped)
	return stopped, nil
}

// Discard deletes an active session without recording it.
func (s *TimerService) Discard(ctx context.Context, userID uuid.UUID, id int64) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return s.transitionError(ctx, userID, id, err, "Only an active session can be discarded")
	}

	s.publish(ctx, userID, models.EventTimerDiscarded, map[string]int64{"id": id})
	return nil
}

// Running returns the user's active (running or paused) session, or nil.
func (s *TimerService) Running(ctx context.Context, userID uuid.UUID) (*models.TimerSession, error) {
	session, err := s.repo.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load running session: %w", err)
	}
	return session, nil
}

func (s *TimerService) Sessions(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.TimerSession, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}

	sessions, err := s.repo.List(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*models.TimerSession{}
	}
	return sessions, nil
}

func (s *TimerService) Today(ctx context.Context, userID uuid.UUID) (*models.TodayStats, error) {
	day := s.now().UTC()
	key := todayStatsKey(userID, day)

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var stats models.TodayStats
			if json.Unmarshal(cached, &stats) == nil {
				return &stats, nil
			}
		}
	}

	stats, err := s.repo.TodayStats(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load today stats: %w", err)
	}

	if s.redis != nil && s.statsTTL > 0 {
		if data, err := json.Marshal(stats); err == nil {
			s.redis.Set(ctx, key, data, s.statsTTL)
		}
	}
	return stats, nil
}

// StopStale finalizes every session active for longer than maxAge and
// returns how many were stopped.
func (s *TimerService) StopStale(ctx context.Context, maxAge time.Duration) (int, error) {
	now := s.timestamp()
	stale, err := s.repo.ListStale(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	note := autoStopNote
	stopped := 0
	for _, session := range stale {
		finalizeSession(session, now, &note)

		result, err := s.repo.Finalize(ctx, session)
		if err != nil {
			if !errors.Is(err, repository.ErrNoTransition) {
				log.Printf("stale sessions: failed to stop session %d: %v", session.ID, err)
			}
			continue
		}

		stopped++
		s.invalidateToday(ctx, result.UserID, result.StartTime)
		s.publish(ctx, result.UserID, models.EventTimerStopped, result)
	}
	return stopped, nil
}

// timestamp is the current time at the precision Postgres stores.
func (s *TimerService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// finalizeSession fills the stop bookkeeping of an active session at end.
func finalizeSession(session *models.TimerSession, end time.Time, notes *string) {
	paused := session.PausedSeconds
	if session.PausedAt != nil {
		if open := int(end.Sub(*session.PausedAt) / time.Second); open > 0 {
			paused += open
		}
	}

	duration := int(end.Sub(session.StartTime)/time.Second) - paused
	if duration < 0 {
		duration = 0
	}

	score := focusScore(duration, paused, session.InterruptCount, session.IsZenMode)

	session.EndTime = &end
	session.PausedAt = nil
	session.PausedSeconds = paused
	session.Duration = duration
	session.FocusScore = &score
	session.Notes = notes
}

// transitionError maps a failed conditional update to NotFound or Conflict.
func (s *TimerService) transitionError(ctx context.Context, userID uuid.UUID, id int64, err error, conflictMsg string) error {
	if !errors.Is(err, repository.ErrNoTransition) {
		return fmt.Errorf("failed to update session %d: %w", id, err)
	}

	if _, getErr := s.repo.GetByID(ctx, id, userID); getErr != nil {
		if errors.Is(getErr, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Session not found"}
		}
		return fmt.Errorf("failed to load session %d: %w", id, getErr)
	}
	return &ConflictError{Message: conflictMsg}
}

// publish sends a timer event to the user's devices via Redis pub/sub.
func (s *TimerService) publish(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(models.WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, userUpdatesChannel(userID), data).Err(); err != nil {
		log.Printf("timer: failed to publish %s for user %s: %v", eventType, userID, err)
	}
}

func (s *TimerService) invalidateToday(ctx context.Context, userID uuid.UUID, day time.Time) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, todayStatsKey(userID, day), todayStatsKey(userID, s.now().UTC()))
}

func todayStatsKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("timer_today:%s:%s", userID, day.UTC().Format(todayStatsKeyDate))
}

func userUpdatesChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}
