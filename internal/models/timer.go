package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusStopped = "stopped"
)

type TimerSession struct {
	ID             int64      `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	PlanID         *int64     `json:"plan_id"`
	ProjectID      *int64     `json:"project_id"`
	Title          *string    `json:"title"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	PausedAt       *time.Time `json:"paused_at"`
	PausedSeconds  int        `json:"paused_seconds"`
	Duration       int        `json:"duration"` // seconds, set at stop
	InterruptCount int        `json:"interrupt_count"`
	FocusScore     *float64   `json:"focus_score"` // 0-100, set at stop
	Notes          *string    `json:"notes"`
	IsZenMode      bool       `json:"is_zen_mode"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Status derives the lifecycle state from the timestamps.
func (s *TimerSession) Status() string {
	switch {
	case s.EndTime != nil:
		return StatusStopped
	case s.PausedAt != nil:
		return StatusPaused
	default:
		return StatusRunning
	}
}

// ElapsedAt returns the whole seconds of active time at now: wall time
// since StartTime minus paused time, frozen at PausedAt or EndTime.
func (s *TimerSession) ElapsedAt(now time.Time) int {
	ref := now
	if s.EndTime != nil {
		ref = *s.EndTime
	} else if s.PausedAt != nil {
		ref = *s.PausedAt
	}

	elapsed := int(ref.Sub(s.StartTime)/time.Second) - s.PausedSeconds
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

type StartTimerRequest struct {
	PlanID    *int64 `json:"plan_id,omitempty"`
	ProjectID *int64  `json:"project_id,omitempty"`
	Title     *string `json:"title,omitempty"`
	IsZenMode bool    `json:"is_zen_mode"`
}

// MaxTitleLength bounds StartTimerRequest.Title, in characters.
const MaxTitleLength = 255

type StopTimerRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type SessionFilter struct {
	PlanID    *int64
	ProjectID *int64
	Date      *time.Time
	Skip      int
	Limit     int
}

type TodayStats struct {
	TotalDuration int      `json:"total_duration"` // seconds
	SessionCount  int      `json:"session_count"`
	FocusScoreAvg *float64 `json:"focus_score_avg"`
}

// Timer event types published on the user's update channel
const (
	EventTimerStarted   = "timer.started"
	EventTimerPaused    = "timer.paused"
	EventTimerResumed   = "timer.resumed"
	EventTimerStopped   = "timer.stopped"
	EventTimerDiscarded = "timer.discarded"
)
