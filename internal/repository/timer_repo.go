package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"focus-timer/internal/models"
)

var (
	// ErrNoTransition means the conditional update matched no row: the
	// session does not exist for the user or is not in the expected state.
	ErrNoTransition = errors.New("session not in expected state")

	// ErrActiveSessionExists is returned by Create when the user already
	// has a running or paused session.
	ErrActiveSessionExists = errors.New("an active session already exists")
)

const uniqueViolation = "23505"

const sessionColumns = `id, user_id, plan_id, project_id, title, start_time, end_time, paused_at,
	paused_seconds, duration, interrupt_count, focus_score::float8, notes, is_zen_mode, created_at`

type TimerRepo struct {
	pool *pgxpool.Pool
}

func NewTimerRepo(pool *pgxpool.Pool) *TimerRepo {
	return &TimerRepo{pool: pool}
}

func scanSession(row pgx.Row) (*models.TimerSession, error) {
	s := &models.TimerSession{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.ProjectID, &s.Title, &s.StartTime, &s.EndTime, &s.PausedAt,
		&s.PausedSeconds, &s.Duration, &s.InterruptCount, &s.FocusScore, &s.Notes, &s.IsZenMode, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a running session starting at s.StartTime.
func (r *TimerRepo) Create(ctx context.Context, s *models.TimerSession) error {
	query := `
		INSERT INTO timer_sessions (user_id, plan_id, project_id, title, start_time, is_zen_mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, s.UserID, s.PlanID, s.ProjectID, s.Title, s.StartTime, s.IsZenMode).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// GetActive returns the user's running or paused session, or nil.
func (r *TimerRepo) GetActive(ctx context.Context, userID uuid.UUID) (*models.TimerSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM timer_sessions WHERE user_id = $1 AND end_time IS NULL`, userID)

	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *TimerRepo) GetByID(ctx context.Context, id int64, userID uuid.UUID) (*models.TimerSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM timer_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	return scanSession(row)
}

func (r *TimerRepo) Pause(ctx context.Context, id int64, userID uuid.UUID, at time.Time) (*models.TimerSession, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE timer_sessions
		SET paused_at = $3,
			interrupt_count = interrupt_count + 1
		WHERE id = $1
		  AND user_id = $2
		  AND end_time IS NULL
		  AND paused_at IS NULL
		RETURNING `+sessionColumns, id, userID, at)
	return transitioned(scanSession(row))
}

func (r *TimerRepo) Resume(ctx context.Context, id int64, userID uuid.UUID, at time.Time) (*models.TimerSession, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE timer_sessions
		SET paused_seconds = paused_seconds + GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($3::timestamptz - paused_at)))::INT),
			paused_at = NULL
		WHERE id = $1
		  AND user_id = $2
		  AND end_time IS NULL
		  AND paused_at IS NOT NULL
		RETURNING `+sessionColumns, id, userID, at)
	return transitioned(scanSession(row))
}

// Finalize writes the stop bookkeeping computed by the caller. It only
// matches an active session, so concurrent stops finalize exactly once.
func (r *TimerRepo) Finalize(ctx context.Context, s *models.TimerSession) (*models.TimerSession, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE timer_sessions
		SET end_time = $3,
			paused_at = NULL,
			paused_seconds = $4,
			duration = $5,
			focus_score = $6,
			notes = $7
		WHERE id = $1
		  AND user_id = $2
		  AND end_time IS NULL
		RETURNING `+sessionColumns,
		s.ID, s.UserID, s.EndTime, s.PausedSeconds, s.Duration, s.FocusScore, s.Notes)
	return transitioned(scanSession(row))
}

// Delete discards an active session without keeping a history record.
func (r *TimerRepo) Delete(ctx context.Context, id int64, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM timer_sessions
		WHERE id = $1 AND user_id = $2 AND end_time IS NULL`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoTransition
	}
	return nil
}

// List returns finished sessions, newest first.
func (r *TimerRepo) List(ctx context.Context, userID uuid.UUID, f models.SessionFilter) ([]*models.TimerSession, error) {
	where := []string{"user_id = $1", "end_time IS NOT NULL"}
	args := []interface{}{userID}

	if f.PlanID != nil {
		args = append(args, *f.PlanID)
		where = append(where, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if f.ProjectID != nil {
		args = append(args, *f.ProjectID)
		where = append(where, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, f.Date.Format("2006-01-02"))
		where = append(where, fmt.Sprintf("DATE(start_time) = $%d::date", len(args)))
	}

	args = append(args, f.Limit, f.Skip)
	query := `SELECT ` + sessionColumns + ` FROM timer_sessions WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.TimerSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// TodayStats aggregates the finished sessions that started on day.
func (r *TimerRepo) TodayStats(ctx context.Context, userID uuid.UUID, day time.Time) (*models.TodayStats, error) {
	stats := &models.TodayStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(duration), 0)::INT,
			COUNT(*)::INT,
			AVG(focus_score)::float8
		FROM timer_sessions
		WHERE user_id = $1
		  AND end_time IS NOT NULL
		  AND DATE(start_time) = $2::date
	`, userID, day.Format("2006-01-02")).Scan(&stats.TotalDuration, &stats.SessionCount, &stats.FocusScoreAvg)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListStale returns active sessions that started before cutoff.
func (r *TimerRepo) ListStale(ctx context.Context, cutoff time.Time) ([]*models.TimerSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+`
		FROM timer_sessions
		WHERE end_time IS NULL AND start_time < $1
		ORDER BY start_time`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.TimerSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func transitioned(s *models.TimerSession, err error) (*models.TimerSession, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTransition
	}
	return s, err
}
