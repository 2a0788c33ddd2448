// Package timer holds the client-side session store: the view state of the
// user's timer, kept in step with the backend and advanced once a second
// while a session is running.
package timer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"focus-timer/internal/models"
)

var (
	// ErrNotAllowed is returned when an action is invalid in the current state.
	ErrNotAllowed = errors.New("timer: action not allowed in current state")
	// ErrBusy is returned when an action is issued while another is in flight.
	ErrBusy = errors.New("timer: another action is in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("timer: store closed")

	errEmptyResponse = errors.New("timer: empty response from server")
)

// API is the backend the store talks to.
type API interface {
	Start(ctx context.Context, req models.StartTimerRequest) (*models.TimerSession, error)
	Pause(ctx context.Context, id int64) (*models.TimerSession, error)
	Resume(ctx context.Context, id int64) (*models.TimerSession, error)
	Stop(ctx context.Context, id int64, notes *string) (*models.TimerSession, error)
	Discard(ctx context.Context, id int64) error
	Running(ctx context.Context) (*models.TimerSession, error)
	Sessions(ctx context.Context, filter models.SessionFilter) ([]*models.TimerSession, error)
	Today(ctx context.Context) (*models.TodayStats, error)
}

type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

type StartOptions struct {
	PlanID    *int64
	ProjectID *int64
	Title     string
	ZenMode   bool
}

// Snapshot is a copy of the store's view state at one instant.
type Snapshot struct {
	State          State
	Session        *models.TimerSession
	ElapsedSeconds int
	IsRunning      bool
	IsPaused       bool
	Loading        bool
	Error          string
	History        []models.TimerSession
	Today          models.TodayStats
}

func (s Snapshot) CanStart() bool  { return !s.Loading && s.State == Idle }
func (s Snapshot) CanPause() bool  { return !s.Loading && s.State == Running }
func (s Snapshot) CanResume() bool { return !s.Loading && s.State == Paused }
func (s Snapshot) CanStop() bool {
	return !s.Loading && (s.State == Running || s.State == Paused)
}

func (s Snapshot) FormattedElapsed() string { return FormatElapsed(s.ElapsedSeconds) }

type Option func(*Store)

// WithTickSource replaces the wall-clock tick source.
func WithTickSource(src TickSource) Option {
	return func(s *Store) { s.ticker = NewTicker(time.Second, src) }
}

// WithClock replaces time.Now for elapsed derivation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is safe for concurrent use. Backend calls are made without holding
// the lock; Loading is set for their duration and further actions are
// rejected with ErrBusy until they return.
type Store struct {
	api    API
	ticker *Ticker
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	session *models.TimerSession
	elapsed int
	loading bool
	errMsg  string
	history []models.TimerSession
	today   models.TodayStats
	subs    map[chan Snapshot]struct{}
	closed  bool
}

func New(api API, opts ...Option) *Store {
	s := &Store{
		api:    api,
		now:    time.Now,
		logger: log.Default(),
		subs:   make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ticker == nil {
		s.ticker = NewTicker(time.Second, nil)
	}
	return s
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) CanStart() bool  { return s.Snapshot().CanStart() }
func (s *Store) CanPause() bool  { return s.Snapshot().CanPause() }
func (s *Store) CanResume() bool { return s.Snapshot().CanResume() }
func (s *Store) CanStop() bool   { return s.Snapshot().CanStop() }

// TickerArmed reports whether the one-second ticker is running.
func (s *Store) TickerArmed() bool { return s.ticker.Armed() }

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only see the most recent snapshot. cancel releases
// the subscription.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	ch <- s.snapshotLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// Close disarms the ticker and ends all subscriptions. The backend session,
// if any, keeps running.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ticker.Disarm()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

func (s *Store) Start(ctx context.Context, opts StartOptions) error {
	if _, err := s.begin(Snapshot.CanStart); err != nil {
		return err
	}

	req := models.StartTimerRequest{
		PlanID:    opts.PlanID,
		ProjectID: opts.ProjectID,
		IsZenMode: opts.ZenMode,
	}
	if opts.Title != "" {
		req.Title = &opts.Title
	}
	session, err := s.api.Start(ctx, req)
	if err == nil && session == nil {
		err = errEmptyResponse
	}

	s.mu.Lock()
	defer s.finish()
	if err != nil {
		s.errMsg = describe(err, "Failed to start timer")
		return err
	}
	s.session = session
	s.elapsed = 0
	s.armLocked()
	return nil
}

func (s *Store) Pause(ctx context.Context) error {
	id, err := s.begin(Snapshot.CanPause)
	if err != nil {
		return err
	}

	session, err := s.api.Pause(ctx, id)

	s.mu.Lock()
	defer s.finish()
	if err != nil {
		s.errMsg = describe(err, "Failed to pause timer")
		return err
	}
	s.ticker.Disarm()
	s.session = pausedCopy(session, s.session, s.now())
	return nil
}

func (s *Store) Resume(ctx context.Context) error {
	id, err := s.begin(Snapshot.CanResume)
	if err != nil {
		return err
	}

	session, err := s.api.Resume(ctx, id)
	if err == nil && session == nil {
		err = errEmptyResponse
	}

	s.mu.Lock()
	defer s.finish()
	if err != nil {
		s.errMsg = describe(err, "Failed to resume timer")
		return err
	}
	if session.PausedAt != nil {
		// Backend still reports the session as paused; keep it frozen.
		s.session = session
		return nil
	}
	s.session = session
	if derived := session.ElapsedAt(s.now()); derived > s.elapsed {
		s.elapsed = derived
	}
	s.armLocked()
	return nil
}

// Stop finalizes the session, records it at the head of History and
// refreshes today's totals. A failed refresh is only logged.
func (s *Store) Stop(ctx context.Context, notes string) error {
	id, err := s.begin(Snapshot.CanStop)
	if err != nil {
		return err
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	stopped, err := s.api.Stop(ctx, id, notesPtr)
	if err == nil && stopped == nil {
		err = errEmptyResponse
	}

	s.mu.Lock()
	if err != nil {
		s.errMsg = describe(err, "Failed to stop timer")
		s.finish()
		return err
	}
	s.history = append([]models.TimerSession{*stopped}, s.history...)
	s.resetLocked()
	s.finish()

	s.FetchTodayStats(ctx)
	return nil
}

// Discard deletes the active session on the backend without recording it.
func (s *Store) Discard(ctx context.Context) error {
	id, err := s.begin(Snapshot.CanStop)
	if err != nil {
		return err
	}

	err = s.api.Discard(ctx, id)

	s.mu.Lock()
	defer s.finish()
	if err != nil {
		s.errMsg = describe(err, "Failed to discard timer")
		return err
	}
	s.resetLocked()
	return nil
}

// Reconcile adopts whatever session the backend reports as active. It
// never mutates the backend. Re-adopting the session already held keeps
// elapsed monotonic. A failed query leaves the state as it was
// and is logged, not recorded in Error; the error is still returned.
func (s *Store) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.loading = true
	s.notifyLocked()
	s.mu.Unlock()

	session, err := s.api.Running(ctx)

	s.mu.Lock()
	defer s.finish()
	if err != nil {
		s.logger.Printf("timer: failed to check running session: %v", err)
		return err
	}

	if session == nil || session.EndTime != nil {
		s.resetLocked()
		return nil
	}

	derived := session.ElapsedAt(s.now())
	if s.session != nil && s.session.ID == session.ID && s.elapsed > derived {
		// Same session: a lagging server clock must not step the display back.
		derived = s.elapsed
	}
	s.session = session
	s.elapsed = derived
	if session.PausedAt != nil {
		s.ticker.Disarm()
	} else {
		s.armLocked()
	}
	return nil
}

// FetchSessions loads finished sessions into History.
func (s *Store) FetchSessions(ctx context.Context, filter models.SessionFilter) ([]models.TimerSession, error) {
	sessions, err := s.api.Sessions(ctx, filter)

	s.mu.Lock()
	defer s.unlockNotify()
	if err != nil {
		s.errMsg = describe(err, "Failed to fetch sessions")
		return nil, err
	}
	history := make([]models.TimerSession, 0, len(sessions))
	for _, session := range sessions {
		if session != nil {
			history = append(history, *session)
		}
	}
	s.history = history
	return append([]models.TimerSession(nil), history...), nil
}

// FetchTodayStats loads today's totals. Failures are logged and the
// previous totals kept.
func (s *Store) FetchTodayStats(ctx context.Context) (models.TodayStats, error) {
	stats, err := s.api.Today(ctx)
	if err != nil {
		s.logger.Printf("timer: failed to fetch today stats: %v", err)
		return s.Snapshot().Today, err
	}

	s.mu.Lock()
	defer s.unlockNotify()
	if stats != nil {
		s.today = *stats
	}
	return s.today, nil
}

// begin checks the guard and marks the store loading. It returns the id
// of the current session, if any.
func (s *Store) begin(guard func(Snapshot) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.loading {
		return 0, ErrBusy
	}
	if !guard(s.snapshotLocked()) {
		return 0, ErrNotAllowed
	}

	s.loading = true
	s.errMsg = ""
	s.notifyLocked()

	if s.session == nil {
		return 0, nil
	}
	return s.session.ID, nil
}

// finish clears Loading, notifies subscribers and releases the lock.
func (s *Store) finish() {
	s.loading = false
	s.unlockNotify()
}

func (s *Store) unlockNotify() {
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Store) armLocked() {
	if s.closed {
		return
	}
	s.ticker.Arm(s.onTick)
}

func (s *Store) onTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ticker.Live(gen) || s.stateLocked() != Running {
		return
	}
	s.elapsed++
	s.notifyLocked()
}

func (s *Store) resetLocked() {
	s.ticker.Disarm()
	s.session = nil
	s.elapsed = 0
}

func (s *Store) stateLocked() State {
	switch {
	case s.session == nil:
		return Idle
	case s.session.PausedAt != nil:
		return Paused
	default:
		return Running
	}
}

func (s *Store) snapshotLocked() Snapshot {
	state := s.stateLocked()
	snap := Snapshot{
		State:          state,
		ElapsedSeconds: s.elapsed,
		IsRunning:      state == Running,
		IsPaused:       state == Paused,
		Loading:        s.loading,
		Error:          s.errMsg,
		History:        append([]models.TimerSession(nil), s.history...),
		Today:          s.today,
	}
	if s.session != nil {
		session := *s.session
		snap.Session = &session
	}
	return snap
}

func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// pausedCopy makes sure the adopted record reads as paused even if the
// backend response omitted paused_at.
func pausedCopy(session, previous *models.TimerSession, now time.Time) *models.TimerSession {
	if session == nil {
		session = previous
	}
	out := *session
	if out.PausedAt == nil {
		at := now
		out.PausedAt = &at
	}
	return &out
}

func describe(err error, fallback string) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
