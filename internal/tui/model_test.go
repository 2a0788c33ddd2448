package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"focus-timer/internal/models"
	"focus-timer/internal/timer"
)

type stubStore struct {
	mu           sync.Mutex
	snap         timer.Snapshot
	calls        []string
	start        timer.StartOptions
	reconcileErr error
}

func (s *stubStore) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *stubStore) called(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (s *stubStore) Snapshot() timer.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}
func (s *stubStore) Subscribe() (<-chan timer.Snapshot, func()) {
	return make(chan timer.Snapshot), func() {}
}
func (s *stubStore) Start(ctx context.Context, opts timer.StartOptions) error {
	s.record("start")
	s.start = opts
	return nil
}
func (s *stubStore) Pause(ctx context.Context) error     { s.record("pause"); return nil }
func (s *stubStore) Resume(ctx context.Context) error    { s.record("resume"); return nil }
func (s *stubStore) Stop(ctx context.Context, _ string) error {
	s.record("stop")
	return nil
}
func (s *stubStore) Discard(ctx context.Context) error   { s.record("discard"); return nil }
func (s *stubStore) Reconcile(ctx context.Context) error {
	s.record("reconcile")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileErr
}
func (s *stubStore) FetchSessions(ctx context.Context, f models.SessionFilter) ([]models.TimerSession, error) {
	s.record("sessions")
	return nil, nil
}
func (s *stubStore) FetchTodayStats(ctx context.Context) (models.TodayStats, error) {
	s.record("today")
	return models.TodayStats{}, nil
}

func press(m Model, r rune) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return updated.(Model), cmd
}

func TestModel_KeysFollowGuards(t *testing.T) {
	plan := int64(5)
	store := &stubStore{}
	m := NewModel(store, nil, Options{StartOptions: timer.StartOptions{PlanID: &plan}})

	// Idle: pause is disabled, start is enabled.
	m, cmd := press(m, 'p')
	if cmd != nil {
		t.Fatalf("pause must be ignored while idle")
	}

	m, cmd = press(m, 's')
	if cmd == nil {
		t.Fatalf("start should produce a command while idle")
	}
	cmd()
	if !store.called("start") || store.start.PlanID == nil || *store.start.PlanID != 5 {
		t.Fatalf("start not forwarded with options: %+v", store.calls)
	}

	// Running: start disabled, pause and stop enabled.
	updated, _ := m.Update(snapshotMsg(timer.Snapshot{State: timer.Running, IsRunning: true, Session: &models.TimerSession{ID: 42}}))
	m = updated.(Model)

	if _, cmd = press(m, 's'); cmd != nil {
		t.Fatalf("start must be ignored while running")
	}
	if _, cmd = press(m, 'r'); cmd != nil {
		t.Fatalf("resume must be ignored while running")
	}
	if _, cmd = press(m, 'p'); cmd == nil {
		t.Fatalf("pause should be enabled while running")
	}
	cmd()
	if !store.called("pause") {
		t.Fatalf("pause not forwarded")
	}

	// Loading disables everything.
	updated, _ = m.Update(snapshotMsg(timer.Snapshot{State: timer.Running, IsRunning: true, Loading: true, Session: &models.TimerSession{ID: 42}}))
	m = updated.(Model)
	for _, r := range []rune{'s', 'p', 'r', 'x', 'd'} {
		if _, cmd := press(m, r); cmd != nil {
			t.Fatalf("key %q must be ignored while loading", r)
		}
	}
}

func TestModel_RemoteEventReconciles(t *testing.T) {
	store := &stubStore{}
	events := make(chan models.WSMessage)
	m := NewModel(store, events, Options{})

	_, cmd := m.Update(remoteEventMsg(models.WSMessage{Type: models.EventTimerStopped}))
	if cmd == nil {
		t.Fatalf("remote event should schedule commands")
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected batch, got %T", msg)
	}
	close(events)
	for _, c := range batch {
		if c != nil {
			c()
		}
	}
	if !store.called("reconcile") || !store.called("sessions") || !store.called("today") {
		t.Fatalf("expected reconcile and refresh, got %v", store.calls)
	}
}

func TestModel_View(t *testing.T) {
	avg := 88.0
	title := "Chapter 3"
	store := &stubStore{snap: timer.Snapshot{
		State:          timer.Paused,
		IsPaused:       true,
		ElapsedSeconds: 3725,
		Session:        &models.TimerSession{ID: 42, Title: &title, IsZenMode: true},
		Error:          "Session is not running",
		Today:          models.TodayStats{TotalDuration: 5400, SessionCount: 3, FocusScoreAvg: &avg},
		History:        []models.TimerSession{{ID: 41, Duration: 1500}},
	}}
	m := NewModel(store, nil, Options{})

	view := m.View()
	for _, want := range []string{"01:02:05", "PAUSED", "session #42", "Chapter 3", "zen", "01:30:00", "3 session(s)", "#41", "Session is not running"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_BusyReconcileRetriedAfterAction(t *testing.T) {
	store := &stubStore{
		snap:         timer.Snapshot{State: timer.Running, IsRunning: true, Loading: true, Session: &models.TimerSession{ID: 42}},
		reconcileErr: timer.ErrBusy,
	}
	m := NewModel(store, nil, Options{})

	updated, _ := m.Update(remoteEventMsg(models.WSMessage{Type: models.EventTimerStopped}))
	m = updated.(Model)
	msg := m.reconcileCmd()()
	updated, cmd := m.Update(msg)
	m = updated.(Model)
	if cmd != nil {
		t.Fatalf("busy reconcile must wait for the in-flight action")
	}

	// The local action completes; the remote change must still be picked up.
	store.mu.Lock()
	store.snap.Loading = false
	store.reconcileErr = nil
	store.mu.Unlock()

	updated, cmd = m.Update(actionDoneMsg{})
	m = updated.(Model)
	if cmd == nil {
		t.Fatalf("expected reconcile retry after action completed")
	}
	if _, ok := cmd().(reconcileDoneMsg); !ok {
		t.Fatalf("retry should reconcile")
	}
	if n := store.count("reconcile"); n != 2 {
		t.Fatalf("expected 2 reconcile calls, got %d", n)
	}

	// Retried once only.
	if _, cmd = m.Update(actionDoneMsg{}); cmd != nil {
		t.Fatalf("no reconcile should be pending after the retry")
	}
}

func TestModel_BusyReconcileRetriedWhenActionAlreadyDone(t *testing.T) {
	store := &stubStore{reconcileErr: timer.ErrBusy}
	m := NewModel(store, nil, Options{})

	_, cmd := m.Update(reconcileDoneMsg{err: timer.ErrBusy})
	if cmd == nil {
		t.Fatalf("expected immediate retry when the store is no longer loading")
	}
	cmd()
	if n := store.count("reconcile"); n != 1 {
		t.Fatalf("expected one reconcile call, got %d", n)
	}
}
