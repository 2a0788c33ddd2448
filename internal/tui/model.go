package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"focus-timer/internal/models"
	"focus-timer/internal/timer"
)

const actionTimeout = 15 * time.Second

type timerStore interface {
	Snapshot() timer.Snapshot
	Subscribe() (<-chan timer.Snapshot, func())
	Start(ctx context.Context, opts timer.StartOptions) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context, notes string) error
	Discard(ctx context.Context) error
	Reconcile(ctx context.Context) error
	FetchSessions(ctx context.Context, filter models.SessionFilter) ([]models.TimerSession, error)
	FetchTodayStats(ctx context.Context) (models.TodayStats, error)
}

// Options configures the model
type Options struct {
	// HistoryLimit is how many finished sessions are listed
	HistoryLimit int
	// StartOptions are used for sessions started with the start key
	StartOptions timer.StartOptions
}

// Model renders the store and forwards key presses to it
type Model struct {
	store   timerStore
	updates <-chan timer.Snapshot
	cancel  func()
	events  <-chan models.WSMessage
	opts    Options

	snap timer.Snapshot
	keys keyMap
	help help.Model

	width  int
	height int

	// pendingReconcile is set when a reconcile found the store busy; it is
	// retried once the in-flight action reports back.
	pendingReconcile bool
}

// NewModel subscribes to store. events may be nil when no live stream is
// available.
func NewModel(store timerStore, events <-chan models.WSMessage, opts Options) Model {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5
	}

	updates, cancel := store.Subscribe()
	m := Model{
		store:   store,
		updates: updates,
		cancel:  cancel,
		events:  events,
		opts:    opts,
		snap:    store.Snapshot(),
		keys:    newKeyMap(),
		help:    help.New(),
	}
	m.keys.sync(m.snap)
	return m
}

// Message types
type (
	snapshotMsg      timer.Snapshot
	remoteEventMsg   models.WSMessage
	actionDoneMsg    struct{ err error }
	reconcileDoneMsg struct{ err error }
	streamClosed     struct{}
)

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.reconcileCmd(),
		m.refreshCmd(),
		waitForSnapshot(m.updates),
		waitForEvent(m.events),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = timer.Snapshot(msg)
		m.keys.sync(m.snap)
		return m, waitForSnapshot(m.updates)

	case remoteEventMsg:
		// Another device changed the session; the backend record wins.
		cmds := []tea.Cmd{m.reconcileCmd(), waitForEvent(m.events)}
		if msg.Type == models.EventTimerStopped {
			cmds = append(cmds, m.refreshCmd())
		}
		return m, tea.Batch(cmds...)

	case reconcileDoneMsg:
		if errors.Is(msg.err, timer.ErrBusy) {
			if m.store.Snapshot().Loading {
				m.pendingReconcile = true
				return m, nil
			}
			// The action finished before this result was delivered.
			return m, m.reconcileCmd()
		}
		return m.retryReconcile()

	case actionDoneMsg:
		return m.retryReconcile()

	case streamClosed:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Start):
		start := m.opts.StartOptions
		return m, m.run(func(ctx context.Context) error { return m.store.Start(ctx, start) })
	case key.Matches(msg, m.keys.Pause):
		return m, m.run(m.store.Pause)
	case key.Matches(msg, m.keys.Resume):
		return m, m.run(m.store.Resume)
	case key.Matches(msg, m.keys.Stop):
		return m, m.run(func(ctx context.Context) error { return m.store.Stop(ctx, "") })
	case key.Matches(msg, m.keys.Discard):
		return m, m.run(m.store.Discard)
	}
	return m, nil
}

// run executes a store action off the UI goroutine. Its outcome reaches the
// view through the subscription, so the result message carries nothing the
// model needs.
func (m Model) run(action func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{err: action(ctx)}
	}
}

func (m Model) reconcileCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return reconcileDoneMsg{err: m.store.Reconcile(ctx)}
	}
}

func (m Model) retryReconcile() (tea.Model, tea.Cmd) {
	if !m.pendingReconcile {
		return m, nil
	}
	m.pendingReconcile = false
	return m, m.reconcileCmd()
}

func (m Model) refreshCmd() tea.Cmd {
	limit := m.opts.HistoryLimit
	return m.run(func(ctx context.Context) error {
		if _, err := m.store.FetchSessions(ctx, models.SessionFilter{Limit: limit}); err != nil {
			return err
		}
		_, err := m.store.FetchTodayStats(ctx)
		return err
	})
}

func waitForSnapshot(updates <-chan timer.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return streamClosed{}
		}
		return snapshotMsg(snap)
	}
}

func waitForEvent(events <-chan models.WSMessage) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return streamClosed{}
		}
		return remoteEventMsg(msg)
	}
}
