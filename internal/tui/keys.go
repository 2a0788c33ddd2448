package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"focus-timer/internal/timer"
)

type keyMap struct {
	Start   key.Binding
	Pause   key.Binding
	Resume  key.Binding
	Stop    key.Binding
	Discard key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Pause:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Resume:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Discard: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discard")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap; disabled bindings are hidden.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Resume, k.Stop, k.Discard, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// sync enables only the actions the snapshot allows.
func (k *keyMap) sync(snap timer.Snapshot) {
	k.Start.SetEnabled(snap.CanStart())
	k.Pause.SetEnabled(snap.CanPause())
	k.Resume.SetEnabled(snap.CanResume())
	k.Stop.SetEnabled(snap.CanStop())
	k.Discard.SetEnabled(snap.CanStop())
}
