package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg triggers a meter refresh.
type TickMsg time.Time

// StoppedMsg tells the model that audio has stopped, for example because a
// duration limit was reached.
type StoppedMsg struct {
	Err error
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return TickMsg(t) })
}
