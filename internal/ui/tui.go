// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the recorder dashboard
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Action is a user request from the dashboard
type Action int

const (
	ActionStart Action = iota
	ActionPause
	ActionResume
	ActionStop
	ActionPlay
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionStop:
		return "stop"
	case ActionPlay:
		return "play"
	case ActionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Controls carries actions from the dashboard to the app
type Controls struct {
	Actions chan Action
}

// NewControls creates a control handler
func NewControls() *Controls {
	return &Controls{
		Actions: make(chan Action, 10),
	}
}

// send never blocks the UI loop
func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

// NewModel creates a dashboard model
func NewModel(ctrl *Controls, info SessionInfo) Model {
	return Model{
		state:    "inactive",
		info:     info,
		controls: ctrl,
	}
}

// Run creates the TUI program. The caller starts it with p.Run.
func Run(ctrl *Controls, info SessionInfo) *tea.Program {
	return tea.NewProgram(NewModel(ctrl, info), tea.WithAltScreen())
}
