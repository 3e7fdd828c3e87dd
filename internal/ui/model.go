// ABOUTME: Bubbletea model for the recorder dashboard
// ABOUTME: Defines dashboard state, rendering and key handling
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sendspin/mp3rec/internal/version"
)

// SessionInfo is fixed for the life of the dashboard
type SessionInfo struct {
	Source     string
	SampleRate int
	Channels   int
	Worker     string
	Output     string
}

// Model represents the TUI state
type Model struct {
	info SessionInfo

	// Recorder
	state   string
	elapsed time.Duration
	frames  int64
	peak    float32

	// Results
	recordings int
	lastBytes  int
	lastFile   string
	lastError  string

	showDebug bool
	controls  *Controls

	width  int
	height int
}

// StatusMsg updates TUI state. Zero fields are left unchanged.
type StatusMsg struct {
	State     string
	Elapsed   time.Duration
	Frames    int64
	Peak      float32
	BlobBytes int
	File      string
	Err       string
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderSession())
	b.WriteString(m.renderResults())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	title := fmt.Sprintf("─ %s ", version.String())
	return fmt.Sprintf(`┌%s%s┐
│ Source: %-44s │
│ Worker: %-44s │
├──────────────────────────────────────────────────────┤
`, title, strings.Repeat("─", 54-len([]rune(title))),
		truncate(fmt.Sprintf("%s %dHz %s", m.info.Source, m.info.SampleRate, channelName(m.info.Channels)), 44),
		truncate(m.info.Worker, 44))
}

func (m Model) renderSession() string {
	icon := "■"
	switch m.state {
	case "recording":
		icon = "●"
	case "paused":
		icon = "❚❚"
	}

	return fmt.Sprintf("│ State:  %-2s %-41s │\n"+
		"│ Time:   %-44s │\n"+
		"│ Level:  [%s]%-32s │\n",
		icon, m.state,
		formatElapsed(m.elapsed),
		renderBar(m.peak, 10), "")
}

func (m Model) renderResults() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if m.recordings == 0 {
		s += "│ No recordings yet                                    │\n"
	} else {
		s += fmt.Sprintf("│ Saved:  %-44s │\n", truncate(fmt.Sprintf("%s (%d bytes)", m.lastFile, m.lastBytes), 44))
	}
	if m.lastError != "" {
		s += fmt.Sprintf("│ Error:  %-44s │\n", truncate(m.lastError, 44))
	}
	return s
}

func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG:  frames=%-8d recordings=%-17d │\n", m.frames, m.recordings)
}

func (m Model) renderHelp() string {
	return `│ r:Record/Stop  space:Pause  p:Play  d:Debug  q:Quit  │
└──────────────────────────────────────────────────────┘
`
}

// handleKey maps keys to recorder actions for the current state
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.send(ActionQuit)
		return m, tea.Quit
	case "r":
		if m.state == "inactive" {
			m.controls.send(ActionStart)
		} else {
			m.controls.send(ActionStop)
		}
	case " ":
		switch m.state {
		case "recording":
			m.controls.send(ActionPause)
		case "paused":
			m.controls.send(ActionResume)
		}
	case "p":
		if m.state == "inactive" && m.recordings > 0 {
			m.controls.send(ActionPlay)
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
		if msg.State == "recording" {
			m.lastError = ""
		}
	}
	if msg.Elapsed != 0 {
		m.elapsed = msg.Elapsed
	}
	if msg.Frames != 0 {
		m.frames = msg.Frames
		m.peak = msg.Peak
	}
	if msg.BlobBytes != 0 {
		m.recordings++
		m.lastBytes = msg.BlobBytes
		m.lastFile = msg.File
	}
	if msg.Err != "" {
		m.lastError = msg.Err
	}
}

func renderBar(level float32, width int) string {
	if level < 0 {
		level = -level
	}
	if level > 1 {
		level = 1
	}
	filled := int(level * float32(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatElapsed(d time.Duration) string {
	d = d.Truncate(100 * time.Millisecond)
	minutes := int(d / time.Minute)
	seconds := (d % time.Minute).Seconds()
	return fmt.Sprintf("%02d:%04.1f", minutes, seconds)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
