// Package tui implements the interactive scan monitor.
package tui

import (
	"github.com/Veraticus/shotscan/internal/engine"
	"github.com/Veraticus/shotscan/internal/tui/themes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	maxBarWidth     = 60
	defaultBarWidth = 40
)

// Controller is the part of the processor the monitor drives.
type Controller interface {
	TogglePause()
	Cancel()
}

// Model is the bubbletea model of the scan monitor.
type Model struct {
	controller Controller
	summary    *engine.Summary
	title      string
	keys       KeyMap
	theme      themes.Theme
	status     engine.Status
	help       help.Model
	spinner    spinner.Model
	progress   progress.Model
	width      int
	cancelling bool
	quitting   bool
}

// NewModel creates a monitor model driving ctrl.
func NewModel(ctrl Controller, title string, theme themes.Theme) Model {
	bar := progress.New(
		progress.WithGradient(string(theme.Primary), string(theme.Secondary)),
		progress.WithWidth(defaultBarWidth),
	)
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = spin.Style.Foreground(theme.Primary)

	return Model{
		controller: ctrl,
		title:      title,
		keys:       DefaultKeyMap(),
		theme:      theme,
		help:       help.New(),
		spinner:    spin,
		progress:   bar,
		status:     engine.Status{State: engine.StateProcessing},
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.progress.Width = min(max(msg.Width-20, 10), maxBarWidth)
		return m, nil

	case statusMsg:
		m.status = msg.status
		return m, nil

	case doneMsg:
		m.summary = msg.summary
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Pause):
		if !m.cancelling {
			m.controller.TogglePause()
		}
	case key.Matches(msg, m.keys.Cancel):
		if !m.cancelling {
			m.cancelling = true
			m.controller.Cancel()
		}
	}
	return m, nil
}

// Summary returns the run summary once the run has finished.
func (m Model) Summary() *engine.Summary {
	return m.summary
}

// Quitting reports whether the user left the monitor before the run ended.
func (m Model) Quitting() bool {
	return m.quitting && m.summary == nil
}
