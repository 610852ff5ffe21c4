package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Veraticus/shotscan/internal/engine"
	"github.com/Veraticus/shotscan/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
)

// Runner is a processor with a run in flight.
type Runner interface {
	Controller
	Done() <-chan struct{}
	Wait() *engine.Summary
}

// Monitor forwards processor status into a running bubbletea program. Its
// Observe method is meant to be passed as the processor's observer before the
// run starts.
type Monitor struct {
	latest *engine.Status
	signal chan struct{}
	theme  themes.Theme
	mu     sync.Mutex
}

// NewMonitor creates a monitor using theme.
func NewMonitor(theme themes.Theme) *Monitor {
	return &Monitor{
		theme:  theme,
		signal: make(chan struct{}, 1),
	}
}

// Observe records status for the monitor. It never blocks; when updates arrive
// faster than the screen redraws, only the newest is shown.
func (m *Monitor) Observe(status engine.Status) {
	m.mu.Lock()
	m.latest = &status
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Run shows the monitor until the run behind r ends or the user quits. Quitting
// early cancels the run. The summary of the run is returned in both cases.
func (m *Monitor) Run(ctx context.Context, r Runner, title string, opts ...tea.ProgramOption) (*engine.Summary, error) {
	model := NewModel(r, title, m.theme)
	programOpts := append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(model, programOpts...)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.forward(program, stop)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-r.Done():
			program.Send(doneMsg{summary: r.Wait()})
		case <-stop:
		}
	}()

	final, err := program.Run()
	close(stop)
	wg.Wait()

	if fm, ok := final.(Model); !ok || fm.Summary() == nil {
		r.Cancel()
	}
	summary := r.Wait()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return summary, fmt.Errorf("scan monitor failed: %w", err)
	}
	return summary, nil
}

func (m *Monitor) forward(program *tea.Program, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-m.signal:
			m.mu.Lock()
			status := m.latest
			m.mu.Unlock()
			if status != nil {
				program.Send(statusMsg{status: *status})
			}
		}
	}
}
