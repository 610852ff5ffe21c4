package tui

import "github.com/Veraticus/shotscan/internal/engine"

// statusMsg carries a processor snapshot into the update loop.
type statusMsg struct {
	status engine.Status
}

// doneMsg is sent once the run has finished, however it ended.
type doneMsg struct {
	summary *engine.Summary
}
