package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Veraticus/shotscan/internal/engine"
	"github.com/schollz/progressbar/v3"
)

// ProgressReporter draws a terminal progress bar from engine status updates.
// Observe can be passed directly as an engine.Observer.
type ProgressReporter struct {
	writer      io.Writer
	bar         *progressbar.ProgressBar
	description string
	total       int
	mu          sync.Mutex
}

// NewProgressReporter creates a reporter writing to writer (stderr when nil).
func NewProgressReporter(writer io.Writer, description string) *ProgressReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &ProgressReporter{writer: writer, description: description}
}

// Observe updates the bar. A bar is created when a run starts.
func (r *ProgressReporter) Observe(status engine.Status) {
	if status.State != engine.StateProcessing {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil || r.total != status.Total {
		r.total = status.Total
		r.bar = r.newBar(status.Total)
	}

	desc := r.description
	if status.Paused {
		desc += " (paused)"
	}
	r.bar.Describe(fmt.Sprintf("[cyan][bold]%s[reset]", desc))

	if err := r.bar.Set(status.Counts.Done()); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes the bar, if one was drawn.
func (r *ProgressReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	if err := r.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	r.bar = nil
}

func (r *ProgressReporter) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetDescription("[cyan][bold]"+r.description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(r.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// FormatSummary renders the outcome of a run as a boxed report.
func FormatSummary(title string, s *engine.Summary) string {
	body := fmt.Sprintf("  • Items: %d\n", s.Total) +
		fmt.Sprintf("  • Processed: %d\n", s.Processed) +
		fmt.Sprintf("  • Already done: %d\n", s.Skipped) +
		fmt.Sprintf("  • Failed: %d\n", s.Failed)
	if s.PersistenceFailures > 0 {
		body += WarningStyle.Render(fmt.Sprintf("  • Not saved: %d", s.PersistenceFailures)) + "\n"
	}
	body += fmt.Sprintf("  • Time taken: %s", s.Duration.Round(time.Millisecond))
	if s.Cancelled {
		body += "\n" + WarningStyle.Render("  • Stopped early")
	}
	return RenderBox(ChartIcon+" "+title, body)
}
