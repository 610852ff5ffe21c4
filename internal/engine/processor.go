// Package engine runs OCR and identifier detection over batches of images.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/normalize"
	"github.com/Veraticus/shotscan/internal/service"
)

// ErrMissingDependency is returned when an operation needs a collaborator the
// Processor was built without.
var ErrMissingDependency = errors.New("missing dependency")

// Dependencies are the collaborators of a Processor. Source and Recognizer
// are only needed to load and process images; redetection works without them.
type Dependencies struct {
	Source     service.ImageSource
	Recognizer service.TextRecognizer
	Store      service.RecordStore
	Patterns   service.PatternSource
	Detector   service.IdentifierDetector
}

// Options configures a Processor.
type Options struct {
	Clock           func() time.Time
	Observer        Observer
	Logger          *slog.Logger
	DefaultCategory string
}

// Processor drives batch OCR and detection with pause, resume and cancel.
// At most one batch runs at a time. Cancellation is cooperative: an item
// already being recognized finishes and is persisted before the run stops.
type Processor struct {
	deps     Dependencies
	clock    func() time.Time
	observer Observer
	logger   *slog.Logger
	category string

	current  *run
	last     *run
	message  string
	items    []model.ImageItem
	counts   Counts
	progress float64
	total    int
	state    State
	degraded bool
	mu       sync.Mutex
	notifyMu sync.Mutex
}

// run is one batch execution.
type run struct {
	gate    *gate
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
}

// outcome is what happened to one item.
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomePersistFailed
)

// New creates a Processor.
func New(deps Dependencies, opts Options) (*Processor, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: record store", ErrMissingDependency)
	case deps.Patterns == nil:
		return nil, fmt.Errorf("%w: pattern source", ErrMissingDependency)
	case deps.Detector == nil:
		return nil, fmt.Errorf("%w: detector", ErrMissingDependency)
	}

	p := &Processor{
		deps:     deps,
		clock:    opts.Clock,
		observer: opts.Observer,
		logger:   opts.Logger,
		category: opts.DefaultCategory,
		state:    StateIdle,
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.category == "" {
		p.category = model.DefaultCategory
	}
	return p, nil
}

// Status returns a snapshot of the processor.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Processor) statusLocked() Status {
	return Status{
		State:    p.state,
		Message:  p.message,
		Progress: p.progress,
		Total:    p.total,
		Counts:   p.counts,
		Paused:   p.current != nil && p.current.gate.isPaused(),
		Degraded: p.degraded,
	}
}

// notify hands the current status to the observer outside the state lock.
// Snapshot and delivery happen under notifyMu, so the observer is never called
// concurrently and sees snapshots in the order they were taken.
func (p *Processor) notify() {
	if p.observer == nil {
		return
	}
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.observer(p.Status())
}

// Items returns the items found by the last successful Load.
func (p *Processor) Items() []model.ImageItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}

// Load asks the source for access and lists the items of group (all items
// when empty). Failures move the processor to StateError.
func (p *Processor) Load(ctx context.Context, group string) error {
	if p.deps.Source == nil {
		return fmt.Errorf("%w: image source", ErrMissingDependency)
	}

	p.mu.Lock()
	if p.current != nil {
		p.mu.Unlock()
		return common.ErrBatchActive
	}
	p.state = StateLoading
	p.message = ""
	p.mu.Unlock()
	p.notify()

	if err := p.deps.Source.RequestAccess(ctx); err != nil {
		p.fail(err)
		return fmt.Errorf("failed to access images: %w", err)
	}

	items, err := p.deps.Source.ListItems(ctx, group)
	if err != nil {
		p.fail(err)
		return fmt.Errorf("failed to list images: %w", err)
	}

	p.mu.Lock()
	p.items = items
	p.state = StateLoaded
	p.mu.Unlock()
	p.notify()

	p.logger.Info("Loaded images", "group", group, "count", len(items))
	return nil
}

func (p *Processor) fail(err error) {
	p.mu.Lock()
	p.state = StateError
	p.message = err.Error()
	p.mu.Unlock()
	p.notify()
	p.logger.Error("Failed to load images", "error", err)
}

// ProcessAll runs OCR and detection over items and blocks until the run ends.
// Items already in the store are skipped, so an interrupted batch can simply
// be run again.
func (p *Processor) ProcessAll(ctx context.Context, items []model.ImageItem) (*Summary, error) {
	r, err := p.startProcessing(ctx, items)
	if err != nil {
		return nil, err
	}
	<-r.done
	summary := r.summary
	return &summary, nil
}

// Start runs ProcessAll in the background. Use Wait or Done to observe the end.
func (p *Processor) Start(ctx context.Context, items []model.ImageItem) error {
	_, err := p.startProcessing(ctx, items)
	return err
}

// Wait blocks until the most recently started run ends and returns its summary.
// It returns nil when nothing has been started.
func (p *Processor) Wait() *Summary {
	p.mu.Lock()
	r := p.last
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	summary := r.summary
	return &summary
}

// Done returns a channel closed when the most recently started run ends.
// It is already closed when nothing has been started.
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.last.done
}

func (p *Processor) startProcessing(ctx context.Context, items []model.ImageItem) (*run, error) {
	if p.deps.Source == nil || p.deps.Recognizer == nil {
		return nil, fmt.Errorf("%w: image source and recognizer", ErrMissingDependency)
	}

	snapshot := slices.Clone(items)
	r, runCtx, err := p.begin(ctx, len(snapshot))
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting batch", "items", len(snapshot))
	go p.loop(runCtx, r, len(snapshot), func(ctx context.Context, i int) outcome {
		return p.processItem(ctx, snapshot[i])
	})
	return r, nil
}

// begin claims the single active-run slot and resets run state.
func (p *Processor) begin(ctx context.Context, total int) (*run, context.Context, error) {
	p.mu.Lock()
	if p.current != nil {
		p.mu.Unlock()
		return nil, nil, common.ErrBatchActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		gate:   newGate(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.current = r
	p.last = r
	p.state = StateProcessing
	p.message = ""
	p.progress = 0
	p.total = total
	p.counts = Counts{}
	p.degraded = false
	p.mu.Unlock()

	p.notify()
	return r, runCtx, nil
}

// loop applies step to each index in order, honoring pause and cancel between
// items. Collaborators get a context that is not cancelled with the run.
func (p *Processor) loop(runCtx context.Context, r *run, total int, step func(context.Context, int) outcome) {
	start := time.Now()
	stepCtx := context.WithoutCancel(runCtx)
	cancelled := false

	for i := range total {
		if runCtx.Err() != nil {
			cancelled = true
			break
		}
		if err := r.gate.wait(runCtx); err != nil || runCtx.Err() != nil {
			cancelled = true
			break
		}

		o := step(stepCtx, i)
		p.record(o, i+1, total)
	}

	p.mu.Lock()
	if total == 0 {
		p.progress = 1
	}
	r.summary = Summary{
		Total:               total,
		Processed:           p.counts.Processed,
		Skipped:             p.counts.Skipped,
		Failed:              p.counts.Failed,
		PersistenceFailures: p.counts.PersistenceFailures,
		Cancelled:           cancelled,
		Duration:            time.Since(start),
	}
	p.current = nil
	p.state = StateLoaded
	p.mu.Unlock()

	r.cancel()
	p.notify()
	close(r.done)

	p.logger.Info("Batch finished",
		"total", total,
		"processed", r.summary.Processed,
		"skipped", r.summary.Skipped,
		"failed", r.summary.Failed,
		"persistence_failures", r.summary.PersistenceFailures,
		"cancelled", cancelled,
		"duration", r.summary.Duration)
}

func (p *Processor) record(o outcome, done, total int) {
	p.mu.Lock()
	switch o {
	case outcomeProcessed:
		p.counts.Processed++
	case outcomeSkipped:
		p.counts.Skipped++
	case outcomeFailed:
		p.counts.Failed++
	case outcomePersistFailed:
		p.counts.PersistenceFailures++
		p.degraded = true
	}
	p.progress = float64(done) / float64(total)
	p.mu.Unlock()
	p.notify()
}

// processItem handles one image end to end.
func (p *Processor) processItem(ctx context.Context, item model.ImageItem) outcome {
	_, err := p.deps.Store.Get(ctx, item.ID)
	switch {
	case err == nil:
		p.logger.Debug("Skipping processed item", "item", item.ID)
		return outcomeSkipped
	case !errors.Is(err, common.ErrNotFound):
		p.logger.Warn("Failed to look up item", "item", item.ID, "error", err)
		return outcomeFailed
	}

	img, err := p.deps.Source.Decode(ctx, item)
	if err != nil {
		p.logger.Warn("Failed to decode image", "item", item.ID, "error", err)
		return outcomeFailed
	}

	rec, err := p.deps.Recognizer.Recognize(ctx, img)
	if err != nil {
		p.logger.Warn("Failed to recognize text", "item", item.ID, "error", err)
		return outcomeFailed
	}

	processed := &model.ProcessedItem{
		ItemID:      item.ID,
		CreatedAt:   item.CreatedAt,
		OCRText:     rec.FullText,
		Category:    item.Group,
		Identifiers: p.detect(rec.FullText),
	}
	if processed.CreatedAt.IsZero() {
		processed.CreatedAt = p.clock()
	}
	if processed.Category == "" {
		processed.Category = p.category
	}

	if err := p.deps.Store.Upsert(ctx, processed); err != nil {
		p.logger.Warn("Failed to persist result", "item", item.ID, "error", err)
		return outcomePersistFailed
	}

	p.logger.Debug("Processed item", "item", item.ID, "identifiers", len(processed.Identifiers))
	return outcomeProcessed
}

func (p *Processor) detect(ocrText string) []model.DetectedIdentifier {
	return p.deps.Detector.Find(normalize.Text(ocrText), p.deps.Patterns.Enabled())
}

// Pause holds the run before its next item. It does nothing when idle.
func (p *Processor) Pause() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r == nil {
		return
	}
	r.gate.pause()
	p.notify()
}

// Resume releases a paused run. It does nothing when idle.
func (p *Processor) Resume() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r == nil {
		return
	}
	r.gate.resume()
	p.notify()
}

// TogglePause pauses a running batch or resumes a paused one.
func (p *Processor) TogglePause() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r == nil {
		return
	}
	if r.gate.isPaused() {
		p.Resume()
		return
	}
	p.Pause()
}

// Cancel stops the run before its next item and releases a pause. Results
// persisted so far are kept. It does nothing when idle.
func (p *Processor) Cancel() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	r.gate.resume()
}
