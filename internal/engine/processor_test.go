package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/pattern"
	"github.com/Veraticus/shotscan/internal/service"
	"github.com/Veraticus/shotscan/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// itemImage carries the item ID through Decode so the fake recognizer can
// pick its text.
type itemImage struct {
	*image.Gray
	id string
}

type fakeSource struct {
	accessErr  error
	listErr    error
	decodeErrs map[string]error
	items      []model.ImageItem
	mu         sync.Mutex
}

func (s *fakeSource) RequestAccess(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessErr
}

func (s *fakeSource) ListItems(_ context.Context, group string) ([]model.ImageItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.ImageItem
	for _, item := range s.items {
		if group == "" || item.Group == group {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *fakeSource) Decode(_ context.Context, item model.ImageItem) (image.Image, error) {
	if err := s.decodeErrs[item.ID]; err != nil {
		return nil, err
	}
	return itemImage{Gray: image.NewGray(image.Rect(0, 0, 4, 4)), id: item.ID}, nil
}

func (s *fakeSource) Delete(context.Context, []model.ImageItem) error {
	return nil
}

type fakeRecognizer struct {
	texts  map[string]string
	errs   map[string]error
	before func(id string)
	calls  []string
	mu     sync.Mutex
}

func (r *fakeRecognizer) Recognize(_ context.Context, img image.Image) (*model.Recognition, error) {
	id := img.(itemImage).id
	r.mu.Lock()
	r.calls = append(r.calls, id)
	hook := r.before
	r.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err := r.errs[id]; err != nil {
		return nil, err
	}
	return &model.Recognition{FullText: r.texts[id]}, nil
}

func (r *fakeRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type staticPatterns []model.Pattern

func (s staticPatterns) Enabled() []model.Pattern {
	return model.EnabledPatterns(s)
}

// failingStore accepts reads but rejects every write.
type failingStore struct {
	service.RecordStore
}

func (failingStore) Upsert(context.Context, *model.ProcessedItem) error {
	return fmt.Errorf("disk full: %w", common.ErrPersistenceWrite)
}

type fixture struct {
	processor  *Processor
	source     *fakeSource
	recognizer *fakeRecognizer
	store      *storage.FileStore
	patterns   *staticPatterns
}

func dashedPattern() model.Pattern {
	return model.Pattern{ID: "dashed", Name: "AAA-1234", Expression: `[A-Z]{2,5}-\d{3,7}`, Enabled: true}
}

func newFixture(t *testing.T, n int, opts Options) *fixture {
	t.Helper()

	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "processed.json"), nil)
	require.NoError(t, err)

	f := &fixture{
		source:     &fakeSource{decodeErrs: map[string]error{}},
		recognizer: &fakeRecognizer{texts: map[string]string{}, errs: map[string]error{}},
		store:      store,
		patterns:   &staticPatterns{dashedPattern()},
	}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		id := fmt.Sprintf("img-%d.png", i+1)
		f.source.items = append(f.source.items, model.ImageItem{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Group:     "Screenshots",
		})
		f.recognizer.texts[id] = fmt.Sprintf("Photo ABC-%d taken", 1000+i+1)
	}

	f.processor, err = New(Dependencies{
		Source:     f.source,
		Recognizer: f.recognizer,
		Store:      f.store,
		Patterns:   f.patterns,
		Detector:   pattern.NewDetector(),
	}, opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) load(t *testing.T) []model.ImageItem {
	t.Helper()
	require.NoError(t, f.processor.Load(context.Background(), ""))
	return f.processor.Items()
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{}, Options{})
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestProcessor_ProcessAll(t *testing.T) {
	f := newFixture(t, 3, Options{})
	f.recognizer.errs["img-2.png"] = fmt.Errorf("no text: %w", common.ErrRecognition)
	items := f.load(t)

	summary, err := f.processor.ProcessAll(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Cancelled)

	count, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	status := f.processor.Status()
	assert.Equal(t, StateLoaded, status.State)
	assert.InDelta(t, 1.0, status.Progress, 1e-9)

	got, err := f.store.Get(context.Background(), "img-3.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1003"}, got.Values())
	assert.Equal(t, "Photo ABC-1003 taken", got.OCRText)
	assert.Equal(t, "Screenshots", got.Category)
	assert.Equal(t, "dashed", got.Identifiers[0].PatternID)
	assert.True(t, items[2].CreatedAt.Equal(got.CreatedAt))
}

func TestProcessor_DecodeFailureIsCounted(t *testing.T) {
	f := newFixture(t, 2, Options{})
	f.source.decodeErrs["img-1.png"] = fmt.Errorf("truncated: %w", common.ErrDecode)

	summary, err := f.processor.ProcessAll(context.Background(), f.load(t))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, f.recognizer.callCount())
}

func TestProcessor_SecondRunSkipsProcessedItems(t *testing.T) {
	f := newFixture(t, 3, Options{})
	items := f.load(t)

	_, err := f.processor.ProcessAll(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 3, f.recognizer.callCount())

	summary, err := f.processor.ProcessAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Zero(t, summary.Processed)
	assert.Equal(t, 3, f.recognizer.callCount())
	assert.InDelta(t, 1.0, f.processor.Status().Progress, 1e-9)
}

func TestProcessor_CancelStopsBeforeRemainingItems(t *testing.T) {
	f := newFixture(t, 5, Options{})
	f.recognizer.before = func(id string) {
		if id == "img-2.png" {
			f.processor.Cancel()
		}
	}

	summary, err := f.processor.ProcessAll(context.Background(), f.load(t))
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Processed)

	// The in-flight item finishes and is persisted.
	all, err := f.store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "img-1.png", all[0].ItemID)
	assert.Equal(t, "img-2.png", all[1].ItemID)
	assert.Equal(t, StateLoaded, f.processor.Status().State)
}

func TestProcessor_ContextCancellation(t *testing.T) {
	f := newFixture(t, 3, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	f.recognizer.before = func(id string) {
		if id == "img-1.png" {
			cancel()
		}
	}

	summary, err := f.processor.ProcessAll(ctx, f.load(t))
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Processed)
}

func TestProcessor_PauseAndResume(t *testing.T) {
	f := newFixture(t, 3, Options{})
	f.recognizer.before = func(id string) {
		if id == "img-1.png" {
			f.processor.Pause()
		}
	}

	require.NoError(t, f.processor.Start(context.Background(), f.load(t)))

	require.Eventually(t, func() bool {
		s := f.processor.Status()
		return s.Paused && s.Counts.Done() == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.recognizer.callCount())
	assert.Equal(t, StateProcessing, f.processor.Status().State)

	f.processor.TogglePause()
	summary := f.processor.Wait()
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.Processed)
	assert.False(t, f.processor.Status().Paused)
}

func TestProcessor_CancelWhilePaused(t *testing.T) {
	f := newFixture(t, 3, Options{})
	f.recognizer.before = func(id string) {
		if id == "img-1.png" {
			f.processor.Pause()
		}
	}

	require.NoError(t, f.processor.Start(context.Background(), f.load(t)))
	require.Eventually(t, func() bool {
		return f.processor.Status().Paused
	}, 2*time.Second, 5*time.Millisecond)

	f.processor.Cancel()

	select {
	case <-f.processor.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not stop while paused")
	}
	summary := f.processor.Wait()
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Processed)
}

func TestProcessor_ControlsAreNoOpsWhenIdle(t *testing.T) {
	f := newFixture(t, 1, Options{})

	f.processor.Pause()
	f.processor.Resume()
	f.processor.TogglePause()
	f.processor.Cancel()

	assert.False(t, f.processor.Status().Paused)
	assert.Nil(t, f.processor.Wait())
	select {
	case <-f.processor.Done():
	default:
		t.Fatal("Done should be closed before any run")
	}
}

func TestProcessor_RejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t, 2, Options{})
	release := make(chan struct{})
	started := make(chan struct{})
	f.recognizer.before = func(id string) {
		if id == "img-1.png" {
			close(started)
			<-release
		}
	}

	items := f.load(t)
	require.NoError(t, f.processor.Start(context.Background(), items))
	<-started

	err := f.processor.Start(context.Background(), items)
	require.ErrorIs(t, err, common.ErrBatchActive)

	_, err = f.processor.RedetectAll(context.Background())
	require.ErrorIs(t, err, common.ErrBatchActive)

	err = f.processor.Load(context.Background(), "")
	require.ErrorIs(t, err, common.ErrBatchActive)

	close(release)
	summary := f.processor.Wait()
	assert.Equal(t, 2, summary.Processed)
}

func TestProcessor_SnapshotIgnoresLaterChanges(t *testing.T) {
	f := newFixture(t, 2, Options{})
	items := f.load(t)
	f.recognizer.before = func(id string) {
		if id == "img-1.png" {
			items[1].ID = "mutated.png"
		}
	}

	_, err := f.processor.ProcessAll(context.Background(), items)
	require.NoError(t, err)

	_, err = f.store.Get(context.Background(), "img-2.png")
	require.NoError(t, err)
}

func TestProcessor_LoadFailureEntersErrorState(t *testing.T) {
	f := newFixture(t, 2, Options{})
	f.source.accessErr = fmt.Errorf("library: %w", common.ErrPermissionDenied)

	err := f.processor.Load(context.Background(), "")
	require.ErrorIs(t, err, common.ErrPermissionDenied)

	status := f.processor.Status()
	assert.Equal(t, StateError, status.State)
	assert.NotEmpty(t, status.Message)

	f.source.mu.Lock()
	f.source.accessErr = nil
	f.source.mu.Unlock()

	require.NoError(t, f.processor.Load(context.Background(), ""))
	assert.Equal(t, StateLoaded, f.processor.Status().State)
	assert.Len(t, f.processor.Items(), 2)
}

func TestProcessor_ListFailureEntersErrorState(t *testing.T) {
	f := newFixture(t, 1, Options{})
	f.source.listErr = errors.New("library offline")

	require.Error(t, f.processor.Load(context.Background(), ""))
	assert.Equal(t, StateError, f.processor.Status().State)
}

func TestProcessor_EmptyBatchCompletes(t *testing.T) {
	f := newFixture(t, 0, Options{})

	summary, err := f.processor.ProcessAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)

	status := f.processor.Status()
	assert.InDelta(t, 1.0, status.Progress, 1e-9)
	assert.Equal(t, StateLoaded, status.State)
}

func TestProcessor_PersistenceFailureMarksDegraded(t *testing.T) {
	f := newFixture(t, 2, Options{})
	p, err := New(Dependencies{
		Source:     f.source,
		Recognizer: f.recognizer,
		Store:      failingStore{RecordStore: f.store},
		Patterns:   f.patterns,
		Detector:   pattern.NewDetector(),
	}, Options{})
	require.NoError(t, err)

	summary, err := p.ProcessAll(context.Background(), f.source.items)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PersistenceFailures)
	assert.Zero(t, summary.Processed)

	status := p.Status()
	assert.True(t, status.Degraded)
	assert.Equal(t, StateLoaded, status.State)
	assert.InDelta(t, 1.0, status.Progress, 1e-9)
}

func TestProcessor_DefaultsForMissingMetadata(t *testing.T) {
	fixed := time.Date(2024, 12, 24, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, 0, Options{Clock: func() time.Time { return fixed }})
	f.source.items = []model.ImageItem{{ID: "loose.png"}}
	f.recognizer.texts["loose.png"] = "XYZ-999"

	_, err := f.processor.ProcessAll(context.Background(), f.load(t))
	require.NoError(t, err)

	got, err := f.store.Get(context.Background(), "loose.png")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategory, got.Category)
	assert.True(t, fixed.Equal(got.CreatedAt))
}

func TestProcessor_NormalizesBeforeDetection(t *testing.T) {
	f := newFixture(t, 1, Options{})
	f.recognizer.texts["img-1.png"] = "コード ＡＢＣ－１２３４"

	_, err := f.processor.ProcessAll(context.Background(), f.load(t))
	require.NoError(t, err)

	got, err := f.store.Get(context.Background(), "img-1.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1234"}, got.Values())
	assert.Equal(t, "コード ＡＢＣ－１２３４", got.OCRText)
}

func TestProcessor_ObserverSeesProgress(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []Status
	)
	f := newFixture(t, 2, Options{Observer: func(s Status) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}})

	_, err := f.processor.ProcessAll(context.Background(), f.load(t))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)

	var progress []float64
	for _, s := range statuses {
		if s.State == StateProcessing {
			progress = append(progress, s.Progress)
		}
	}
	assert.Equal(t, []float64{0, 0.5, 1}, progress)

	last := statuses[len(statuses)-1]
	assert.Equal(t, StateLoaded, last.State)
	assert.Equal(t, 2, last.Counts.Processed)
}

func TestProcessor_ObserverCallsAreSerialized(t *testing.T) {
	var (
		inFlight   atomic.Int32
		overlapped atomic.Bool
		mu         sync.Mutex
		statuses   []Status
	)
	f := newFixture(t, 20, Options{Observer: func(s Status) {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(100 * time.Microsecond)
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
		inFlight.Add(-1)
	}})
	items := f.load(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					f.processor.TogglePause()
				}
			}
		}()
	}

	require.NoError(t, f.processor.Start(context.Background(), items))
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
	f.processor.Resume()

	summary := f.processor.Wait()
	require.NotNil(t, summary)
	assert.Equal(t, 20, summary.Processed)
	assert.False(t, overlapped.Load(), "observer was called concurrently")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1]
	assert.Equal(t, StateLoaded, last.State, "terminal status must be delivered last")
	assert.Equal(t, 20, last.Counts.Processed)
}

func TestProcessor_RedetectOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, Options{})
	_, err := f.processor.ProcessAll(ctx, f.load(t))
	require.NoError(t, err)
	before, err := f.store.Get(ctx, "img-1.png")
	require.NoError(t, err)
	require.Equal(t, []string{"ABC-1001"}, before.Values())

	(*f.patterns)[0].Enabled = false

	updated, err := f.processor.RedetectOne(ctx, "img-1.png")
	require.NoError(t, err)
	assert.Empty(t, updated.Identifiers)

	stored, err := f.store.Get(ctx, "img-1.png")
	require.NoError(t, err)
	assert.Empty(t, stored.Identifiers)
	assert.Equal(t, before.OCRText, stored.OCRText)
	assert.True(t, before.CreatedAt.Equal(stored.CreatedAt))
	assert.Equal(t, before.Category, stored.Category)
	assert.Equal(t, 1, f.recognizer.callCount())
}

func TestProcessor_RedetectOneMissingItem(t *testing.T) {
	f := newFixture(t, 0, Options{})

	_, err := f.processor.RedetectOne(context.Background(), "nope.png")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcessor_RedetectAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, Options{})
	_, err := f.processor.ProcessAll(ctx, f.load(t))
	require.NoError(t, err)

	*f.patterns = append(*f.patterns, model.Pattern{
		ID: "photo", Name: "Photo word", Expression: `photo`, Enabled: true,
	})

	summary, err := f.processor.RedetectAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, f.recognizer.callCount())

	got, err := f.store.Get(ctx, "img-2.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1002", "Photo"}, got.Values())

	status := f.processor.Status()
	assert.Equal(t, StateLoaded, status.State)
	assert.InDelta(t, 1.0, status.Progress, 1e-9)
}

func TestProcessor_RedetectAllEmptyStore(t *testing.T) {
	f := newFixture(t, 0, Options{})

	summary, err := f.processor.RedetectAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.InDelta(t, 1.0, f.processor.Status().Progress, 1e-9)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateLoading, "loading"},
		{StateLoaded, "loaded"},
		{StateProcessing, "processing"},
		{StateError, "error"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
