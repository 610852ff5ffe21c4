package source

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) (*Watcher, context.CancelFunc) {
	t.Helper()

	w, err := NewWatcher(NewDirectory(root, nil, nil), 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, cancel
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	root := t.TempDir()
	w, _ := startWatcher(t, root)

	first := filepath.Join(root, "a.png")
	second := filepath.Join(root, "b.png")
	writePNG(t, first, time.Time{})
	writePNG(t, second, time.Time{})
	writePNG(t, filepath.Join(root, "ignored.txt"), time.Time{})

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case paths := <-w.Changes():
			for _, p := range paths {
				seen[p] = true
			}
		case <-deadline:
			t.Fatalf("timeout waiting for change notification, saw %v", seen)
		}
	}
	assert.Equal(t, map[string]bool{first: true, second: true}, seen)
}

func TestWatcher_PicksUpNewGroup(t *testing.T) {
	root := t.TempDir()
	w, _ := startWatcher(t, root)

	path := filepath.Join(root, "NewAlbum", "shot.png")
	writePNG(t, path, time.Time{})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case paths := <-w.Changes():
			if assert.NotEmpty(t, paths) && paths[len(paths)-1] == path {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for image in new directory")
		}
	}
}

func TestWatcher_ClosesChangesOnCancel(t *testing.T) {
	root := t.TempDir()
	w, cancel := startWatcher(t, root)
	cancel()

	select {
	case _, ok := <-w.Changes():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("changes channel not closed")
	}
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	_, err := NewWatcher(NewDirectory(filepath.Join(t.TempDir(), "missing"), nil, nil), 0, nil)
	require.Error(t, err)
}
