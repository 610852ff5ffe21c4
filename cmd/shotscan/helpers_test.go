package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/config"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/pattern"
	"github.com/Veraticus/shotscan/internal/storage"
	"github.com/Veraticus/shotscan/internal/testutil"
	"github.com/Veraticus/shotscan/internal/testutil/items"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{"512 B", 512},
		{"1.0 KB", 1024},
		{"1.5 MB", 1536 * 1024},
		{"2.0 GB", 2 << 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-90 * time.Second), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-30 * time.Hour), "yesterday"},
		{now.Add(-72 * time.Hour), "3 days ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRelativeTime(tt.at))
	}

	old := time.Date(2024, 1, 2, 3, 4, 0, 0, time.Local)
	assert.Equal(t, "2024-01-02 03:04", formatRelativeTime(old))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ＡＢ…", truncate("ＡＢＣＤＥ", 3))
}

func TestFindPattern(t *testing.T) {
	var userIDs []string
	seeded := 0
	newID := func() string {
		if len(userIDs) > 0 {
			id := userIDs[0]
			userIDs = userIDs[1:]
			return id
		}
		seeded++
		return fmt.Sprintf("builtin-%02d", seeded)
	}
	catalog, err := pattern.NewCatalog(filepath.Join(t.TempDir(), "patterns.json"), pattern.WithIDGenerator(newID))
	require.NoError(t, err)

	userIDs = []string{"aaaaaaaa-1111", "aaaaaaaa-2222", "bbbbbbbb-3333"}
	first, err := catalog.Add("Order", `ORD-\d+`)
	require.NoError(t, err)
	_, err = catalog.Add("Ticket", `TCK-\d+`)
	require.NoError(t, err)
	third, err := catalog.Add("Invoice Number", `INV-\d+`)
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantID  string
		wantErr bool
	}{
		{"exact id", "aaaaaaaa-1111", first.ID, false},
		{"unique prefix", "bbbbbbbb", third.ID, false},
		{"name ignores case", "invoice number", third.ID, false},
		{"ambiguous prefix", "aaaaaaaa", "", true},
		{"short prefix is not a prefix", "bbb", "", true},
		{"unknown", "nope", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := findPattern(catalog, tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		backend string
		want    string
	}{
		{"file", config.BackendFile, filepath.Join(dir, "processed.json")},
		{"sqlite", config.BackendSQLite, filepath.Join(dir, "processed.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{DataDir: dir, Store: config.StoreConfig{Backend: tt.backend}}
			store, err := openStore(ctx, cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			assert.Equal(t, tt.want, store.Path())

			item := &model.ProcessedItem{ItemID: "a.png", CreatedAt: time.Now().UTC(), Category: "Unknown"}
			require.NoError(t, store.Upsert(ctx, item))
			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestServicesCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir, Store: config.StoreConfig{Backend: config.BackendFile}}

	store, err := openStore(ctx, cfg)
	require.NoError(t, err)
	catalog, err := pattern.NewCatalog(cfg.PatternsPath())
	require.NoError(t, err)
	svc := &services{cfg: cfg, store: store, catalog: catalog}

	require.NoError(t, store.Upsert(ctx, &model.ProcessedItem{ItemID: "keep.png", CreatedAt: time.Now().UTC()}))

	manager, err := svc.checkpoints()
	require.NoError(t, err)
	info, err := manager.Create(ctx, "before", "")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Items)

	require.NoError(t, store.DeleteAll(ctx))
	require.NoError(t, store.Close())
	require.NoError(t, manager.Restore(ctx, "before"))

	reopened, err := storage.NewFileStore(cfg.RecordsPath(), nil)
	require.NoError(t, err)
	_, err = reopened.Get(ctx, "keep.png")
	assert.NoError(t, err)

	_, err = reopened.Get(ctx, "missing.png")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCountScanned(t *testing.T) {
	db := testutil.SetupTestDBWithBuilder(t, func(b items.Builder) items.Builder {
		return b.WithFixture(items.FixtureMixed)
	})
	svc := &services{store: db.Store}

	group := []model.ImageItem{
		{ID: "Screens/receipt.png"},
		{ID: "Screens/blank.png"},
		{ID: "Screens/new.png"},
	}
	assert.Equal(t, 2, countScanned(context.Background(), svc, group))
	assert.Zero(t, countScanned(context.Background(), svc, nil))
}
