package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkpointFixture struct {
	store    *FileStore
	manager  *CheckpointManager
	patterns string
}

func setupCheckpoints(t *testing.T) *checkpointFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := NewFileStore(filepath.Join(dir, "processed.json"), nil)
	require.NoError(t, err)

	patterns := filepath.Join(dir, "patterns.json")
	require.NoError(t, os.WriteFile(patterns, []byte(`[{"id":"1","name":"A","pattern":"A\\d+","enabled":true}]`), 0600))

	manager, err := NewCheckpointManager(filepath.Join(dir, "checkpoints"), store, store, FileArtifact(patterns), FileArtifact(filepath.Join(dir, "missing.json")))
	require.NoError(t, err)

	return &checkpointFixture{store: store, manager: manager, patterns: patterns}
}

func TestCheckpointManager_CreateAndList(t *testing.T) {
	ctx := context.Background()
	f := setupCheckpoints(t)
	require.NoError(t, f.store.Upsert(ctx, testItem("a", time.Now(), "Unknown", "ABC-1234")))

	info, err := f.manager.Create(ctx, "before-import", "manual")
	require.NoError(t, err)
	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, 1, info.Items)
	assert.Equal(t, []string{"patterns.json", "processed.json"}, info.Files)
	assert.Positive(t, info.FileSize)

	_, err = f.manager.Create(ctx, "before-import", "again")
	require.ErrorIs(t, err, ErrCheckpointExists)

	generated, err := f.manager.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Contains(t, generated.ID, "checkpoint-")

	list, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, generated.ID, list[0].ID, "newest first")

	got, err := f.manager.GetCheckpointInfo(ctx, "before-import")
	require.NoError(t, err)
	assert.Equal(t, "manual", got.Description)
}

func TestCheckpointManager_Restore(t *testing.T) {
	ctx := context.Background()
	f := setupCheckpoints(t)
	require.NoError(t, f.store.Upsert(ctx, testItem("keep", time.Now(), "Unknown", "ABC-1234")))

	_, err := f.manager.Create(ctx, "snap", "")
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteAll(ctx))
	require.NoError(t, os.WriteFile(f.patterns, []byte(`[]`), 0600))

	require.NoError(t, f.manager.Restore(ctx, "snap"))

	reopened, err := NewFileStore(f.store.Path(), nil)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1234"}, got.Values())

	data, err := os.ReadFile(f.patterns)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"A"`)

	_, err = os.Stat(f.patterns + ".restore-backup")
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpointManager_RestoreRejectsCorruptCopy(t *testing.T) {
	ctx := context.Background()
	f := setupCheckpoints(t)

	_, err := f.manager.Create(ctx, "snap", "")
	require.NoError(t, err)

	copyPath := filepath.Join(f.manager.checkpointsDir, "snap", "patterns.json")
	require.NoError(t, os.WriteFile(copyPath, []byte("{broken"), 0600))

	err = f.manager.Restore(ctx, "snap")
	require.ErrorIs(t, err, ErrCheckpointCorrupted)
}

func TestCheckpointManager_Delete(t *testing.T) {
	ctx := context.Background()
	f := setupCheckpoints(t)

	_, err := f.manager.Create(ctx, "snap", "")
	require.NoError(t, err)
	require.NoError(t, f.manager.Delete(ctx, "snap"))

	require.ErrorIs(t, f.manager.Delete(ctx, "snap"), ErrCheckpointNotFound)
	require.ErrorIs(t, f.manager.Restore(ctx, "snap"), ErrCheckpointNotFound)
	_, err = f.manager.GetCheckpointInfo(ctx, "snap")
	require.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestCheckpointManager_RejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	f := setupCheckpoints(t)

	for _, id := range []string{"../escape", "a/b", `a\b`, ".."} {
		_, err := f.manager.Create(ctx, id, "")
		require.ErrorIs(t, err, ErrInvalidCheckpointID, id)
		require.ErrorIs(t, f.manager.Restore(ctx, id), ErrInvalidCheckpointID, id)
		require.ErrorIs(t, f.manager.Delete(ctx, id), ErrInvalidCheckpointID, id)
	}
}

func TestCheckpointManager_AutoCheckpointPrunes(t *testing.T) {
	ctx := context.Background()
	f := setupCheckpoints(t)

	for range maxAutoCheckpoints + 2 {
		require.NoError(t, f.manager.AutoCheckpoint(ctx, "clear"))
		time.Sleep(2 * time.Millisecond)
	}

	list, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, maxAutoCheckpoints)
	for _, cp := range list {
		assert.True(t, cp.IsAuto)
	}
}

func TestCheckpointManager_SQLiteArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewSQLiteStore(filepath.Join(dir, "shotscan.db"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Upsert(ctx, testItem("a", time.Now(), "Unknown", "ABC-1234")))

	manager, err := NewCheckpointManager(filepath.Join(dir, "checkpoints"), store, store)
	require.NoError(t, err)

	_, err = manager.Create(ctx, "db", "")
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(ctx))
	require.NoError(t, store.Close())

	require.NoError(t, manager.Restore(ctx, "db"))

	reopened, err := NewSQLiteStore(filepath.Join(dir, "shotscan.db"), nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate(ctx))

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
