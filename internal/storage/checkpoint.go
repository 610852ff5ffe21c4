package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
)

// Artifact is a data file that can be snapshotted into a checkpoint.
type Artifact interface {
	// Path is the live location restored from a checkpoint.
	Path() string
	// Backup writes a consistent copy of the artifact to dst.
	Backup(ctx context.Context, dst string) error
}

// FileArtifact is an Artifact for a plain file written atomically by its owner.
type FileArtifact string

// Path returns the file location.
func (f FileArtifact) Path() string { return string(f) }

// Backup copies the file. A missing file is not an error and produces no copy.
func (f FileArtifact) Backup(_ context.Context, dst string) error {
	if _, err := os.Stat(string(f)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return common.CopyFile(string(f), dst)
}

// Backup writes a compacted copy of the database to dst using VACUUM INTO.
func (s *SQLiteStore) Backup(ctx context.Context, dst string) error {
	if strings.ContainsAny(dst, `'";`) {
		return fmt.Errorf("invalid destination path: contains forbidden characters")
	}
	if !filepath.IsAbs(dst) || strings.Contains(dst, "..") {
		return fmt.Errorf("invalid destination path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dbPath != ":memory:" {
		if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("failed to checkpoint WAL: %w", err)
		}
	}

	// #nosec G201 - dst is validated above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dst)); err != nil {
		if s.dbPath == ":memory:" {
			return fmt.Errorf("failed to backup database: %w", err)
		}
		s.logger.Warn("VACUUM INTO failed, falling back to file copy", "error", err)
		return common.CopyFile(s.dbPath, dst)
	}
	return nil
}

// Counter reports how many records a store holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// CheckpointManager snapshots the data directory artifacts into
// <dir>/<tag>/ and restores them.
type CheckpointManager struct {
	counter        Counter
	logger         *slog.Logger
	checkpointsDir string
	artifacts      []Artifact
}

// CheckpointMetadata contains metadata about a checkpoint.
type CheckpointMetadata struct {
	CreatedAt   time.Time        `json:"created_at"`
	Files       map[string]int64 `json:"files"`
	ID          string           `json:"id"`
	Description string           `json:"description"`
	ItemCount   int              `json:"item_count"`
	IsAuto      bool             `json:"is_auto"`
}

// CheckpointInfo represents information about a checkpoint for listing.
type CheckpointInfo struct {
	CreatedAt   time.Time
	ID          string
	Description string
	Files       []string
	FileSize    int64
	Items       int
	IsAuto      bool
}

// Common errors.
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrCheckpointExists    = errors.New("checkpoint already exists")
	ErrInvalidCheckpointID = errors.New("invalid checkpoint ID: cannot contain path separators")
)

const (
	metadataFile       = "metadata.json"
	maxAutoCheckpoints = 5
)

// NewCheckpointManager creates a checkpoint manager rooted at checkpointsDir.
// counter reports the record count stored in metadata and may be nil.
func NewCheckpointManager(checkpointsDir string, counter Counter, artifacts ...Artifact) (*CheckpointManager, error) {
	if err := os.MkdirAll(checkpointsDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &CheckpointManager{
		checkpointsDir: checkpointsDir,
		counter:        counter,
		artifacts:      artifacts,
		logger:         slog.Default(),
	}, nil
}

func validateCheckpointID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidCheckpointID
	}
	return nil
}

// Create snapshots every artifact under tag. An empty tag is generated from the clock.
func (cm *CheckpointManager) Create(ctx context.Context, tag, description string) (*CheckpointInfo, error) {
	return cm.create(ctx, tag, description, false)
}

func (cm *CheckpointManager) create(ctx context.Context, tag, description string, auto bool) (*CheckpointInfo, error) {
	if tag == "" {
		tag = fmt.Sprintf("checkpoint-%s", time.Now().Format("2006-01-02-150405"))
	}
	if err := validateCheckpointID(tag); err != nil {
		return nil, err
	}

	dir := filepath.Join(cm.checkpointsDir, tag)
	if _, err := os.Stat(dir); err == nil {
		return nil, ErrCheckpointExists
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	metadata := CheckpointMetadata{
		ID:          tag,
		CreatedAt:   time.Now(),
		Description: description,
		Files:       make(map[string]int64),
		IsAuto:      auto,
	}

	if cm.counter != nil {
		count, err := cm.counter.Count(ctx)
		if err != nil {
			cm.removeDir(dir)
			return nil, fmt.Errorf("failed to count items: %w", err)
		}
		metadata.ItemCount = count
	}

	for _, artifact := range cm.artifacts {
		name := filepath.Base(artifact.Path())
		dst, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			cm.removeDir(dir)
			return nil, fmt.Errorf("failed to resolve checkpoint path: %w", err)
		}
		if err := artifact.Backup(ctx, dst); err != nil {
			cm.removeDir(dir)
			return nil, fmt.Errorf("failed to backup %s: %w", name, err)
		}
		info, err := os.Stat(dst)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			cm.removeDir(dir)
			return nil, fmt.Errorf("failed to stat checkpoint file: %w", err)
		}
		metadata.Files[name] = info.Size()
	}

	if err := cm.saveMetadata(filepath.Join(dir, metadataFile), metadata); err != nil {
		cm.removeDir(dir)
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	info := metadata.info()
	return &info, nil
}

// List returns all checkpoints, newest first. Checkpoints with unreadable
// metadata are skipped.
func (cm *CheckpointManager) List(_ context.Context) ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(cm.checkpointsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	checkpoints := make([]CheckpointInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadata, err := cm.loadMetadata(filepath.Join(cm.checkpointsDir, entry.Name(), metadataFile))
		if err != nil {
			cm.logger.Debug("skipping checkpoint with unreadable metadata", "id", entry.Name(), "error", err)
			continue
		}
		checkpoints = append(checkpoints, metadata.info())
	}

	slices.SortFunc(checkpoints, func(a, b CheckpointInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return checkpoints, nil
}

// Restore replaces the live artifacts with the checkpoint copies. Stores that
// hold the artifacts open must be closed first. Each live file is backed up
// and put back if its restore fails.
func (cm *CheckpointManager) Restore(_ context.Context, checkpointID string) error {
	if err := validateCheckpointID(checkpointID); err != nil {
		return err
	}

	dir := filepath.Join(cm.checkpointsDir, checkpointID)
	metadata, err := cm.loadMetadata(filepath.Join(dir, metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return ErrCheckpointNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load checkpoint metadata: %w", err)
	}

	for name := range metadata.Files {
		if err := verifyCheckpointFile(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCheckpointCorrupted, name, err)
		}
	}

	for _, artifact := range cm.artifacts {
		live := artifact.Path()
		name := filepath.Base(live)
		if _, ok := metadata.Files[name]; !ok {
			continue
		}

		backupPath := live + ".restore-backup"
		hadLive := true
		if err := common.CopyFile(live, backupPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to backup current %s: %w", name, err)
			}
			hadLive = false
		}

		if err := common.CopyFile(filepath.Join(dir, name), live); err != nil {
			if hadLive {
				if restoreErr := common.CopyFile(backupPath, live); restoreErr != nil {
					cm.logger.Error("failed to restore backup after checkpoint restore failure", "file", name, "error", restoreErr)
				}
			}
			return fmt.Errorf("failed to restore %s: %w", name, err)
		}

		// Stale WAL files would be replayed over the restored database.
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(live + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				cm.logger.Warn("failed to remove stale database file", "path", live+suffix, "error", err)
			}
		}

		if hadLive {
			if err := os.Remove(backupPath); err != nil {
				cm.logger.Error("failed to remove backup file", "error", err)
			}
		}
	}

	return nil
}

// Delete removes a checkpoint.
func (cm *CheckpointManager) Delete(_ context.Context, checkpointID string) error {
	if err := validateCheckpointID(checkpointID); err != nil {
		return err
	}

	dir := filepath.Join(cm.checkpointsDir, checkpointID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return ErrCheckpointNotFound
		}
		return fmt.Errorf("failed to access checkpoint: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}

// GetCheckpointInfo retrieves information about a specific checkpoint.
func (cm *CheckpointManager) GetCheckpointInfo(_ context.Context, checkpointID string) (*CheckpointInfo, error) {
	if err := validateCheckpointID(checkpointID); err != nil {
		return nil, err
	}

	metadata, err := cm.loadMetadata(filepath.Join(cm.checkpointsDir, checkpointID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint metadata: %w", err)
	}

	info := metadata.info()
	return &info, nil
}

// AutoCheckpoint creates an automatic checkpoint before a destructive operation
// and prunes older automatic ones.
func (cm *CheckpointManager) AutoCheckpoint(ctx context.Context, prefix string) error {
	tag := fmt.Sprintf("auto-%s-%s", prefix, time.Now().Format("2006-01-02-150405.000"))
	description := fmt.Sprintf("Automatic checkpoint before %s", prefix)

	if _, err := cm.create(ctx, tag, description, true); err != nil {
		return fmt.Errorf("failed to create auto-checkpoint: %w", err)
	}

	if err := cm.cleanupOldAutoCheckpoints(ctx); err != nil {
		cm.logger.Warn("failed to clean up old auto-checkpoints", "error", err)
	}
	return nil
}

func (cm *CheckpointManager) cleanupOldAutoCheckpoints(ctx context.Context) error {
	checkpoints, err := cm.List(ctx)
	if err != nil {
		return err
	}

	autoCount := 0
	for _, cp := range checkpoints {
		if !cp.IsAuto {
			continue
		}
		autoCount++
		if autoCount > maxAutoCheckpoints {
			if err := cm.Delete(ctx, cp.ID); err != nil {
				cm.logger.Debug("failed to delete old auto-checkpoint during cleanup", "error", err, "checkpoint", cp.ID)
			}
		}
	}
	return nil
}

func (m *CheckpointMetadata) info() CheckpointInfo {
	info := CheckpointInfo{
		ID:          m.ID,
		CreatedAt:   m.CreatedAt,
		Description: m.Description,
		Items:       m.ItemCount,
		IsAuto:      m.IsAuto,
	}
	for name, size := range m.Files {
		info.Files = append(info.Files, name)
		info.FileSize += size
	}
	slices.Sort(info.Files)
	return info
}

func (cm *CheckpointManager) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		cm.logger.Error("failed to remove partial checkpoint", "path", dir, "error", err)
	}
}

func (cm *CheckpointManager) saveMetadata(path string, metadata CheckpointMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(path, data, 0600)
}

func (cm *CheckpointManager) loadMetadata(path string) (*CheckpointMetadata, error) {
	// #nosec G304 - path is built from a validated checkpoint ID
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var metadata CheckpointMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// verifyCheckpointFile checks JSON documents parse and SQLite files pass integrity_check.
func verifyCheckpointFile(path string) error {
	if strings.HasSuffix(path, ".json") {
		// #nosec G304 - path is inside the checkpoint directory
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON document")
		}
		return nil
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
