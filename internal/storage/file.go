package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/service"
)

// FileStore keeps processed items in a single JSON document keyed by item ID.
// The document is read once on first use and rewritten atomically after every
// mutation.
type FileStore struct {
	logger  *slog.Logger
	items   map[string]model.ProcessedItem
	loadErr error
	path    string
	mu      sync.Mutex
	loaded  bool
}

// NewFileStore creates a store backed by the document at path. Nothing is read
// until the first call.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if err := validateString(path, "path"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}, nil
}

// load reads the document once. A missing file is an empty store. A corrupt
// file is reported on every call and is never overwritten. Callers hold mu.
func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}
	if s.loadErr != nil {
		return s.loadErr
	}

	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.items = make(map[string]model.ProcessedItem)
		s.loaded = true
		return nil
	case err != nil:
		return fmt.Errorf("failed to read records: %w", err)
	}

	items := make(map[string]model.ProcessedItem)
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			s.loadErr = fmt.Errorf("%w: %s: %v", common.ErrDatabaseCorrupted, s.path, err)
			return s.loadErr
		}
	}

	s.items = items
	s.loaded = true
	s.logger.Debug("loaded records", "path", s.path, "count", len(items))
	return nil
}

// save rewrites the whole document. Callers hold mu.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceWrite, err)
	}
	if err := common.WriteFileAtomic(s.path, data, 0600); err != nil {
		s.logger.Warn("failed to persist records", "path", s.path, "error", err)
		return fmt.Errorf("%w: %v", common.ErrPersistenceWrite, err)
	}
	return nil
}

// All returns every record ordered by item ID.
func (s *FileStore) All(ctx context.Context) ([]model.ProcessedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}

	items := make([]model.ProcessedItem, 0, len(s.items))
	for _, id := range slices.Sorted(maps.Keys(s.items)) {
		items = append(items, s.items[id])
	}
	return items, nil
}

// Query returns records matching filter, newest first.
func (s *FileStore) Query(ctx context.Context, filter service.ItemFilter) ([]model.ProcessedItem, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	matched := slices.DeleteFunc(all, func(item model.ProcessedItem) bool {
		return !matchesFilter(&item, filter)
	})
	sortNewestFirst(matched)
	return paginate(matched, filter), nil
}

// Get returns the record for itemID or common.ErrNotFound.
func (s *FileStore) Get(ctx context.Context, itemID string) (*model.ProcessedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}

	item, ok := s.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, common.ErrNotFound)
	}
	return &item, nil
}

// Upsert inserts or replaces the record for item.ItemID. When the write fails
// the in-memory record is kept and common.ErrPersistenceWrite is returned.
func (s *FileStore) Upsert(ctx context.Context, item *model.ProcessedItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateItem(item); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	stored := *item
	stored.Identifiers = slices.Clone(item.Identifiers)
	s.items[item.ItemID] = stored
	return s.save()
}

// Delete removes the records for itemIDs. Unknown IDs are ignored.
func (s *FileStore) Delete(ctx context.Context, itemIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateIDs(itemIDs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	removed := 0
	for _, id := range itemIDs {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return s.save()
}

// DeleteAll removes every record.
func (s *FileStore) DeleteAll(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	s.items = make(map[string]model.ProcessedItem)
	return s.save()
}

// Count returns the number of records.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return 0, err
	}
	return len(s.items), nil
}

// Path returns the location of the records document.
func (s *FileStore) Path() string {
	return s.path
}

// Backup copies the current document to dst while holding the store lock.
func (s *FileStore) Backup(_ context.Context, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return common.WriteFileAtomic(dst, []byte("{}"), 0600)
	}
	return common.CopyFile(s.path, dst)
}

// Close releases nothing; the document is already on disk after every mutation.
func (s *FileStore) Close() error {
	return nil
}
