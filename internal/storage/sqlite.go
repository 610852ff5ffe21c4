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
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements service.RecordStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string
	// mu serializes writers so Upsert and Delete observe each other's transactions.
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath. Use ":memory:" for tests.
// Call Migrate before first use.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps ":memory:" databases alive and avoids writer contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		logger: logger,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// All returns every record ordered by item ID.
func (s *SQLiteStore) All(ctx context.Context) ([]model.ProcessedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryItems(ctx, `
		SELECT item_id, created_at, category, ocr_text, identifiers
		FROM processed_items
		ORDER BY item_id`)
}

// Query returns records matching filter, newest first.
func (s *SQLiteStore) Query(ctx context.Context, filter service.ItemFilter) ([]model.ProcessedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, filter.Category)
	}
	if filter.Identifier != "" {
		where = append(where, `item_id IN (
			SELECT item_id FROM item_identifiers WHERE value LIKE ? ESCAPE '\')`)
		args = append(args, "%"+escapeLike(filter.Identifier)+"%")
	}

	query := `SELECT item_id, created_at, category, ocr_text, identifiers FROM processed_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, item_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	return s.queryItems(ctx, query, args...)
}

// Get returns the record for itemID or common.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, itemID string) (*model.ProcessedItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT item_id, created_at, category, ocr_text, identifiers
		FROM processed_items
		WHERE item_id = ?`, itemID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Upsert inserts or replaces the record for item.ItemID.
func (s *SQLiteStore) Upsert(ctx context.Context, item *model.ProcessedItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateItem(item); err != nil {
		return err
	}

	identifiers, err := json.Marshal(item.Identifiers)
	if err != nil {
		return fmt.Errorf("%w: failed to encode identifiers: %v", common.ErrPersistenceWrite, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processed_items (item_id, created_at, category, ocr_text, identifiers, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id) DO UPDATE SET
				created_at = excluded.created_at,
				category = excluded.category,
				ocr_text = excluded.ocr_text,
				identifiers = excluded.identifiers,
				updated_at = excluded.updated_at`,
			item.ItemID, item.CreatedAt.UTC(), item.Category, item.OCRText, string(identifiers), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert item: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM item_identifiers WHERE item_id = ?`, item.ItemID); err != nil {
			return fmt.Errorf("failed to clear identifiers: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO item_identifiers (item_id, position, value, pattern_id, pattern_name)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare identifier insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, id := range item.Identifiers {
			if _, err := stmt.ExecContext(ctx, item.ItemID, i, id.Value, id.PatternID, id.PatternName); err != nil {
				return fmt.Errorf("failed to insert identifier: %w", err)
			}
		}
		return nil
	})
}

// Delete removes the records for itemIDs in one transaction. Unknown IDs are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, itemIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateIDs(itemIDs); err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range itemIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM item_identifiers WHERE item_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete identifiers: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM processed_items WHERE item_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete item: %w", err)
			}
		}
		return nil
	})
}

// DeleteAll removes every record.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execAllContext(ctx, tx,
			`DELETE FROM item_identifiers`,
			`DELETE FROM processed_items`,
		)
	})
}

// Count returns the number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", common.ErrPersistenceWrite, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", common.ErrPersistenceWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", common.ErrPersistenceWrite, err)
	}
	return nil
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]model.ProcessedItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error("failed to close rows", "error", closeErr)
		}
	}()

	items := []model.ProcessedItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.ProcessedItem, error) {
	var (
		item        model.ProcessedItem
		identifiers string
	)
	if err := row.Scan(&item.ItemID, &item.CreatedAt, &item.Category, &item.OCRText, &identifiers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(identifiers), &item.Identifiers); err != nil {
		return nil, fmt.Errorf("%w: identifiers of %s: %v", common.ErrDatabaseCorrupted, item.ItemID, err)
	}
	return &item, nil
}

func execAllContext(ctx context.Context, tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
