// Package testutil provides test helpers for seeding record stores.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/storage"
	"github.com/Veraticus/shotscan/internal/testutil/items"
)

// TestDB is a migrated in-memory record store with its seeded items.
type TestDB struct {
	Store *storage.SQLiteStore
	t     *testing.T
	Items items.Items
}

// SetupTestDB creates an in-memory SQLite store seeded with the given items.
// The store is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		items.NewBuilder(t).
//			WithFixture(items.FixtureMixed).
//			Build(),
//	)
func SetupTestDB(t *testing.T, seed items.Items) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for i := range seed {
		if err := store.Upsert(ctx, &seed[i]); err != nil {
			t.Fatalf("failed to seed item %q: %v", seed[i].ItemID, err)
		}
	}

	return &TestDB{
		Store: store,
		Items: seed,
		t:     t,
	}
}

// SetupTestDBWithBuilder creates a test database from a configured item builder.
func SetupTestDBWithBuilder(t *testing.T, configure func(items.Builder) items.Builder) *TestDB {
	t.Helper()

	builder := items.NewBuilder(t)
	if configure != nil {
		builder = configure(builder)
	}
	return SetupTestDB(t, builder.Build())
}

// MustGet returns the stored record for itemID or fails the test.
func (db *TestDB) MustGet(itemID string) *model.ProcessedItem {
	db.t.Helper()
	item, err := db.Store.Get(context.Background(), itemID)
	if err != nil {
		db.t.Fatalf("item %q not in store: %v", itemID, err)
	}
	return item
}
