// Package items builds processed-item fixtures for tests.
//
// Example usage:
//
//	seed := items.NewBuilder(t).
//		WithFixture(items.FixtureMixed).
//		WithItem("extra.png", "Screens", "ABC-1234").
//		Build()
package items

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/Veraticus/shotscan/internal/model"
)

// BaseTime is the creation time of the first built item. Each further item is one minute newer.
var BaseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Builder provides a fluent interface for constructing processed items.
type Builder interface {
	// WithItem adds an item in category with the given identifier values.
	WithItem(id, category string, values ...string) Builder

	// WithText sets the OCR text of the most recently added item.
	WithText(text string) Builder

	// WithFixture adds every item from a predefined fixture.
	WithFixture(fixture Fixture) Builder

	// Build returns the items in insertion order.
	Build() Items
}

// Items is a collection of built items.
type Items []model.ProcessedItem

// Find returns the item with the given id, or nil if not found.
func (s Items) Find(id string) *model.ProcessedItem {
	for i := range s {
		if s[i].ItemID == id {
			return &s[i]
		}
	}
	return nil
}

// MustFind returns the item with the given id or fails the test.
func (s Items) MustFind(t *testing.T, id string) model.ProcessedItem {
	t.Helper()
	item := s.Find(id)
	if item == nil {
		t.Fatalf("item %q not found in test data", id)
	}
	return *item
}

// IDs returns the item ids sorted.
func (s Items) IDs() []string {
	ids := make([]string, len(s))
	for i, item := range s {
		ids[i] = item.ItemID
	}
	sort.Strings(ids)
	return ids
}

// Values returns the number of identifiers across all items.
func (s Items) Values() int {
	n := 0
	for _, item := range s {
		n += len(item.Identifiers)
	}
	return n
}

type itemBuilder struct {
	t     *testing.T
	seen  map[string]struct{}
	items Items
}

// NewBuilder creates an empty builder for the given test.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &itemBuilder{t: t, seen: make(map[string]struct{})}
}

func (b *itemBuilder) WithItem(id, category string, values ...string) Builder {
	b.t.Helper()
	if _, dup := b.seen[id]; dup {
		b.t.Fatalf("item %q added twice", id)
	}
	b.seen[id] = struct{}{}

	item := model.ProcessedItem{
		ItemID:    id,
		Category:  category,
		CreatedAt: BaseTime.Add(time.Duration(len(b.items)) * time.Minute),
		OCRText:   fmt.Sprintf("screenshot %s", id),
	}
	for _, v := range values {
		item.Identifiers = append(item.Identifiers, model.DetectedIdentifier{
			Value:       v,
			PatternID:   "fixture",
			PatternName: "Fixture pattern",
		})
	}
	b.items = append(b.items, item)
	return b
}

func (b *itemBuilder) WithText(text string) Builder {
	b.t.Helper()
	if len(b.items) == 0 {
		b.t.Fatal("WithText called before WithItem")
	}
	b.items[len(b.items)-1].OCRText = text
	return b
}

func (b *itemBuilder) WithFixture(fixture Fixture) Builder {
	for _, e := range fixture.Items() {
		b.WithItem(e.ID, e.Category, e.Values...)
	}
	return b
}

func (b *itemBuilder) Build() Items {
	out := make(Items, len(b.items))
	copy(out, b.items)
	return out
}
