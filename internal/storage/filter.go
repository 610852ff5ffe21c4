package storage

import (
	"slices"
	"strings"

	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/service"
)

// sortNewestFirst orders items by creation time descending, then by item ID.
func sortNewestFirst(items []model.ProcessedItem) {
	slices.SortStableFunc(items, func(a, b model.ProcessedItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
}

// matchesFilter applies the category and identifier parts of a filter.
// Category matches exactly ignoring case; identifier matches any value containing it.
func matchesFilter(item *model.ProcessedItem, filter service.ItemFilter) bool {
	if filter.Category != "" && !strings.EqualFold(item.Category, filter.Category) {
		return false
	}
	if filter.Identifier == "" {
		return true
	}
	needle := strings.ToUpper(filter.Identifier)
	for _, id := range item.Identifiers {
		if strings.Contains(strings.ToUpper(id.Value), needle) {
			return true
		}
	}
	return false
}

// paginate applies offset and limit. A non-positive limit means no limit.
func paginate(items []model.ProcessedItem, filter service.ItemFilter) []model.ProcessedItem {
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return []model.ProcessedItem{}
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}
