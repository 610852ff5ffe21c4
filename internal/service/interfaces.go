// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"image"
	"time"

	"github.com/Veraticus/shotscan/internal/model"
)

// ItemFilter narrows record queries. Zero values match everything.
type ItemFilter struct {
	Category   string
	Identifier string
	Limit      int
	Offset     int
}

// RecordStore defines the contract for our persistence layer.
type RecordStore interface {
	All(ctx context.Context) ([]model.ProcessedItem, error)
	// Query returns matching records, newest first.
	Query(ctx context.Context, filter ItemFilter) ([]model.ProcessedItem, error)
	// Get returns common.ErrNotFound when the item has not been processed.
	Get(ctx context.Context, itemID string) (*model.ProcessedItem, error)
	Upsert(ctx context.Context, item *model.ProcessedItem) error
	Delete(ctx context.Context, itemIDs []string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// ImageSource provides the images to scan.
type ImageSource interface {
	// RequestAccess fails with common.ErrPermissionDenied when the library cannot be read.
	RequestAccess(ctx context.Context) error
	// ListItems returns the items of a group, or every item when group is empty.
	ListItems(ctx context.Context, group string) ([]model.ImageItem, error)
	// Decode loads pixels for an item. Failures wrap common.ErrDecode.
	Decode(ctx context.Context, item model.ImageItem) (image.Image, error)
	// Delete removes items from the library. Failures wrap common.ErrDelete.
	Delete(ctx context.Context, items []model.ImageItem) error
}

// TextRecognizer runs OCR on an image. Failures wrap common.ErrRecognition.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (*model.Recognition, error)
}

// PatternSource supplies the enabled patterns in precedence order.
type PatternSource interface {
	Enabled() []model.Pattern
}

// IdentifierDetector finds identifiers in normalized text.
type IdentifierDetector interface {
	Find(text string, patterns []model.Pattern) []model.DetectedIdentifier
}

// ReportSummary contains aggregate information about processed items.
type ReportSummary struct {
	DateRange        DateRange
	ByCategory       map[string]CategorySummary
	ByPattern        map[string]int
	TotalItems       int
	TotalIdentifiers int
}

// DateRange represents a time period with start and end dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// CategorySummary contains aggregated statistics for a category.
type CategorySummary struct {
	Items       int
	Identifiers int
}
