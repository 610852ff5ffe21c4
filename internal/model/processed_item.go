package model

import (
	"fmt"
	"time"
)

// DefaultCategory is the bucket used when an item has no source grouping.
const DefaultCategory = "Unknown"

// DetectedIdentifier is a single matched identifier.
// PatternID and PatternName record which rule found the value first.
type DetectedIdentifier struct {
	Value       string `json:"value"`
	PatternID   string `json:"pattern_id,omitempty"`
	PatternName string `json:"pattern_name,omitempty"`
}

// ProcessedItem is the persisted result of running OCR and detection on one image.
type ProcessedItem struct {
	CreatedAt   time.Time            `json:"created_at"`
	ItemID      string               `json:"item_id"`
	OCRText     string               `json:"ocr_text"`
	Category    string               `json:"category"`
	Identifiers []DetectedIdentifier `json:"identifiers"`
}

// Validate ensures the item can be stored.
func (p *ProcessedItem) Validate() error {
	if p.ItemID == "" {
		return fmt.Errorf("item id is required")
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created at is required for item %s", p.ItemID)
	}
	return nil
}

// Values returns the identifier values in detection order.
func (p *ProcessedItem) Values() []string {
	values := make([]string, len(p.Identifiers))
	for i, id := range p.Identifiers {
		values[i] = id.Value
	}
	return values
}

// HasIdentifier reports whether value was detected in this item.
func (p *ProcessedItem) HasIdentifier(value string) bool {
	for _, id := range p.Identifiers {
		if id.Value == value {
			return true
		}
	}
	return false
}
