package model

import "time"

// ExportRow is one identifier occurrence in the flattened results view.
type ExportRow struct {
	CreatedAt   time.Time
	ItemID      string
	Value       string
	Category    string
	PatternName string
}
