package pattern

import "github.com/Veraticus/shotscan/internal/model"

// builtInPattern is a catalog entry before it is given an ID.
type builtInPattern struct {
	Name       string
	Expression string
	Enabled    bool
}

// builtInCatalog is the ordered set of rules seeded on first run. Order is
// precedence: earlier rules win attribution when two rules find the same value.
//
//nolint:gochecknoglobals // Static rule table
var builtInCatalog = []builtInPattern{
	// Basic prefix/digit shapes
	{Name: "AAA-1234", Expression: `(?i)[A-Z]{2,5}-\d{3,7}`, Enabled: true},
	{Name: "AAA1234", Expression: `(?i)[A-Z]{2,5}\d{3,7}`, Enabled: true},

	// Fixed prefix lengths with and without separators
	{Name: "AB-123", Expression: `(?i)\b[A-Z]{2}-\d{3,4}\b`, Enabled: true},
	{Name: "ABC-12", Expression: `(?i)\b[A-Z]{3}-\d{2,3}\b`, Enabled: true},
	{Name: "ABCD-123", Expression: `(?i)\b[A-Z]{4}-\d{3,4}\b`, Enabled: true},
	{Name: "ABCDE-123", Expression: `(?i)\b[A-Z]{5}-\d{3,4}\b`, Enabled: true},
	{Name: "ABCDEF-123", Expression: `(?i)\b[A-Z]{6}-\d{3,4}\b`, Enabled: true},
	{Name: "ABCDEFG-123", Expression: `(?i)\b[A-Z]{7,}-\d{3,4}\b`, Enabled: true},
	{Name: "ABC-12345", Expression: `(?i)\b[A-Z]{3}-\d{5}\b`, Enabled: true},
	{Name: "ABCD-12345", Expression: `(?i)\b[A-Z]{4}-\d{5}\b`, Enabled: true},
	{Name: "A-1234", Expression: `(?i)\b[A-Z]-\d{4,5}\b`, Enabled: true},
	{Name: "AB123", Expression: `(?i)\b[A-Z]{2}\d{3,4}\b`, Enabled: true},
	{Name: "ABC12", Expression: `(?i)\b[A-Z]{3}\d{2,3}\b`, Enabled: true},
	{Name: "ABCD123", Expression: `(?i)\b[A-Z]{4}\d{3,4}\b`, Enabled: true},
	{Name: "ABCDE123", Expression: `(?i)\b[A-Z]{5}\d{3,4}\b`, Enabled: true},
	{Name: "123ABC", Expression: `(?i)\b\d{3,4}[A-Z]{2,5}\b`, Enabled: true},
	{Name: "123-ABC", Expression: `(?i)\b\d{3,4}-[A-Z]{2,5}\b`, Enabled: true},
	{Name: "1ABC-234", Expression: `(?i)\b\d{1,2}[A-Z]{2,4}-\d{3,4}\b`, Enabled: true},
	{Name: "12ABCD-345", Expression: `(?i)\b\d{2}[A-Z]{3,5}-\d{3,4}\b`, Enabled: true},
	{Name: "A-ABC-123", Expression: `(?i)\b\d{1}-[A-Z]{3,5}-\d{3,4}\b`, Enabled: true},

	// Long numeric tails
	{Name: "ABC-1234567", Expression: `(?i)\b[A-Z]{2,5}-\d{6,8}\b`, Enabled: true},
	{Name: "ABC1234567", Expression: `(?i)\b[A-Z]{2,5}\d{6,8}\b`, Enabled: true},
	{Name: "ABC-PPV-1234567", Expression: `(?i)\b[A-Z]{2,5}-[A-Z]{3}-\d{6,8}\b`, Enabled: true},
	{Name: "ABCPPV-1234567", Expression: `(?i)\b[A-Z]{2,8}-\d{6,8}\b`, Enabled: true},
	{Name: "ABCPPV1234567", Expression: `(?i)\b[A-Z]{5,8}\d{6,8}\b`, Enabled: true},
	{Name: "ABC-PPV1234567", Expression: `(?i)\b[A-Z]{2,5}-[A-Z]{3}\d{6,8}\b`, Enabled: true},

	// Code scanning, off by default
	{Name: "QR/Barcode", Expression: `\b\d{8,20}\b`},
	{Name: "Product Code", Expression: `(?i)\b(?:SKU|PROD|ITEM)[-_]?[A-Z0-9]{4,12}\b`},
	{Name: "Serial Number", Expression: `(?i)\b(?:SN|S/N|SERIAL)[-_:\s]?[A-Z0-9]{6,20}\b`},
	{Name: "License Key", Expression: `\b[A-Z0-9]{4,5}-[A-Z0-9]{4,5}-[A-Z0-9]{4,5}-[A-Z0-9]{4,5}\b`},
	{Name: "Tracking Number", Expression: `(?i)\b(?:[A-Z]{2})?\d{9,30}(?:[A-Z]{2})?\b`},
	{Name: "Order ID", Expression: `(?i)\b(?:ORD|ORDER)[-_]?\d{6,12}\b`},
	{Name: "Reference Number", Expression: `(?i)\b(?:REF|REFERENCE)[-_]?[A-Z0-9]{6,15}\b`},

	// Broad fallbacks, off by default because they are noisy
	{Name: "Generic ID", Expression: `(?i)\b([A-Z0-9]{2,8})[-_\s·・]?([0-9]{2,8})\b`},
	{Name: "Phone", Expression: `\b(?:\+?\d{1,3}[-\s]?)?(?:\d[-\s]?){7,12}\d\b`},
	{Name: "Invoice", Expression: `\b\d{2,4}-\d{3,6}-\d{2,4}\b`},
}

// DefaultPatterns returns the built-in catalog with fresh IDs from newID.
func DefaultPatterns(newID func() string) []model.Pattern {
	patterns := make([]model.Pattern, len(builtInCatalog))
	for i, b := range builtInCatalog {
		patterns[i] = model.Pattern{
			ID:         newID(),
			Name:       b.Name,
			Expression: b.Expression,
			Enabled:    b.Enabled,
			IsBuiltIn:  true,
		}
	}
	return patterns
}
