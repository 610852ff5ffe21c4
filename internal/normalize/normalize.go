// Package normalize canonicalizes raw OCR text before identifier matching.
//
// OCR of screenshots rendered with East Asian fonts frequently yields
// full-width Latin letters and digits, and Thai or other locale digit glyphs.
// Folding them here lets plain ASCII patterns match.
package normalize

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// digitZeros lists the zero code point of each decimal digit block that is
// folded to ASCII. Every block is contiguous: zero..zero+9.
//
//nolint:gochecknoglobals // Static lookup table
var digitZeros = []rune{
	0x0660, // Arabic-Indic
	0x06F0, // Extended Arabic-Indic
	0x0966, // Devanagari
	0x09E6, // Bengali
	0x0A66, // Gurmukhi
	0x0AE6, // Gujarati
	0x0B66, // Oriya
	0x0BE6, // Tamil
	0x0C66, // Telugu
	0x0CE6, // Kannada
	0x0D66, // Malayalam
	0x0E50, // Thai
	0x0ED0, // Lao
	0x0F20, // Tibetan
	0x1040, // Myanmar
	0x17E0, // Khmer
	0x1810, // Mongolian
}

// FoldDigit maps a locale digit to its ASCII counterpart.
// Runes that are not in a known digit block are returned unchanged.
func FoldDigit(r rune) rune {
	if r < 0x0660 {
		return r
	}
	for _, zero := range digitZeros {
		if r >= zero && r <= zero+9 {
			return '0' + (r - zero)
		}
	}
	return r
}

// Transformer returns a fresh transformer that applies width folding
// followed by numeral folding. Transformers are stateful; do not share one
// across goroutines.
func Transformer() transform.Transformer {
	return transform.Chain(width.Narrow, runes.Map(FoldDigit))
}

// Text returns s with full-width characters folded to their half-width forms
// and locale digits folded to ASCII 0-9. It never fails: anything it does not
// recognize passes through unchanged. Text is idempotent.
func Text(s string) string {
	if isASCII(s) {
		return s
	}
	out, _, err := transform.String(Transformer(), s)
	if err != nil {
		// The chain only fails on internal buffer errors; fall back to the input.
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
