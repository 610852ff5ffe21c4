// Package model defines the core data structures for the shotscan application.
package model

// Pattern is a named, user-manageable regular expression used to find identifiers.
// The JSON keys match the catalog document written by earlier releases.
type Pattern struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"pattern" yaml:"pattern"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	IsBuiltIn  bool   `json:"is_default" yaml:"is_default"`
}

// EnabledPatterns returns the stable subsequence of patterns that are enabled.
func EnabledPatterns(patterns []Pattern) []Pattern {
	out := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
