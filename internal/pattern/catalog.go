// Package pattern manages the identifier pattern catalog and detects identifiers in text.
package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrPatternNotFound is returned by Get when no pattern has the requested ID.
var ErrPatternNotFound = fmt.Errorf("pattern %w", common.ErrNotFound)

// Catalog is the ordered, persisted set of patterns. List order is precedence
// order for detection. It is safe for concurrent use.
type Catalog struct {
	logger   *slog.Logger
	newID    func() string
	path     string
	patterns []model.Pattern
	mu       sync.RWMutex
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = logger }
}

// WithIDGenerator overrides how new pattern IDs are generated.
func WithIDGenerator(fn func() string) CatalogOption {
	return func(c *Catalog) { c.newID = fn }
}

// NewCatalog loads the catalog document at path. When the file does not exist
// the built-in catalog is seeded and written so IDs stay stable across runs.
func NewCatalog(path string, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.patterns = DefaultPatterns(c.newID)
		if saveErr := c.save(); saveErr != nil {
			c.logger.Warn("failed to persist seeded pattern catalog", "path", c.path, "error", saveErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read pattern catalog: %w", err)
	}

	var patterns []model.Pattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return fmt.Errorf("%w: pattern catalog %s: %v", common.ErrDatabaseCorrupted, c.path, err)
	}
	c.patterns = patterns
	return nil
}

// save writes the whole catalog. Callers hold the write lock.
func (c *Catalog) save() error {
	data, err := json.MarshalIndent(c.patterns, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceWrite, err)
	}
	if err := common.WriteFileAtomic(c.path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceWrite, err)
	}
	return nil
}

// Path returns the location of the catalog document.
func (c *Catalog) Path() string {
	return c.path
}

// List returns all patterns in stored order.
func (c *Catalog) List() []model.Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.patterns)
}

// Enabled returns the enabled patterns in stored order.
func (c *Catalog) Enabled() []model.Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.EnabledPatterns(c.patterns)
}

// Get returns the pattern with the given ID.
func (c *Catalog) Get(id string) (model.Pattern, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexOf(id); idx >= 0 {
		return c.patterns[idx], nil
	}
	return model.Pattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
}

// Add appends a new enabled, user-defined pattern. The expression is stored
// as given even when it does not compile, so it can be fixed later.
func (c *Catalog) Add(name, expression string) (model.Pattern, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := model.Pattern{
		ID:         c.newID(),
		Name:       name,
		Expression: expression,
		Enabled:    true,
	}
	c.patterns = append(c.patterns, p)
	return p, c.save()
}

// Update changes the name and expression of a pattern. Unknown IDs are ignored.
func (c *Catalog) Update(id, name, expression string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return nil
	}
	c.patterns[idx].Name = name
	c.patterns[idx].Expression = expression
	return c.save()
}

// Delete removes a user-defined pattern. Built-in patterns are rejected with
// common.ErrBuiltIn; unknown IDs are ignored.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return nil
	}
	if c.patterns[idx].IsBuiltIn {
		return fmt.Errorf("%w: %s", common.ErrBuiltIn, c.patterns[idx].Name)
	}
	c.patterns = slices.Delete(c.patterns, idx, idx+1)
	return c.save()
}

// SetEnabled toggles a pattern. Unknown IDs are ignored.
func (c *Catalog) SetEnabled(id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return nil
	}
	c.patterns[idx].Enabled = enabled
	return c.save()
}

// Move places a pattern at index, shifting the others. The index is clamped
// to the list bounds.
func (c *Catalog) Move(id string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}

	p := c.patterns[idx]
	c.patterns = slices.Delete(c.patterns, idx, idx+1)
	index = max(0, min(index, len(c.patterns)))
	c.patterns = slices.Insert(c.patterns, index, p)
	return c.save()
}

// catalogDocument is the YAML shape used for import and export.
type catalogDocument struct {
	Patterns []model.Pattern `yaml:"patterns"`
}

// Export writes the catalog as YAML.
func (c *Catalog) Export(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogDocument{Patterns: c.List()}); err != nil {
		return fmt.Errorf("failed to encode patterns: %w", err)
	}
	return enc.Close()
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Added   int
	Updated int
	Removed int
}

// Import merges patterns from a YAML document. Patterns whose ID already exists
// are updated in place; others are appended as user-defined patterns. With
// replace set, user-defined patterns absent from the document are removed.
// Built-in patterns are never removed and never created by an import.
func (c *Catalog) Import(r io.Reader, replace bool) (ImportResult, error) {
	var doc catalogDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return ImportResult{}, fmt.Errorf("failed to decode patterns: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var result ImportResult
	seen := make(map[string]bool, len(doc.Patterns))

	for _, in := range doc.Patterns {
		if in.ID != "" {
			if idx := c.indexOf(in.ID); idx >= 0 {
				c.patterns[idx].Name = in.Name
				c.patterns[idx].Expression = in.Expression
				c.patterns[idx].Enabled = in.Enabled
				seen[in.ID] = true
				result.Updated++
				continue
			}
		}

		p := model.Pattern{
			ID:         in.ID,
			Name:       in.Name,
			Expression: in.Expression,
			Enabled:    in.Enabled,
		}
		if p.ID == "" || seen[p.ID] {
			p.ID = c.newID()
		}
		seen[p.ID] = true
		c.patterns = append(c.patterns, p)
		result.Added++
	}

	if replace {
		before := len(c.patterns)
		c.patterns = slices.DeleteFunc(c.patterns, func(p model.Pattern) bool {
			return !p.IsBuiltIn && !seen[p.ID]
		})
		result.Removed = before - len(c.patterns)
	}

	return result, c.save()
}

func (c *Catalog) indexOf(id string) int {
	return slices.IndexFunc(c.patterns, func(p model.Pattern) bool { return p.ID == id })
}
