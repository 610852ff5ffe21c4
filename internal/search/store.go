// Package search keeps the web search domains used to look up identifiers.
package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/google/uuid"
)

// Placeholder is replaced by the escaped query in a URL template.
const Placeholder = "{q}"

var (
	// ErrDomainNotFound is returned when no domain has the requested ID or name.
	ErrDomainNotFound = fmt.Errorf("search domain %w", common.ErrNotFound)
	// ErrInvalidTemplate is returned for templates that are not absolute
	// http(s) URLs containing the {q} placeholder.
	ErrInvalidTemplate = errors.New("invalid search url template")
)

// builtInDomains are seeded on first run and merged into older documents by name.
func builtInDomains(newID func() string) []model.SearchDomain {
	return []model.SearchDomain{
		{ID: newID(), Name: "Google", URLTemplate: "https://www.google.com/search?q={q}", Enabled: true, IsBuiltIn: true},
		{ID: newID(), Name: "Bing", URLTemplate: "https://www.bing.com/search?q={q}", IsBuiltIn: true},
		{ID: newID(), Name: "DuckDuckGo", URLTemplate: "https://duckduckgo.com/?q={q}", IsBuiltIn: true},
	}
}

// Store is the persisted list of search domains. At most one domain is
// enabled; that domain is the active one.
type Store struct {
	logger  *slog.Logger
	newID   func() string
	path    string
	domains []model.SearchDomain
	mu      sync.RWMutex
}

// NewStore loads the domain document at path, seeding the built-ins when the
// file does not exist. Built-ins added since the document was written are
// appended.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger, newID: uuid.NewString}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.domains = builtInDomains(s.newID)
		if saveErr := s.save(); saveErr != nil {
			s.logger.Warn("failed to persist seeded search domains", "path", s.path, "error", saveErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read search domains: %w", err)
	}

	if err := json.Unmarshal(data, &s.domains); err != nil {
		return fmt.Errorf("%w: search domains %s: %v", common.ErrDatabaseCorrupted, s.path, err)
	}

	if s.mergeBuiltIns() > 0 {
		if saveErr := s.save(); saveErr != nil {
			s.logger.Warn("failed to persist merged search domains", "path", s.path, "error", saveErr)
		}
	}
	return nil
}

func (s *Store) mergeBuiltIns() int {
	added := 0
	for _, d := range builtInDomains(s.newID) {
		exists := slices.ContainsFunc(s.domains, func(existing model.SearchDomain) bool {
			return existing.Name == d.Name
		})
		if exists {
			continue
		}
		// Merged built-ins never displace the current choice.
		d.Enabled = false
		s.domains = append(s.domains, d)
		added++
	}
	return added
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.domains, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceWrite, err)
	}
	if err := common.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistenceWrite, err)
	}
	return nil
}

// List returns all domains in stored order.
func (s *Store) List() []model.SearchDomain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.domains)
}

// Active returns the enabled domain, falling back to the first built-in.
func (s *Store) Active() (model.SearchDomain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := slices.IndexFunc(s.domains, func(d model.SearchDomain) bool { return d.Enabled }); idx >= 0 {
		return s.domains[idx], true
	}
	if idx := slices.IndexFunc(s.domains, func(d model.SearchDomain) bool { return d.IsBuiltIn }); idx >= 0 {
		return s.domains[idx], true
	}
	return model.SearchDomain{}, false
}

// Find returns a domain by ID or case-insensitive name.
func (s *Store) Find(key string) (model.SearchDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(key); idx >= 0 {
		return s.domains[idx], nil
	}
	return model.SearchDomain{}, fmt.Errorf("%w: %s", ErrDomainNotFound, key)
}

// Add appends a disabled user-defined domain.
func (s *Store) Add(name, template string) (model.SearchDomain, error) {
	if err := ValidateTemplate(template); err != nil {
		return model.SearchDomain{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := model.SearchDomain{ID: s.newID(), Name: name, URLTemplate: template}
	s.domains = append(s.domains, d)
	return d, s.save()
}

// Update changes the name and template of a domain. Unknown keys are ignored.
func (s *Store) Update(key, name, template string) error {
	if err := ValidateTemplate(template); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(key)
	if idx < 0 {
		return nil
	}
	s.domains[idx].Name = name
	s.domains[idx].URLTemplate = template
	return s.save()
}

// Delete removes a user-defined domain. Built-ins are rejected with
// common.ErrBuiltIn; unknown keys are ignored.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(key)
	if idx < 0 {
		return nil
	}
	if s.domains[idx].IsBuiltIn {
		return fmt.Errorf("%w: %s", common.ErrBuiltIn, s.domains[idx].Name)
	}
	s.domains = slices.Delete(s.domains, idx, idx+1)
	return s.save()
}

// Activate makes key the only enabled domain.
func (s *Store) Activate(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(key)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, key)
	}
	for i := range s.domains {
		s.domains[i].Enabled = i == idx
	}
	return s.save()
}

// URL builds the search URL for query on the active domain.
func (s *Store) URL(query string) (string, error) {
	d, ok := s.Active()
	if !ok {
		return "", fmt.Errorf("%w: no active domain", ErrDomainNotFound)
	}
	return BuildURL(d.URLTemplate, query), nil
}

// BuildURL substitutes the escaped query into template.
func BuildURL(template, query string) string {
	return strings.ReplaceAll(template, Placeholder, url.QueryEscape(query))
}

// ValidateTemplate checks that template is an absolute http(s) URL with a
// {q} placeholder.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, Placeholder) {
		return fmt.Errorf("%w: missing %s placeholder", ErrInvalidTemplate, Placeholder)
	}
	u, err := url.Parse(BuildURL(template, "q"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: must be an absolute http(s) url", ErrInvalidTemplate)
	}
	return nil
}

func (s *Store) indexOf(key string) int {
	if idx := slices.IndexFunc(s.domains, func(d model.SearchDomain) bool { return d.ID == key }); idx >= 0 {
		return idx
	}
	return slices.IndexFunc(s.domains, func(d model.SearchDomain) bool { return strings.EqualFold(d.Name, key) })
}
