package pattern

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds how long one expression may run against one text.
const DefaultMatchTimeout = 2 * time.Second

// Detector finds identifiers in text using an ordered list of patterns.
// Compiled expressions are cached, so a Detector should be reused.
type Detector struct {
	logger   *slog.Logger
	compiled map[string]*compiled
	timeout  time.Duration
	mu       sync.Mutex
}

// compiled holds either a ready expression or the error that prevented it.
type compiled struct {
	re  *regexp2.Regexp
	err error
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithMatchTimeout sets the per-expression match timeout. Non-positive values
// disable the timeout.
func WithMatchTimeout(d time.Duration) DetectorOption {
	return func(det *Detector) { det.timeout = d }
}

// WithDetectorLogger sets the logger used for skipped expressions.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(det *Detector) { det.logger = logger }
}

// NewDetector creates a detector.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		logger:   slog.Default(),
		compiled: make(map[string]*compiled),
		timeout:  DefaultMatchTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Find applies the enabled patterns in order and returns every distinct match.
// A value found by more than one pattern is attributed to the first.
// Patterns that fail to compile or time out contribute nothing.
func (d *Detector) Find(text string, patterns []model.Pattern) []model.DetectedIdentifier {
	var found []model.DetectedIdentifier
	seen := make(map[string]struct{})

	for _, p := range patterns {
		if !p.Enabled || p.Expression == "" {
			continue
		}

		values, err := d.Matches(p.Expression, text)
		if err != nil {
			d.logger.Debug("pattern skipped",
				"pattern_id", p.ID,
				"pattern_name", p.Name,
				"error", err)
			continue
		}

		for _, v := range values {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			found = append(found, model.DetectedIdentifier{
				Value:       v,
				PatternID:   p.ID,
				PatternName: p.Name,
			})
		}
	}

	return found
}

// Matches returns every non-empty, non-overlapping match of expression in text,
// left to right. Duplicates are kept.
func (d *Detector) Matches(expression, text string) ([]string, error) {
	re, err := d.compile(expression)
	if err != nil {
		return nil, err
	}

	var values []string
	m, err := re.FindStringMatch(text)
	for m != nil && err == nil {
		if m.Length > 0 {
			values = append(values, m.String())
		}
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", expression, err)
	}
	return values, nil
}

// Validate reports whether expression compiles.
func (d *Detector) Validate(expression string) error {
	_, err := d.compile(expression)
	return err
}

// Validate reports whether expression compiles, without caching the result.
func Validate(expression string) error {
	if expression == "" {
		return fmt.Errorf("%w: expression is empty", common.ErrInvalidExpression)
	}
	if _, err := regexp2.Compile(expression, regexp2.IgnoreCase); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidExpression, err)
	}
	return nil
}

func (d *Detector) compile(expression string) (*regexp2.Regexp, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.compiled[expression]; ok {
		return c.re, c.err
	}

	c := &compiled{}
	re, err := regexp2.Compile(expression, regexp2.IgnoreCase)
	switch {
	case expression == "":
		c.err = fmt.Errorf("%w: expression is empty", common.ErrInvalidExpression)
	case err != nil:
		c.err = fmt.Errorf("%w: %v", common.ErrInvalidExpression, err)
	default:
		if d.timeout > 0 {
			re.MatchTimeout = d.timeout
		}
		c.re = re
	}
	d.compiled[expression] = c
	return c.re, c.err
}
