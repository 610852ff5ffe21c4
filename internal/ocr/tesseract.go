// Package ocr recognizes text in images with Tesseract.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguages are the Tesseract language packs used when none are configured.
//
//nolint:gochecknoglobals // Static default
var DefaultLanguages = []string{"eng", "jpn"}

// Options configures a Tesseract recognizer.
type Options struct {
	Variables map[string]string
	Logger    *slog.Logger
	Languages []string
	// PageSegMode is a Tesseract PSM value. Zero leaves the engine default.
	PageSegMode int
}

// Tesseract implements service.TextRecognizer. Each call uses its own client,
// so one recognizer can be shared by concurrent callers.
type Tesseract struct {
	clientFactory func() *gosseract.Client
	logger        *slog.Logger
	variables     map[string]string
	languages     []string
	psm           int
}

// NewTesseract creates a recognizer.
func NewTesseract(opts Options) *Tesseract {
	langs := opts.Languages
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tesseract{
		clientFactory: gosseract.NewClient,
		logger:        logger,
		variables:     maps.Clone(opts.Variables),
		languages:     slices.Clone(langs),
		psm:           opts.PageSegMode,
	}
}

// Recognize runs OCR on img and returns its text lines in reading order.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (*model.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", common.ErrRecognition)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", common.ErrRecognition, err)
	}

	c := t.clientFactory()
	defer func() {
		if err := c.Close(); err != nil {
			t.logger.Debug("failed to close tesseract client", "error", err)
		}
	}()

	if err := t.configure(c); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRecognition, err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", common.ErrRecognition, err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("%w: recognize text: %v", common.ErrRecognition, err)
	}

	lines := linesFromBoxes(boxes)
	return &model.Recognition{
		FullText: joinLines(lines),
		Lines:    lines,
	}, nil
}

func (t *Tesseract) configure(c *gosseract.Client) error {
	if err := c.SetLanguage(t.languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}
	if t.psm > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(t.psm)); err != nil {
			return fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(t.variables)) {
		if err := c.SetVariable(gosseract.SettableVariable(k), t.variables[k]); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

// linesFromBoxes keeps non-empty lines in the order tesseract reports them,
// which follows its layout analysis across columns and blocks.
func linesFromBoxes(boxes []gosseract.BoundingBox) []model.RecognizedLine {
	lines := make([]model.RecognizedLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, model.RecognizedLine{
			Text:       text,
			Box:        b.Box,
			Confidence: b.Confidence / 100.0,
		})
	}
	return lines
}

func joinLines(lines []model.RecognizedLine) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}
