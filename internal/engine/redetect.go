package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Veraticus/shotscan/internal/model"
)

// RedetectOne re-runs detection on the stored OCR text of one item using the
// currently enabled patterns. No OCR is performed. It returns
// common.ErrNotFound when the item has not been processed.
func (p *Processor) RedetectOne(ctx context.Context, itemID string) (*model.ProcessedItem, error) {
	item, err := p.deps.Store.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	updated := p.redetected(item)
	if err := p.deps.Store.Upsert(ctx, updated); err != nil {
		return updated, fmt.Errorf("failed to save redetected item: %w", err)
	}
	return updated, nil
}

// RedetectAll re-runs detection over every stored item in item ID order. It
// shares the single-run guard, progress, pause and cancel with ProcessAll.
func (p *Processor) RedetectAll(ctx context.Context) (*Summary, error) {
	items, err := p.deps.Store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored items: %w", err)
	}
	slices.SortFunc(items, func(a, b model.ProcessedItem) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})

	r, runCtx, err := p.begin(ctx, len(items))
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting redetection", "items", len(items))
	p.loop(runCtx, r, len(items), func(ctx context.Context, i int) outcome {
		updated := p.redetected(&items[i])
		if err := p.deps.Store.Upsert(ctx, updated); err != nil {
			p.logger.Warn("Failed to persist redetected item", "item", updated.ItemID, "error", err)
			return outcomePersistFailed
		}
		return outcomeProcessed
	})

	summary := r.summary
	return &summary, nil
}

// redetected returns a copy of item with fresh identifiers. OCR text,
// creation time and category are kept.
func (p *Processor) redetected(item *model.ProcessedItem) *model.ProcessedItem {
	return &model.ProcessedItem{
		ItemID:      item.ItemID,
		CreatedAt:   item.CreatedAt,
		OCRText:     item.OCRText,
		Category:    item.Category,
		Identifiers: p.detect(item.OCRText),
	}
}
