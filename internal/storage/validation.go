// Package storage provides the data persistence layer for the shotscan application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/shotscan/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidItem  = errors.New("invalid processed item")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateItem checks that a processed item is complete enough to persist.
func validateItem(item *model.ProcessedItem) error {
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	for i, id := range item.Identifiers {
		if id.Value == "" {
			return fmt.Errorf("%w: identifier %d of %s is empty", ErrInvalidItem, i, item.ItemID)
		}
	}
	return nil
}

// validateIDs rejects blank item IDs in a batch.
func validateIDs(ids []string) error {
	for i, id := range ids {
		if err := validateString(id, fmt.Sprintf("itemIDs[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}
