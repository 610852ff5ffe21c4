package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/shotscan/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		str     string
		wantErr bool
	}{
		{name: "valid string", str: "IMG_0001.png"},
		{name: "empty string", str: "", wantErr: true},
		{name: "whitespace only", str: " \t\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, "itemID")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmptyString) {
				t.Errorf("validateString() error = %v, want ErrEmptyString", err)
			}
		})
	}
}

func TestValidateItem(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		item    *model.ProcessedItem
		wantErr error
		name    string
	}{
		{
			name: "valid item",
			item: &model.ProcessedItem{
				ItemID:      "a.png",
				CreatedAt:   now,
				Identifiers: []model.DetectedIdentifier{{Value: "ABC-123"}},
			},
		},
		{
			name:    "nil item",
			item:    nil,
			wantErr: ErrNilParameter,
		},
		{
			name:    "missing id",
			item:    &model.ProcessedItem{CreatedAt: now},
			wantErr: ErrInvalidItem,
		},
		{
			name:    "missing created at",
			item:    &model.ProcessedItem{ItemID: "a.png"},
			wantErr: ErrInvalidItem,
		},
		{
			name: "empty identifier value",
			item: &model.ProcessedItem{
				ItemID:      "a.png",
				CreatedAt:   now,
				Identifiers: []model.DetectedIdentifier{{Value: ""}},
			},
			wantErr: ErrInvalidItem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateItem(tt.item)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateItem() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateItem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	if err := validateIDs([]string{"a", "b"}); err != nil {
		t.Errorf("validateIDs() unexpected error = %v", err)
	}
	if err := validateIDs([]string{"a", " "}); !errors.Is(err, ErrEmptyString) {
		t.Errorf("validateIDs() error = %v, want ErrEmptyString", err)
	}
}
