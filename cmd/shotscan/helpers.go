package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/shotscan/internal/config"
	"github.com/Veraticus/shotscan/internal/engine"
	"github.com/Veraticus/shotscan/internal/ocr"
	"github.com/Veraticus/shotscan/internal/pattern"
	"github.com/Veraticus/shotscan/internal/search"
	"github.com/Veraticus/shotscan/internal/service"
	"github.com/Veraticus/shotscan/internal/source"
	"github.com/Veraticus/shotscan/internal/storage"
	"github.com/spf13/viper"
)

// recordStore is a record store that can also be snapshotted into a checkpoint.
type recordStore interface {
	service.RecordStore
	storage.Artifact
}

// services bundles the long-lived collaborators built from the resolved config.
type services struct {
	cfg      *config.Config
	store    recordStore
	catalog  *pattern.Catalog
	detector *pattern.Detector
	library  *source.Directory
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// openServices loads config and opens the record store and pattern catalog.
// The returned cleanup closes the store.
func openServices(ctx context.Context) (*services, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close record store", "error", err)
		}
	}

	catalog, err := pattern.NewCatalog(cfg.PatternsPath())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	return &services{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		detector: pattern.NewDetector(pattern.WithMatchTimeout(cfg.Detect.MatchTimeout)),
		library:  source.NewDirectory(cfg.Source.Root, cfg.Source.Extensions, slog.Default()),
	}, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config) (recordStore, error) {
	path := cfg.RecordsPath()
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		store, err := storage.NewSQLiteStore(path, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewFileStore(path, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to open records: %w", err)
		}
		return store, nil
	}
}

func (s *services) recognizer() *ocr.Tesseract {
	return ocr.NewTesseract(ocr.Options{
		Variables:   s.cfg.OCR.Variables,
		Languages:   s.cfg.OCR.Languages,
		PageSegMode: s.cfg.OCR.PSM,
		Logger:      slog.Default(),
	})
}

func (s *services) processor(observer engine.Observer) (*engine.Processor, error) {
	return engine.New(engine.Dependencies{
		Source:     s.library,
		Recognizer: s.recognizer(),
		Store:      s.store,
		Patterns:   s.catalog,
		Detector:   s.detector,
	}, engine.Options{
		Observer:        observer,
		Logger:          slog.Default(),
		DefaultCategory: s.cfg.Scan.DefaultCategory,
	})
}

func (s *services) checkpoints() (*storage.CheckpointManager, error) {
	manager, err := storage.NewCheckpointManager(s.cfg.CheckpointsDir(), s.store,
		s.store,
		storage.FileArtifact(s.cfg.PatternsPath()),
		storage.FileArtifact(s.cfg.SearchDomainsPath()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return manager, nil
}

// autoCheckpoint snapshots the data files before a destructive command. A
// failure is logged and does not stop the command.
func (s *services) autoCheckpoint(ctx context.Context, prefix string) {
	manager, err := s.checkpoints()
	if err == nil {
		err = manager.AutoCheckpoint(ctx, prefix)
	}
	if err != nil {
		slog.Warn("Failed to create automatic checkpoint", "error", err)
	}
}

func openSearchDomains(cfg *config.Config) (*search.Store, error) {
	store, err := search.NewStore(cfg.SearchDomainsPath(), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to load search domains: %w", err)
	}
	return store, nil
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute") + " ago"
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour") + " ago"
	case duration < 48*time.Hour:
		return "yesterday"
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(duration.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
