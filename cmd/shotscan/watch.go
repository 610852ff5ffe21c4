package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/engine"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/source"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const triggerQueueSize = 8

func watchCmd() *cobra.Command {
	var rescan string
	var skipInitial bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan new images as they arrive",
		Long: `Watch the library for new images and scan them once they stop changing.
An optional cron schedule also rescans the whole library, which picks up
anything the file watcher missed.`,
		Example: `  # Watch and rescan every 10 minutes
  shotscan watch --rescan "@every 10m"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rescan != "" {
				if _, err := cron.ParseStandard(rescan); err != nil {
					return fmt.Errorf("invalid rescan schedule: %w", err)
				}
			}
			return runWatch(cmd.Context(), rescan, !skipInitial)
		},
	}

	cmd.Flags().StringVar(&rescan, "rescan", "", "Cron schedule for full rescans (overrides watch.rescan)")
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "Do not scan the library before watching")

	return cmd
}

func runWatch(ctx context.Context, rescan string, initial bool) error {
	svc, cleanup, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if rescan == "" {
		rescan = svc.cfg.Watch.Rescan
	}

	proc, err := svc.processor(nil)
	if err != nil {
		return err
	}
	if err := svc.library.RequestAccess(ctx); err != nil {
		return err
	}

	watcher, err := source.NewWatcher(svc.library, svc.cfg.Watch.Debounce, slog.Default())
	if err != nil {
		return err
	}

	// Every batch goes through the queue so only one runs at a time.
	queue := newScanQueue(triggerQueueSize)
	enqueueAll := func(ctx context.Context, reason string) {
		items, err := svc.library.ListItems(ctx, "")
		if err != nil {
			common.LogError(err, "Failed to list library", common.Fields{"reason": reason, "root": svc.library.Root()})
			return
		}
		if !queue.offer(items) {
			slog.Warn("Scan queue full, skipping rescan", "reason", reason)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watcher.Run(gctx)
	})

	g.Go(func() error {
		for paths := range watcher.Changes() {
			items := make([]model.ImageItem, 0, len(paths))
			for _, path := range paths {
				item, err := svc.library.Item(path)
				if err != nil {
					slog.Debug("Ignoring changed file", "path", path, "error", err)
					continue
				}
				items = append(items, item)
			}
			if len(items) == 0 {
				continue
			}
			if !queue.push(gctx, items) {
				return nil
			}
		}
		return nil
	})

	if rescan != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(rescan, func() { enqueueAll(gctx, "schedule") }); err != nil {
			return fmt.Errorf("invalid rescan schedule: %w", err)
		}
		scheduler.Start()
		g.Go(func() error {
			<-gctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case items := <-queue.batches():
				summary, err := proc.ProcessAll(gctx, items)
				if err != nil {
					return err
				}
				logBatch(summary)
				if proc.Status().Degraded {
					slog.Warn("Results are not being saved, check the data directory")
				}
			}
		}
	})

	if initial {
		enqueueAll(gctx, "startup")
	}

	fmt.Println(cli.FormatInfo(fmt.Sprintf("Watching %s (Ctrl-C to stop)", svc.library.Root())))
	if rescan != "" {
		fmt.Println(cli.FormatInfo("Full rescan schedule: " + rescan))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println(cli.FormatSuccess("Stopped watching"))
	return nil
}

// scanQueue holds pending batches. Full rescans are dropped when it is full,
// since a later rescan covers them; file changes wait for room.
type scanQueue struct {
	ch chan []model.ImageItem
}

func newScanQueue(size int) *scanQueue {
	return &scanQueue{ch: make(chan []model.ImageItem, size)}
}

// offer queues items without blocking and reports whether they were queued.
func (q *scanQueue) offer(items []model.ImageItem) bool {
	select {
	case q.ch <- items:
		return true
	default:
		return false
	}
}

// push waits for room. It returns false when ctx ends first.
func (q *scanQueue) push(ctx context.Context, items []model.ImageItem) bool {
	select {
	case q.ch <- items:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *scanQueue) batches() <-chan []model.ImageItem {
	return q.ch
}

func logBatch(s *engine.Summary) {
	if s.Total == s.Skipped {
		slog.Debug("Nothing new to scan", "items", s.Total)
		return
	}
	slog.Info("Scanned new images",
		"processed", s.Processed,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"not_saved", s.PersistenceFailures,
		"duration", s.Duration)
}
