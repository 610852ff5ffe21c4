package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/engine"
	"github.com/Veraticus/shotscan/internal/tui"
	"github.com/Veraticus/shotscan/internal/tui/themes"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func scanCmd() *cobra.Command {
	var group string
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read text from images and record the identifiers found",
		Long: `Run OCR over every image in the library (or one group) and record the
identifiers the enabled patterns find. Images that already have a record are
skipped, so an interrupted scan can simply be run again.`,
		Example: `  # Scan the whole library
  shotscan scan

  # Scan one album without the interactive monitor
  shotscan scan --group Screenshots --no-tui`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interactive := !noTUI && term.IsTerminal(int(os.Stdout.Fd()))
			return runScan(cmd.Context(), group, interactive)
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Only scan this group (first-level folder)")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Show a plain progress bar instead of the interactive monitor")

	return cmd
}

func runScan(ctx context.Context, group string, interactive bool) error {
	svc, cleanup, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var monitor *tui.Monitor
	var reporter *cli.ProgressReporter
	var observer engine.Observer
	if interactive {
		monitor = tui.NewMonitor(themes.GetTheme(svc.cfg.TUI.Theme))
		observer = monitor.Observe
	} else {
		reporter = cli.NewProgressReporter(os.Stderr, "Scanning")
		observer = reporter.Observe
	}

	proc, err := svc.processor(observer)
	if err != nil {
		return err
	}

	if err := proc.Load(ctx, group); err != nil {
		return common.NewUserError("could not read the image library at "+svc.library.Root(), err)
	}
	items := proc.Items()
	if len(items) == 0 {
		fmt.Println(cli.FormatInfo("No images found."))
		return nil
	}

	var summary *engine.Summary
	if interactive {
		if err := proc.Start(ctx, items); err != nil {
			return err
		}
		summary, err = monitor.Run(ctx, proc, cli.ScanIcon+" Scanning "+describeGroup(group))
		if err != nil {
			return err
		}
	} else {
		handler := cli.NewInterruptHandler(os.Stderr)
		runCtx := handler.HandleInterrupts(ctx, "shotscan scan")
		defer handler.Stop()

		summary, err = proc.ProcessAll(runCtx, items)
		reporter.Finish()
		if err != nil {
			return err
		}
		fmt.Println(cli.FormatSummary("Scan", summary))
	}

	reportDegraded(proc)
	if interactive && summary.Cancelled {
		fmt.Println(cli.FormatInfo("Results so far are saved. Resume with: shotscan scan"))
	}
	return nil
}

func reportDegraded(proc *engine.Processor) {
	if proc.Status().Degraded {
		fmt.Println(cli.FormatWarning("Some results could not be written to disk and were lost. Check the data directory and run again."))
	}
}

func describeGroup(group string) string {
	if group == "" {
		return "library"
	}
	return group
}
