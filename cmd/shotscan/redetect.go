package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/spf13/cobra"
)

func redetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redetect [item-id]",
		Short: "Re-run identifier detection on stored OCR text",
		Long: `Recompute identifiers from the text already recorded, without running OCR
again. Use this after adding, editing or enabling patterns. With an item ID
only that record is updated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return redetectOne(cmd.Context(), args[0])
			}
			return redetectAll(cmd.Context())
		},
	}
}

func redetectOne(ctx context.Context, itemID string) error {
	svc, cleanup, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	proc, err := svc.processor(nil)
	if err != nil {
		return err
	}

	item, err := proc.RedetectOne(ctx, itemID)
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError("no record for "+itemID, err)
	}
	if err != nil {
		return err
	}

	if len(item.Identifiers) == 0 {
		fmt.Println(cli.FormatInfo(itemID + ": no identifiers"))
		return nil
	}
	fmt.Println(cli.FormatSuccess(itemID + ": " + strings.Join(item.Values(), ", ")))
	return nil
}

func redetectAll(ctx context.Context) error {
	svc, cleanup, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	reporter := cli.NewProgressReporter(os.Stderr, "Re-detecting")
	proc, err := svc.processor(reporter.Observe)
	if err != nil {
		return err
	}

	summary, err := proc.RedetectAll(ctx)
	reporter.Finish()
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatSummary("Re-detection", summary))
	reportDegraded(proc)
	return nil
}
