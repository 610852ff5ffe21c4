package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/service"
	"github.com/spf13/cobra"
)

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "results",
		Aliases: []string{"result"},
		Short:   "Browse and manage scan results",
	}

	cmd.AddCommand(resultsListCmd())
	cmd.AddCommand(resultsShowCmd())
	cmd.AddCommand(resultsDeleteCmd())
	cmd.AddCommand(resultsClearCmd())

	return cmd
}

func resultsListCmd() *cobra.Command {
	var filter service.ItemFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded items, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := svc.store.Query(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to query results: %w", err)
			}
			if len(items) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No results found."))
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.ItemID,
					item.CreatedAt.Local().Format("2006-01-02 15:04"),
					item.Category,
					truncate(strings.Join(item.Values(), ", "), 60),
				})
			}
			fmt.Print(cli.RenderTable([]string{"ITEM", "CREATED", "CATEGORY", "IDENTIFIERS"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter.Category, "category", "c", "", "Only items in this category")
	cmd.Flags().StringVarP(&filter.Identifier, "identifier", "i", "", "Only items with an identifier containing this text")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "Maximum number of items to show (0 for all)")

	return cmd
}

func resultsShowCmd() *cobra.Command {
	var showText bool

	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one record with its OCR text and search links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			item, err := svc.store.Get(ctx, args[0])
			if errors.Is(err, common.ErrNotFound) {
				return common.NewUserError("no record for "+args[0], err)
			}
			if err != nil {
				return err
			}

			domains, err := openSearchDomains(svc.cfg)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle(item.ItemID))
			fmt.Printf("Created:  %s\n", item.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("Category: %s\n\n", item.Category)

			if len(item.Identifiers) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No identifiers detected."))
			}
			for _, id := range item.Identifiers {
				link, err := domains.URL(id.Value)
				if err != nil {
					return err
				}
				fmt.Printf("  %s  %s\n     %s\n",
					cli.BoldStyle.Render(id.Value),
					cli.SubtleStyle.Render(patternLabel(id)),
					cli.InfoStyle.Render(link))
			}

			if showText {
				fmt.Println()
				fmt.Println(cli.RenderBox("OCR text", item.OCRText))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showText, "text", "t", false, "Also print the recognized text")

	return cmd
}

func patternLabel(id model.DetectedIdentifier) string {
	if id.PatternName == "" {
		return "(unknown pattern)"
	}
	return id.PatternName
}

func resultsDeleteCmd() *cobra.Command {
	var withImages bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <item-id>...",
		Short: "Delete records, and optionally the images they came from",
		Long: `Delete the records for the given items. With --with-images the image files
are removed from the library too. An automatic checkpoint of the records is
taken first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !yes {
				question := fmt.Sprintf("Delete %d record(s)?", len(args))
				if withImages {
					question = fmt.Sprintf("Delete %d record(s) and their image files?", len(args))
				}
				ok, err := confirm(ctx, cmd, question)
				if err != nil || !ok {
					return err
				}
			}
			return deleteResults(ctx, args, withImages)
		},
	}

	cmd.Flags().BoolVar(&withImages, "with-images", false, "Also delete the image files")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func deleteResults(ctx context.Context, itemIDs []string, withImages bool) error {
	svc, cleanup, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	svc.autoCheckpoint(ctx, "delete")

	if withImages {
		items := make([]model.ImageItem, len(itemIDs))
		for i, id := range itemIDs {
			items[i] = model.ImageItem{ID: id}
		}
		if err := svc.library.Delete(ctx, items); err != nil {
			return fmt.Errorf("failed to delete images: %w", err)
		}
	}

	if err := svc.store.Delete(ctx, itemIDs); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Deleted " + strconv.Itoa(len(itemIDs)) + " record(s)"))
	return nil
}

func resultsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record",
		Long:  `Delete all scan results. Images are not touched. An automatic checkpoint is taken first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !yes {
				ok, err := confirm(ctx, cmd, "Delete ALL scan results?")
				if err != nil || !ok {
					return err
				}
			}

			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			svc.autoCheckpoint(ctx, "clear")
			if err := svc.store.DeleteAll(ctx); err != nil {
				return fmt.Errorf("failed to clear results: %w", err)
			}
			fmt.Println(cli.FormatSuccess("All results cleared"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func confirm(ctx context.Context, cmd *cobra.Command, question string) (bool, error) {
	prompter := cli.NewPrompter(cmd.InOrStdin(), os.Stdout)
	ok, err := prompter.Confirm(ctx, question, false)
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Println(cli.SubtleStyle.Render("Cancelled."))
	}
	return ok, nil
}
