package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/spf13/cobra"
)

func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the groups (first-level folders) of the library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.library.RequestAccess(ctx); err != nil {
				return err
			}
			groups, err := svc.library.Groups(ctx)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No groups in " + svc.library.Root()))
				return nil
			}

			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				items, err := svc.library.ListItems(ctx, g)
				if err != nil {
					return err
				}
				rows = append(rows, []string{g, strconv.Itoa(len(items)), strconv.Itoa(countScanned(ctx, svc, items))})
			}
			fmt.Print(cli.RenderTable([]string{"GROUP", "IMAGES", "SCANNED"}, rows))
			return nil
		},
	}
}

func countScanned(ctx context.Context, svc *services, items []model.ImageItem) int {
	n := 0
	for _, item := range items {
		if _, err := svc.store.Get(ctx, item.ID); err == nil {
			n++
		}
	}
	return n
}

func importCmd() *cobra.Command {
	var group string
	var scan bool

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Copy images into the library",
		Long: `Copy image files into the library root, or into a group folder. Existing
files are never overwritten. With --scan the new images are scanned right away.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := svc.library.Import(ctx, args, group)
			if len(items) > 0 {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d image(s)", len(items))))
			}
			if err != nil {
				return err
			}
			if !scan {
				return nil
			}

			reporter := cli.NewProgressReporter(os.Stderr, "Scanning")
			proc, err := svc.processor(reporter.Observe)
			if err != nil {
				return err
			}
			summary, err := proc.ProcessAll(ctx, items)
			reporter.Finish()
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSummary("Scan", summary))
			reportDegraded(proc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Group folder to import into")
	cmd.Flags().BoolVar(&scan, "scan", false, "Scan the imported images")

	return cmd
}
