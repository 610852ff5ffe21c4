package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/storage"
	"github.com/spf13/cobra"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage data checkpoints",
		Long: `Create, list, restore, and delete checkpoints.

A checkpoint is a copy of the records, the pattern list and the search
domains. Take one before risky changes and restore it if needed. Deleting or
clearing results takes one automatically.`,
		Example: `  # Create a checkpoint before trying new patterns
  shotscan checkpoint create --tag "before-patterns"

  # List all checkpoints
  shotscan checkpoint list

  # Restore from a checkpoint
  shotscan checkpoint restore before-patterns`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			manager, err := svc.checkpoints()
			if err != nil {
				return err
			}

			info, err := manager.Create(ctx, tag, description)
			if err != nil {
				if errors.Is(err, storage.ErrCheckpointExists) {
					return common.NewUserError("a checkpoint named "+tag+" already exists", err)
				}
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}

			fmt.Printf("%s Created checkpoint %s (%s, %d items)\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(info.ID),
				formatFileSize(info.FileSize),
				info.Items)
			if info.Description != "" {
				fmt.Printf("  Description: %s\n", info.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint tag/name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			manager, err := svc.checkpoints()
			if err != nil {
				return err
			}

			checkpoints, err := manager.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}
			if len(checkpoints) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No checkpoints found."))
				return nil
			}

			rows := make([][]string, 0, len(checkpoints))
			for _, cp := range checkpoints {
				typeLabel := "manual"
				if cp.IsAuto {
					typeLabel = "auto"
				}
				rows = append(rows, []string{
					cp.ID,
					formatRelativeTime(cp.CreatedAt),
					formatFileSize(cp.FileSize),
					strconv.Itoa(cp.Items),
					typeLabel,
				})
			}
			fmt.Print(cli.RenderTable([]string{"NAME", "CREATED", "SIZE", "ITEMS", "TYPE"}, rows))
			return nil
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Replace the current data with a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			checkpointID := args[0]

			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			manager, err := svc.checkpoints()
			if err != nil {
				cleanup()
				return err
			}

			info, err := manager.GetCheckpointInfo(ctx, checkpointID)
			if err != nil {
				cleanup()
				return fmt.Errorf("failed to get checkpoint info: %w", err)
			}

			if !force {
				fmt.Printf("%s This will replace your current data with checkpoint %s.\n",
					cli.WarningStyle.Render(cli.WarningIcon),
					cli.InfoStyle.Render(checkpointID))
				fmt.Printf("  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
				if info.Description != "" {
					fmt.Printf("  Description: %s\n", info.Description)
				}
				ok, err := confirm(ctx, cmd, "Continue?")
				if err != nil || !ok {
					cleanup()
					return err
				}
			}

			// The store must be closed before its files are replaced.
			cleanup()

			if err := manager.Restore(ctx, checkpointID); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}

			fmt.Printf("%s Restored from checkpoint %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(checkpointID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			manager, err := svc.checkpoints()
			if err != nil {
				return err
			}

			if err := manager.Delete(ctx, args[0]); err != nil {
				if errors.Is(err, storage.ErrCheckpointNotFound) {
					return common.NewUserError("no checkpoint "+args[0], err)
				}
				return fmt.Errorf("failed to delete checkpoint: %w", err)
			}

			fmt.Printf("%s Deleted checkpoint %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(args[0]))
			return nil
		},
	}
}
