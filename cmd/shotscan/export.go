package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/export"
	"github.com/Veraticus/shotscan/internal/service"
	"github.com/Veraticus/shotscan/internal/sheets"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export identifiers to CSV or Google Sheets",
		Long: `Export one row per detected identifier, newest items first, with the item,
its creation time, category and the pattern that found it.`,
		Example: `  # Write a CSV file
  shotscan export csv -o identifiers.csv

  # Authorize once, then export to Google Sheets
  shotscan export sheets-auth
  shotscan export sheets`,
	}

	cmd.AddCommand(exportCSVCmd())
	cmd.AddCommand(exportSheetsCmd())
	cmd.AddCommand(exportSheetsAuthCmd())

	return cmd
}

func addFilterFlags(cmd *cobra.Command, filter *service.ItemFilter) {
	cmd.Flags().StringVarP(&filter.Category, "category", "c", "", "Only items in this category")
	cmd.Flags().StringVarP(&filter.Identifier, "identifier", "i", "", "Only items with an identifier containing this text")
}

func exportCSVCmd() *cobra.Command {
	var filter service.ItemFilter
	var output string

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Export identifiers as CSV",
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
			rows := export.Rows(items)

			if output == "" || output == "-" {
				return export.WriteCSV(os.Stdout, rows)
			}

			var buf bytes.Buffer
			if err := export.WriteCSV(&buf, rows); err != nil {
				return err
			}
			if err := common.WriteFileAtomic(output, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Exported %d identifiers from %d items to %s", len(rows), len(items), output)))
			return nil
		},
	}

	addFilterFlags(cmd, &filter)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func exportSheetsCmd() *cobra.Command {
	var filter service.ItemFilter

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Export identifiers to a Google spreadsheet",
		Long: `Write a summary and one row per identifier to a Google spreadsheet.
Credentials come from the sheets section of the config, GOOGLE_SHEETS_*
environment variables, or a token saved by "export sheets-auth".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sheetsConfig, err := svc.cfg.SheetsConfig()
			if err != nil {
				return common.NewUserError(`Google Sheets is not configured, run "shotscan export sheets-auth" first`, err)
			}

			items, err := svc.store.Query(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to query results: %w", err)
			}

			writer, err := sheets.NewWriter(ctx, *sheetsConfig, slog.Default())
			if err != nil {
				return err
			}
			spreadsheetID, err := writer.Write(ctx, export.Rows(items), export.Summarize(items))
			if err != nil {
				return fmt.Errorf("failed to export to Google Sheets: %w", err)
			}

			fmt.Println(cli.FormatSuccess("Exported to Google Sheets"))
			fmt.Println(cli.FormatInfo("https://docs.google.com/spreadsheets/d/" + spreadsheetID))
			return nil
		},
	}

	addFilterFlags(cmd, &filter)

	return cmd
}

func exportSheetsAuthCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize Google Sheets access in the browser",
		Long: `Run the OAuth2 browser flow with the configured client ID and secret and
save the token next to the other data files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			clientID := cfg.Sheets.ClientID
			if clientID == "" {
				clientID = os.Getenv("GOOGLE_SHEETS_CLIENT_ID")
			}
			clientSecret := cfg.Sheets.ClientSecret
			if clientSecret == "" {
				clientSecret = os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")
			}
			if clientID == "" || clientSecret == "" {
				return common.NewUserError("set sheets.client_id and sheets.client_secret (or GOOGLE_SHEETS_CLIENT_ID and GOOGLE_SHEETS_CLIENT_SECRET)",
					fmt.Errorf("%w: OAuth2 client credentials", common.ErrMissingConfig))
			}

			_, err = sheets.Authenticate(cmd.Context(), sheets.OAuth2Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenFile:    cfg.TokenFile(),
				ListenAddr:   listen,
			}, func(url string) {
				fmt.Println(cli.FormatInfo("Open this URL in your browser to authorize shotscan:"))
				fmt.Println("  " + url)
			}, slog.Default())
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess("Authorized. Token saved to " + cfg.TokenFile()))
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Callback address (default a random loopback port)")

	return cmd
}
