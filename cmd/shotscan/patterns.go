package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/normalize"
	"github.com/Veraticus/shotscan/internal/pattern"
	"github.com/spf13/cobra"
)

const minIDPrefix = 6

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Manage the patterns used to find identifiers",
		Long: `Manage the ordered list of regular expressions used to find identifiers.
Patterns are matched case-insensitively in list order; when two patterns find
the same value, the earlier one is credited. Built-in patterns can be disabled
but not deleted. Run "shotscan redetect" after changing patterns to update
existing results.`,
		Example: `  # Add a pattern for order numbers
  shotscan patterns add "Order" 'ORD-\d{6}'

  # Try a pattern before adding it
  shotscan patterns test --expr '[A-Z]{3}-\d{4}' "see ABC-1234 here"`,
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsAddCmd())
	cmd.AddCommand(patternsEditCmd())
	cmd.AddCommand(patternsDeleteCmd())
	cmd.AddCommand(patternsEnableCmd(true))
	cmd.AddCommand(patternsEnableCmd(false))
	cmd.AddCommand(patternsMoveCmd())
	cmd.AddCommand(patternsTestCmd())
	cmd.AddCommand(patternsExportCmd())
	cmd.AddCommand(patternsImportCmd())

	return cmd
}

// findPattern resolves a pattern by ID, unique ID prefix or case-insensitive name.
func findPattern(catalog *pattern.Catalog, key string) (model.Pattern, error) {
	var byPrefix, byName []model.Pattern
	for _, p := range catalog.List() {
		switch {
		case p.ID == key:
			return p, nil
		case len(key) >= minIDPrefix && strings.HasPrefix(p.ID, key):
			byPrefix = append(byPrefix, p)
		case strings.EqualFold(p.Name, key):
			byName = append(byName, p)
		}
	}

	for _, matches := range [][]model.Pattern{byPrefix, byName} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return model.Pattern{}, common.NewUserError(
				fmt.Sprintf("%q matches %d patterns, use the ID", key, len(matches)), nil)
		}
	}
	return model.Pattern{}, common.NewUserError("no pattern "+key, pattern.ErrPatternNotFound)
}

func patternsListCmd() *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patterns in precedence order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			patterns := svc.catalog.List()
			rows := make([][]string, 0, len(patterns))
			for i, p := range patterns {
				if enabledOnly && !p.Enabled {
					continue
				}
				state := cli.SuccessStyle.Render("on")
				if !p.Enabled {
					state = cli.SubtleStyle.Render("off")
				}
				kind := "custom"
				if p.IsBuiltIn {
					kind = "built-in"
				}
				expression := p.Expression
				if err := svc.detector.Validate(expression); err != nil {
					expression = cli.ErrorStyle.Render(expression + " (invalid)")
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					p.ID[:min(len(p.ID), 8)],
					p.Name,
					state,
					kind,
					expression,
				})
			}

			fmt.Print(cli.RenderTable([]string{"#", "ID", "NAME", "ENABLED", "TYPE", "EXPRESSION"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only show enabled patterns")

	return cmd
}

func patternsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <expression>",
		Short: "Add a custom pattern at the end of the list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := svc.catalog.Add(args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to save pattern: %w", err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Added pattern %s (%s)", p.Name, p.ID)))
			warnInvalid(svc.detector, p.Expression)
			return nil
		},
	}
}

func patternsEditCmd() *cobra.Command {
	var name, expression string

	cmd := &cobra.Command{
		Use:   "edit <pattern>",
		Short: "Change a pattern's name or expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && expression == "" {
				return errors.New("nothing to change: pass --name and/or --expr")
			}

			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := findPattern(svc.catalog, args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = p.Name
			}
			if expression == "" {
				expression = p.Expression
			}
			if err := svc.catalog.Update(p.ID, name, expression); err != nil {
				return fmt.Errorf("failed to save pattern: %w", err)
			}
			fmt.Println(cli.FormatSuccess("Updated pattern " + name))
			warnInvalid(svc.detector, expression)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&expression, "expr", "", "New regular expression")

	return cmd
}

func patternsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pattern>",
		Short: "Delete a custom pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := findPattern(svc.catalog, args[0])
			if err != nil {
				return err
			}
			if err := svc.catalog.Delete(p.ID); err != nil {
				if errors.Is(err, common.ErrBuiltIn) {
					return common.NewUserError("built-in patterns can only be disabled", err)
				}
				return fmt.Errorf("failed to delete pattern: %w", err)
			}
			fmt.Println(cli.FormatSuccess("Deleted pattern " + p.Name))
			return nil
		},
	}
}

func patternsEnableCmd(enabled bool) *cobra.Command {
	use, verb := "enable", "Enabled"
	if !enabled {
		use, verb = "disable", "Disabled"
	}

	return &cobra.Command{
		Use:   use + " <pattern>...",
		Short: verb + " patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			for _, key := range args {
				p, err := findPattern(svc.catalog, key)
				if err != nil {
					return err
				}
				if err := svc.catalog.SetEnabled(p.ID, enabled); err != nil {
					return fmt.Errorf("failed to save pattern: %w", err)
				}
				fmt.Println(cli.FormatSuccess(verb + " " + p.Name))
			}
			fmt.Println(cli.FormatInfo(`Run "shotscan redetect" to update existing results.`))
			return nil
		},
	}
}

func patternsMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <pattern> <position>",
		Short: "Move a pattern to a 1-based position in the list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[1])
			if err != nil || position < 1 {
				return fmt.Errorf("invalid position %q", args[1])
			}

			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := findPattern(svc.catalog, args[0])
			if err != nil {
				return err
			}
			if err := svc.catalog.Move(p.ID, position-1); err != nil {
				return fmt.Errorf("failed to move pattern: %w", err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Moved %s to position %d", p.Name, position)))
			return nil
		},
	}
}

func patternsTestCmd() *cobra.Command {
	var key, expression string

	cmd := &cobra.Command{
		Use:   "test <text>",
		Short: "Show what would be found in a piece of text",
		Long: `Run detection on text. By default every enabled pattern is used; --pattern
tests one stored pattern and --expr tests an expression that is not saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			text := normalize.Text(args[0])
			if text != args[0] {
				fmt.Println(cli.SubtleStyle.Render("Normalized: " + text))
			}

			if key != "" {
				p, err := findPattern(svc.catalog, key)
				if err != nil {
					return err
				}
				expression = p.Expression
			}
			if expression != "" {
				values, err := svc.detector.Matches(expression, text)
				if err != nil {
					return common.NewUserError("expression does not compile", err)
				}
				printValues(values)
				return nil
			}

			found := svc.detector.Find(text, svc.catalog.Enabled())
			if len(found) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No identifiers found."))
				return nil
			}
			rows := make([][]string, len(found))
			for i, id := range found {
				rows[i] = []string{id.Value, patternLabel(id)}
			}
			fmt.Print(cli.RenderTable([]string{"IDENTIFIER", "PATTERN"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "pattern", "p", "", "Test only this stored pattern")
	cmd.Flags().StringVarP(&expression, "expr", "e", "", "Test an unsaved expression")
	cmd.MarkFlagsMutuallyExclusive("pattern", "expr")

	return cmd
}

func printValues(values []string) {
	if len(values) == 0 {
		fmt.Println(cli.SubtleStyle.Render("No matches."))
		return
	}
	for _, v := range values {
		fmt.Println("  " + cli.BoldStyle.Render(v))
	}
}

func warnInvalid(detector *pattern.Detector, expression string) {
	if err := detector.Validate(expression); err != nil {
		fmt.Println(cli.FormatWarning("The expression does not compile and will match nothing until fixed: " + err.Error()))
	}
}

func patternsExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the pattern list as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if output == "" || output == "-" {
				return svc.catalog.Export(os.Stdout)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := svc.catalog.Export(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Println(cli.FormatSuccess("Exported patterns to " + output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func patternsImportCmd() *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge patterns from a YAML file",
		Long: `Merge patterns from a YAML file written by "patterns export". Patterns with
a known ID are updated; others are added. With --replace, custom patterns not
in the file are removed. Built-in patterns are never removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			result, err := svc.catalog.Import(f, replace)
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported patterns: %d added, %d updated, %d removed",
				result.Added, result.Updated, result.Removed)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Remove custom patterns missing from the file")

	return cmd
}
