package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/shotscan/internal/cli"
	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/search"
	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Manage the web search used to look up identifiers",
		Long: `Manage search domains. A domain is a URL template with a {q} placeholder
that is replaced by the escaped identifier. Exactly one domain is active.`,
		Example: `  # Add and activate a custom search
  shotscan search add "Wiki" "https://en.wikipedia.org/w/index.php?search={q}"
  shotscan search use Wiki

  # Print the lookup URL for an identifier
  shotscan search url ABC-1234`,
	}

	cmd.AddCommand(searchListCmd())
	cmd.AddCommand(searchAddCmd())
	cmd.AddCommand(searchEditCmd())
	cmd.AddCommand(searchUseCmd())
	cmd.AddCommand(searchDeleteCmd())
	cmd.AddCommand(searchURLCmd())

	return cmd
}

func withSearchDomains(run func(*search.Store, []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		domains, err := openSearchDomains(cfg)
		if err != nil {
			return err
		}
		return run(domains, args)
	}
}

func searchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List search domains",
		RunE: withSearchDomains(func(domains *search.Store, _ []string) error {
			rows := [][]string{}
			for _, d := range domains.List() {
				active := ""
				if d.Enabled {
					active = cli.SuccessStyle.Render(cli.SuccessIcon)
				}
				kind := "custom"
				if d.IsBuiltIn {
					kind = "built-in"
				}
				rows = append(rows, []string{active, d.Name, kind, d.URLTemplate})
			}
			fmt.Print(cli.RenderTable([]string{"ACTIVE", "NAME", "TYPE", "TEMPLATE"}, rows))
			return nil
		}),
	}
}

func searchAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <url-template>",
		Short: "Add a search domain",
		Args:  cobra.ExactArgs(2),
		RunE: withSearchDomains(func(domains *search.Store, args []string) error {
			d, err := domains.Add(args[0], args[1])
			if err != nil {
				return invalidTemplate(err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf(`Added %s. Activate it with "shotscan search use %s"`, d.Name, d.Name)))
			return nil
		}),
	}
}

func searchEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <domain> <name> <url-template>",
		Short: "Change a search domain",
		Args:  cobra.ExactArgs(3),
		RunE: withSearchDomains(func(domains *search.Store, args []string) error {
			d, err := domains.Find(args[0])
			if err != nil {
				return common.NewUserError("no search domain "+args[0], err)
			}
			if err := domains.Update(d.ID, args[1], args[2]); err != nil {
				return invalidTemplate(err)
			}
			fmt.Println(cli.FormatSuccess("Updated " + args[1]))
			return nil
		}),
	}
}

func searchUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <domain>",
		Short: "Make a search domain the active one",
		Args:  cobra.ExactArgs(1),
		RunE: withSearchDomains(func(domains *search.Store, args []string) error {
			if err := domains.Activate(args[0]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("no search domain "+args[0], err)
				}
				return err
			}
			fmt.Println(cli.FormatSuccess("Searching with " + args[0]))
			return nil
		}),
	}
}

func searchDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <domain>",
		Short: "Delete a custom search domain",
		Args:  cobra.ExactArgs(1),
		RunE: withSearchDomains(func(domains *search.Store, args []string) error {
			if err := domains.Delete(args[0]); err != nil {
				if errors.Is(err, common.ErrBuiltIn) {
					return common.NewUserError("built-in search domains cannot be deleted", err)
				}
				return err
			}
			fmt.Println(cli.FormatSuccess("Deleted " + args[0]))
			return nil
		}),
	}
}

func searchURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <identifier>...",
		Short: "Print the search URL for identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSearchDomains(func(domains *search.Store, args []string) error {
			link, err := domains.URL(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(link)
			return nil
		}),
	}
}

func invalidTemplate(err error) error {
	if errors.Is(err, search.ErrInvalidTemplate) {
		return common.NewUserError(`URL template must be an http(s) URL containing `+search.Placeholder, err)
	}
	return err
}
