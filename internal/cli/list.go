package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vmforge/pvmclient/pkg/adapter"
	"github.com/vmforge/pvmclient/pkg/entity"
)

// newListCmd creates and returns a new list command
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list TYPE",
		Short: "List a resource collection",
		Long: `List fetches a resource collection and prints one line per entry:
the UUID and the entry title.

Examples:
  pvmctl list ManagedSystem
  pvmctl list LogicalPartition --xag None`,
		Args: cobra.ExactArgs(1),
		RunE: runList,
	}
	cmd.Flags().String("xag", "", "Comma-separated extended attribute groups")
	return cmd
}

// runList handles the list command execution
func runList(cmd *cobra.Command, args []string) error {
	a, err := newAdapter()
	if err != nil {
		return err
	}
	defer a.Session().Logoff(context.Background())

	xag := parseXAG(cmd)
	if xag == nil {
		// Collections can be large; fetch no attribute groups by default.
		xag = entity.XAG{entity.XAGNone}
	}
	feed, err := a.ReadAll(cmd.Context(), adapter.Ident{RootType: args[0], XAG: xag})
	if err != nil {
		return err
	}

	if jsonOutput {
		type item struct {
			UUID  string `json:"uuid"`
			Title string `json:"title"`
			Self  string `json:"self"`
		}
		items := make([]item, 0, len(feed.Entries))
		for _, e := range feed.Entries {
			items = append(items, item{UUID: e.UUID(), Title: e.Properties["title"], Self: e.SelfLink()})
		}
		printJSON(items)
		return nil
	}

	if len(feed.Entries) == 0 {
		cmd.Printf("No %s resources found\n", args[0])
		return nil
	}
	for _, e := range feed.Entries {
		cmd.Printf("%s  %s\n", e.UUID(), e.Properties["title"])
	}
	return nil
}
