package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "List one page of assets matching a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := cmd.Flags().GetInt("page")
			if err != nil {
				return err
			}

			var query string
			if len(args) == 1 {
				query = args[0]
			}

			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.close(a)

			assets, err := a.Browser.Search(cmd.Context(), query, page)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tLINK\tTHUMBNAIL")
			for _, asset := range assets {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", asset.Identifier, asset.Link, asset.ThumbnailURL)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntP("page", "p", 0, "Zero-based page number")

	return cmd
}
