package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove stale partial downloads and expired history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.close(a)

			result, err := a.Maintenance.RunOnce()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale entries, %d history records\n",
				result.StaleEntries, result.HistoryEntries)
			return err
		},
	}
}
