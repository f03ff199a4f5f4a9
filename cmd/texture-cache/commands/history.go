package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent acquisitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}

			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.close(a)

			records, err := a.Store.ListAcquisitions(limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "FINISHED\tASSET\tRES\tOUTCOME\tBYTES\tDURATION\tERROR")
			for _, r := range records {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					r.FinishedAt.Local().Format(time.DateTime),
					r.Identifier,
					r.Resolution,
					r.Outcome,
					r.Bytes,
					r.Duration().Round(time.Millisecond),
					r.Error,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of records")

	return cmd
}
