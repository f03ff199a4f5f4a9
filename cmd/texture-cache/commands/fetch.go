package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

const progressInterval = 100 * time.Millisecond

func (c *CLI) newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <asset-id>",
		Short: "Download and extract one asset, printing its local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resFlag, err := cmd.Flags().GetString("resolution")
			if err != nil {
				return err
			}
			withMaterial, err := cmd.Flags().GetBool("material")
			if err != nil {
				return err
			}
			quiet, err := cmd.Flags().GetBool("quiet")
			if err != nil {
				return err
			}

			res, err := domain.ParseResolution(resFlag)
			if err != nil {
				return err
			}
			key, err := domain.NewAssetKey(args[0], res)
			if err != nil {
				return err
			}

			a, err := c.open()
			if err != nil {
				return err
			}
			defer c.close(a)

			h, err := a.Assets.Ensure(key)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			ticker := time.NewTicker(progressInterval)
			defer ticker.Stop()

			last := -1
			report := func() {
				if quiet {
					return
				}
				p := a.Assets.Poll(h)
				pct := int(p.Fraction * 100)
				if pct != last {
					last = pct
					_, _ = fmt.Fprintf(errOut, "%s %s %d%%\n", key, p.State, pct)
				}
			}

		wait:
			for {
				select {
				case <-h.Done():
					break wait
				case <-ticker.C:
					report()
				case <-ctx.Done():
					a.Assets.Cancel(h)
					<-h.Done()
					return ctx.Err()
				}
			}

			dir, err := h.Wait(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrCancelled) {
					return fmt.Errorf("acquisition of %s cancelled", key)
				}
				return fmt.Errorf("acquisition of %s failed: %w", key, err)
			}

			if !withMaterial {
				_, _ = fmt.Fprintln(out, dir)
				return nil
			}

			material, err := a.Materials.Build(dir, key.Identifier)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(material)
		},
	}

	cmd.Flags().StringP("resolution", "r", domain.Resolution2K.String(), "Texture resolution (1K, 2K, 4K or 8K)")
	cmd.Flags().BoolP("material", "m", false, "Print the material description as JSON instead of the directory")
	cmd.Flags().BoolP("quiet", "q", false, "Do not report progress")

	return cmd
}
