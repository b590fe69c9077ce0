package cmd

import (
	"fmt"
	"os"

	"github.com/minelauncher/mcfetch/internal/coordinator"
	"github.com/minelauncher/mcfetch/internal/output"
	"github.com/spf13/cobra"
)

func newVersionsCmd() *cobra.Command {
	var versionType string
	var limit int

	cmd := &cobra.Command{
		Use:   "versions [--type TYPE]",
		Short: "List versions available from the version manifest",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c := coordinator.New(cfg.CoordinatorOptions())
			defer c.Close()
			manifest, err := c.Planner().FetchManifest(cmd.Context())
			if err != nil {
				output.PrintError(fmt.Sprintf("Failed to fetch version manifest: %v", err))
				os.Exit(1)
			}

			output.PrintHeader(fmt.Sprintf("Latest release %s, snapshot %s", manifest.Latest.Release, manifest.Latest.Snapshot))
			versions := manifest.Filter(versionType)
			if limit > 0 && len(versions) > limit {
				versions = versions[:limit]
			}
			for _, v := range versions {
				fmt.Printf("  %s %s %s\n", v.ID, output.FInfo(v.Type), output.FDebug(v.ReleaseTime))
			}
		},
	}

	cmd.Flags().StringVar(&versionType, "type", "", "Only list this type (release, snapshot, old_beta, old_alpha)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of versions to list (0 for all)")
	return cmd
}
