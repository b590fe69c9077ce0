package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/minelauncher/mcfetch/internal/output"
	"github.com/minelauncher/mcfetch/internal/registry"
	"github.com/minelauncher/mcfetch/internal/scheduler"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newInstallCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "install [VERSION]... [--parallel N]",
		Short: "Download a version with its libraries and assets",
		Long: `Download the client, libraries and assets of one or more versions.

Examples:
  mcfetch install 1.20.1
  mcfetch install 1.20.1 1.8.9 --parallel 2 --source official-first
  mcfetch install 1.20.1 --root ~/games/mc --limit-rate 2097152`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries := lo.Map(lo.Uniq(args), func(id string, _ int) utils.DownloadEntry {
				return utils.DownloadEntry{VersionID: id}
			})
			runInstalls(cmd.Context(), entries, parallel)
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "P", 1, "Number of versions to install at once")
	return cmd
}

func runInstalls(ctx context.Context, entries []utils.DownloadEntry, parallel int) {
	reg := registry.New(cfg.CoordinatorOptions())
	err := scheduler.Run(ctx, reg, entries, scheduler.Options{
		Parallel:   parallel,
		Workers:    cfg.Workers,
		Root:       cfg.RootDir(),
		Preference: cfg.Preference(),
	})
	if err != nil {
		fmt.Println()
		output.PrintError("Encountered failed install(s)")
		os.Exit(1)
	}
}
