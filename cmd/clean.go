package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/minelauncher/mcfetch/internal/output"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [VERSION]",
		Short: "Remove partial downloads left by interrupted installs",
		Long: `Remove .part files below the game directory. With a version, only
that version's directory is cleaned; shared libraries and assets are kept.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := cfg.RootDir()
			if len(args) == 1 {
				dir = filepath.Join(dir, "versions", args[0])
			}
			removed, err := utils.CleanParts(dir)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up partial files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d partial files from %s", removed, dir))
		},
	}
}
