package cmd

import (
	"fmt"
	"os"

	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// BatchFile lists the versions to install, each optionally with its own
// root and source preference:
//
//	versions:
//	  - id: 1.20.1
//	  - id: 1.8.9
//	    root: /games/legacy
//	    source: official-only
type BatchFile struct {
	Versions []utils.DownloadEntry `yaml:"versions"`
}

func newBatchCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Install multiple versions listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := readBatchFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			runInstalls(cmd.Context(), entries, parallel)
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "P", 2, "Number of versions to install at once")
	return cmd
}

func readBatchFile(path string) ([]utils.DownloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}
	var entries []utils.DownloadEntry
	for i, entry := range batch.Versions {
		if entry.VersionID == "" {
			fmt.Fprintf(os.Stderr, "Warning: entry %d has no id, skipping...\n", i+1)
			continue
		}
		if _, err := utils.ParseSourcePreference(entry.Source); err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i+1, entry.VersionID, err)
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no versions found in %s", path)
	}
	return entries, nil
}
