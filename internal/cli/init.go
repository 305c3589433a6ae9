package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and data directories",
		Long:  "Create the configuration directory with a default config.yaml and the data directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
				return sysErrorf("create data directory: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config:", filepath.Join(settings.ConfigDir, configFileExt))
			fmt.Fprintln(out, "data:  ", settings.DataDir)
			return nil
		},
	}
}
