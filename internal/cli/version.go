package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/sqlite"
	larder "github.com/mesh-intelligence/larder/pkg/sqlite"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the larder version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "larder %s (sqlite driver: %s)\n", larder.Version, sqlite.DriverType())
		},
	}
}
