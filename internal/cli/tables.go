package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/sqlite"
)

type tablesJSON struct {
	Database string   `json:"database"`
	Version  int      `json:"version"`
	Tables   []string `json:"tables"`
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <name>",
		Short: "List the live tables of a database file",
		Long:  "Print the schema version and the tables stored in <data-dir>/<name>.db without migrating it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := databasePath(args[0])
			if err != nil {
				return err
			}
			if !fileExists(path) {
				return fmt.Errorf("database %s does not exist (looked in %s)", args[0], settings.DataDir)
			}
			ctx := cmd.Context()
			conn, err := sqlite.OpenConn(ctx, path)
			if err != nil {
				return sysErrorf("open %s: %w", path, err)
			}
			defer conn.Close()

			version, err := conn.Version(ctx)
			if err != nil {
				return sysErrorf("read version: %w", err)
			}
			tables, err := conn.TableNames(ctx)
			if err != nil {
				return sysErrorf("list tables: %w", err)
			}
			out := cmd.OutOrStdout()
			if flags.jsonMode {
				return printJSON(out, tablesJSON{Database: args[0], Version: version, Tables: tables})
			}
			fmt.Fprintf(out, "%s version %d\n", args[0], version)
			for _, t := range tables {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}
}
