package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/ddl"
	"github.com/mesh-intelligence/larder/internal/schemafile"
)

func newDDLCmd() *cobra.Command {
	var temp bool
	cmd := &cobra.Command{
		Use:   "ddl <schema.yaml>",
		Short: "Print the CREATE TABLE statements of a schema",
		Long: `Print one CREATE TABLE statement per declared table, in declaration order.

With --temp every table name carries the "_" prefix used while a table is
rebuilt during an upgrade.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := schemafile.Load(args[0])
			if err != nil {
				return err
			}
			compiler := ddl.NewCompiler(ddl.Options{WithoutRowid: settings.WithoutRowid})
			out := cmd.OutOrStdout()
			for _, tbl := range s.Database.Declared() {
				stmt, err := compiler.BuildCreateTable(tbl, temp)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s;\n", stmt.SQL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&temp, "temp", false, "prefix table names for an in-place rebuild")
	return cmd
}
