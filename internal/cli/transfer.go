package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <schema.yaml> <table> <file.jsonl>",
		Short: "Write the rows of a table as JSON lines",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			n, err := db.ExportJSONL(cmd.Context(), args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows from %s\n", n, args[1])
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <schema.yaml> <table> <file.jsonl>",
		Short: "Insert JSON lines into a table",
		Long: `Insert one row per line of a JSONL file. Keys that are not columns of
the table are ignored and malformed lines are skipped.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			n, err := db.ImportJSONL(cmd.Context(), args[1], args[2])
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows into %s\n", n, args[1])
			return err
		},
	}
}
