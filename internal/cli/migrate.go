package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/internal/migrate"
	"github.com/mesh-intelligence/larder/internal/schemafile"
	"github.com/mesh-intelligence/larder/internal/sqlite"
)

func newMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate <schema.yaml>",
		Short: "Bring a database file to its declared version",
		Long: `Open <data-dir>/<name>.db and create or upgrade it to the declared schema.

An upgrade rebuilds every declared table, keeping the columns it shares with
the live table, and drops live tables the schema no longer declares. With
--dry-run the statements are printed and nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return runPlan(cmd, args[0])
			}
			_, db, err := openSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			plan := db.LastPlan()
			if err := db.Close(cmd.Context()); err != nil {
				return sysErrorf("close: %w", err)
			}
			return printPlan(cmd, plan, false)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the migration without applying it")
	return cmd
}

func runPlan(cmd *cobra.Command, schemaPath string) error {
	s, err := schemafile.Load(schemaPath)
	if err != nil {
		return err
	}
	dbPath, err := databasePath(s.Database.Name)
	if err != nil {
		return err
	}
	plan, err := sqlite.PlanSchema(cmd.Context(), settings.Config(dbPath), s.Database)
	if err != nil {
		return err
	}
	return printPlan(cmd, plan, true)
}

type planJSON struct {
	Database   string   `json:"database"`
	State      string   `json:"state"`
	From       int      `json:"from"`
	To         int      `json:"to"`
	DryRun     bool     `json:"dry_run"`
	Statements []string `json:"statements"`
}

func printPlan(cmd *cobra.Command, plan *migrate.Plan, dryRun bool) error {
	out := cmd.OutOrStdout()
	if flags.jsonMode {
		stmts := make([]string, len(plan.Steps))
		for i, s := range plan.Steps {
			stmts[i] = s.SQL
		}
		return printJSON(out, planJSON{
			Database: plan.Database, State: plan.State.String(),
			From: plan.From, To: plan.To, DryRun: dryRun, Statements: stmts,
		})
	}
	if plan.State == migrate.Ready {
		fmt.Fprintf(out, "%s is at version %d\n", plan.Database, plan.To)
		return nil
	}
	fmt.Fprint(out, plan.String())
	verb := "migrated"
	if dryRun {
		verb = "would migrate"
	}
	fmt.Fprintf(out, "%s %s from %d to %d (%d statements)\n", verb, plan.Database, plan.From, plan.To, len(plan.Steps))
	return nil
}
