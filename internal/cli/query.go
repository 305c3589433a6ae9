package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/types"
)

type queryFlags struct {
	where   string
	args    []string
	groupBy string
	having  string
	orderBy string
	limit   int
}

// filter turns the override flags into a filter over the query's defaults.
func (f *queryFlags) filter() *types.Filter {
	filter := types.NewFilter(0).
		SetGroupBy(f.groupBy).
		SetHaving(f.having).
		SetOrderBy(f.orderBy).
		SetLimit(f.limit)
	args := make([]any, len(f.args))
	for i, a := range f.args {
		args[i] = a
	}
	return filter.SetSelection(f.where, args...)
}

func newQueryCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "query <schema.yaml> <name>",
		Short: "Run a query declared in a schema",
		Long: `Run the named query of a schema file against its database and print the rows.

Flags override the query's own selection, grouping, ordering and limit. A
--where replaces the declared selection and its arguments together; --arg
alone binds the placeholders of the declared selection.

Example:
  larder query library.yaml long_books --where "pages > ?" --arg 300 --limit 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, db, err := openSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			q := s.Query(args[1])
			if q == nil {
				return fmt.Errorf("unknown query %q (declared: %v)", args[1], s.QueryNames())
			}
			cur, err := db.Run(cmd.Context(), q, qf.filter())
			if err != nil {
				return err
			}
			return printCursor(cmd.OutOrStdout(), cur)
		},
	}
	cmd.Flags().StringVar(&qf.where, "where", "", "selection replacing the declared one")
	cmd.Flags().StringArrayVar(&qf.args, "arg", nil, "selection argument (repeatable)")
	cmd.Flags().StringVar(&qf.groupBy, "group-by", "", "GROUP BY override")
	cmd.Flags().StringVar(&qf.having, "having", "", "HAVING override")
	cmd.Flags().StringVar(&qf.orderBy, "order-by", "", "ORDER BY override")
	cmd.Flags().IntVar(&qf.limit, "limit", 0, "LIMIT override")
	return cmd
}
