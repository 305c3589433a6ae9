package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/internal/schemafile"
	"github.com/mesh-intelligence/larder/internal/sqlite"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// databasePath returns the file in the data directory backing the database
// called name.
func databasePath(name string) (string, error) {
	return paths.DatabasePath(settings.DataDir, name)
}

// openSchema loads the schema file at path and opens its database,
// migrating it to the declared version. The caller must Close the handle.
func openSchema(ctx context.Context, path string) (*schemafile.Schema, *sqlite.DB, error) {
	s, err := schemafile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	dbPath, err := databasePath(s.Database.Name)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlite.OpenSchema(ctx, settings.Config(dbPath), s.Database)
	if err != nil {
		if types.IsConfigError(err) {
			return nil, nil, err
		}
		return nil, nil, sysErrorf("open %s: %w", dbPath, err)
	}
	return s, db, nil
}

// rowsJSON converts a cursor to one object per row keyed by column name.
func rowsJSON(cur *types.Cursor) []map[string]any {
	out := make([]map[string]any, 0, cur.Len())
	for _, row := range cur.Rows {
		obj := make(map[string]any, len(cur.Columns))
		for i, col := range cur.Columns {
			obj[col] = row[i]
		}
		out = append(out, obj)
	}
	return out
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printCursor writes the rows of cur as JSON or as an aligned table.
func printCursor(w io.Writer, cur *types.Cursor) error {
	if flags.jsonMode {
		return printJSON(w, rowsJSON(cur))
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cur.Columns, "\t"))
	for _, row := range cur.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	}
	return fmt.Sprint(v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
