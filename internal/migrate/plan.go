package migrate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mesh-intelligence/larder/internal/ddl"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// sequenceTable is maintained by SQLite for AUTOINCREMENT and never dropped.
const sequenceTable = "sqlite_sequence"

// StepKind classifies a migration statement.
type StepKind int

// Step kinds, in the order they appear for one upgraded table.
const (
	StepCreate StepKind = iota
	StepCreateCopy
	StepCopyRows
	StepDrop
	StepRename
)

func (k StepKind) String() string {
	switch k {
	case StepCreate:
		return "create"
	case StepCreateCopy:
		return "create_copy"
	case StepCopyRows:
		return "copy_rows"
	case StepDrop:
		return "drop"
	case StepRename:
		return "rename"
	}
	return fmt.Sprintf("step(%d)", int(k))
}

// Step is one statement of a plan.
type Step struct {
	Kind  StepKind
	Table string
	SQL   string
}

// Plan is the statement list that brings a database to its declared version.
type Plan struct {
	Database string
	State    State
	From     int
	To       int
	Steps    []Step
}

// String renders the plan as one statement per line.
func (p *Plan) String() string {
	var sb strings.Builder
	for _, s := range p.Steps {
		sb.WriteString(s.SQL)
		sb.WriteString(";\n")
	}
	return sb.String()
}

// Plan reads the on-disk version and the live schema and returns the steps
// Apply would run. It does not write.
func (e *Engine) Plan(ctx context.Context, conn types.Conn, db *types.Database) (*Plan, error) {
	if err := db.Validate(); err != nil {
		return nil, err
	}
	from, err := conn.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	state, err := Decide(from, db.Version)
	if err != nil {
		return nil, err
	}
	return e.plan(ctx, conn, db, state, from)
}

func (e *Engine) plan(ctx context.Context, conn types.Conn, db *types.Database, state State, from int) (*Plan, error) {
	p := &Plan{Database: db.Name, State: state, From: from, To: db.Version}
	switch state {
	case NeedsCreate:
		for _, tbl := range db.Declared() {
			if err := e.addCreate(p, tbl); err != nil {
				return nil, err
			}
		}
	case NeedsUpgrade:
		names, err := conn.TableNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		live := make(map[string]bool, len(names))
		for _, n := range names {
			live[n] = true
		}
		for _, tbl := range db.Declared() {
			if !live[tbl.Name] {
				if err := e.addCreate(p, tbl); err != nil {
					return nil, err
				}
				continue
			}
			delete(live, tbl.Name)
			if err := e.addUpgrade(ctx, conn, p, tbl); err != nil {
				return nil, err
			}
		}
		remaining := make([]string, 0, len(live))
		for n := range live {
			if n != sequenceTable {
				remaining = append(remaining, n)
			}
		}
		slices.Sort(remaining)
		for _, n := range remaining {
			p.Steps = append(p.Steps, Step{Kind: StepDrop, Table: n, SQL: ddl.DropTable(n)})
		}
	}
	return p, nil
}

func (e *Engine) addCreate(p *Plan, tbl *types.Table) error {
	stmt, err := e.compiler.BuildCreateTable(tbl, false)
	if err != nil {
		return err
	}
	p.Steps = append(p.Steps, Step{Kind: StepCreate, Table: tbl.Name, SQL: stmt.SQL})
	return nil
}

func (e *Engine) addUpgrade(ctx context.Context, conn types.Conn, p *Plan, tbl *types.Table) error {
	stmt, err := e.compiler.BuildCreateTable(tbl, true)
	if err != nil {
		return err
	}
	liveCols, err := conn.ColumnNames(ctx, tbl.Name)
	if err != nil {
		return fmt.Errorf("list columns of %s: %w", tbl.Name, err)
	}
	p.Steps = append(p.Steps, Step{Kind: StepCreateCopy, Table: tbl.Name, SQL: stmt.SQL})
	if copySQL := ddl.CopyRows(tbl.Name, ddl.Intersect(stmt.Columns, liveCols)); copySQL != "" {
		p.Steps = append(p.Steps, Step{Kind: StepCopyRows, Table: tbl.Name, SQL: copySQL})
	}
	p.Steps = append(p.Steps,
		Step{Kind: StepDrop, Table: tbl.Name, SQL: ddl.DropTable(tbl.Name)},
		Step{Kind: StepRename, Table: tbl.Name, SQL: ddl.RenameTable(ddl.TempPrefix+tbl.Name, tbl.Name)},
	)
	return nil
}
