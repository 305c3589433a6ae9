package migrate

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/larder/internal/ddl"
	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Hooks are called at fixed points of opening a database. Every hook runs
// on the migrating connection; an error aborts the open.
type Hooks interface {
	// OnConfigure runs after the connection is configured, before any
	// version check.
	OnConfigure(ctx context.Context, conn types.Conn) error
	// OnCreate runs after every table of a fresh database was created.
	OnCreate(ctx context.Context, conn types.Conn) error
	// BeforeUpgrade runs before the live schema is read.
	BeforeUpgrade(ctx context.Context, conn types.Conn, from, to int) error
	// AfterUpgrade runs after every upgrade step.
	AfterUpgrade(ctx context.Context, conn types.Conn, from, to int) error
}

// NopHooks implements Hooks with no-ops. Embed it to override a subset.
type NopHooks struct{}

func (NopHooks) OnConfigure(context.Context, types.Conn) error             { return nil }
func (NopHooks) OnCreate(context.Context, types.Conn) error                { return nil }
func (NopHooks) BeforeUpgrade(context.Context, types.Conn, int, int) error { return nil }
func (NopHooks) AfterUpgrade(context.Context, types.Conn, int, int) error  { return nil }

// Engine plans and applies migrations.
type Engine struct {
	compiler    *ddl.Compiler
	hooks       Hooks
	inTx        bool
	foreignKeys bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks sets the hooks called during Run.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		if h != nil {
			e.hooks = h
		}
	}
}

// WithCompiler sets the DDL compiler options.
func WithCompiler(opts ddl.Options) Option {
	return func(e *Engine) { e.compiler = ddl.NewCompiler(opts) }
}

// WithTransaction controls whether Run wraps its writes in a transaction
// when the connection implements types.Transactor. It is on by default.
func WithTransaction(on bool) Option {
	return func(e *Engine) { e.inTx = on }
}

// WithForeignKeys tells the engine that the connection enforces foreign
// keys. Run switches enforcement off while tables are rebuilt and back on
// afterwards.
func WithForeignKeys(on bool) Option {
	return func(e *Engine) { e.foreignKeys = on }
}

// New returns an engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		compiler: ddl.NewCompiler(ddl.Options{WithoutRowid: true}),
		hooks:    NopHooks{},
		inTx:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run brings conn to the declared version of db and returns the plan it
// applied. A Ready database yields a plan without steps.
func (e *Engine) Run(ctx context.Context, conn types.Conn, db *types.Database) (*Plan, error) {
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
	if state == Ready {
		return &Plan{Database: db.Name, State: Ready, From: from, To: db.Version}, nil
	}

	if e.foreignKeys {
		if err := conn.Exec(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
			return nil, fmt.Errorf("disable foreign keys: %w", err)
		}
		defer func() {
			if ferr := conn.Exec(ctx, "PRAGMA foreign_keys=ON"); ferr != nil {
				logging.ErrorContext(ctx, "restore foreign keys", "error", ferr)
			}
		}()
	}

	var applied *Plan
	body := func(c types.Conn) error {
		p, err := e.migrate(ctx, c, db, state, from)
		applied = p
		return err
	}
	if tr, ok := conn.(types.Transactor); ok && e.inTx {
		err = tr.InTx(ctx, body)
	} else {
		err = body(conn)
	}
	if err != nil {
		return nil, fmt.Errorf("migrate %s from %d to %d: %w", db.Name, from, db.Version, err)
	}
	logging.Migration(ctx, db.Name, from, db.Version, state.String(), "steps", len(applied.Steps))
	return applied, nil
}

func (e *Engine) migrate(ctx context.Context, conn types.Conn, db *types.Database, state State, from int) (*Plan, error) {
	if state == NeedsUpgrade {
		if err := e.hooks.BeforeUpgrade(ctx, conn, from, db.Version); err != nil {
			return nil, fmt.Errorf("before upgrade: %w", err)
		}
	}
	p, err := e.plan(ctx, conn, db, state, from)
	if err != nil {
		return nil, err
	}
	if err := e.Apply(ctx, conn, p); err != nil {
		return nil, err
	}
	switch state {
	case NeedsCreate:
		if err := e.hooks.OnCreate(ctx, conn); err != nil {
			return nil, fmt.Errorf("on create: %w", err)
		}
	case NeedsUpgrade:
		if err := e.hooks.AfterUpgrade(ctx, conn, from, db.Version); err != nil {
			return nil, fmt.Errorf("after upgrade: %w", err)
		}
	}
	if err := conn.SetVersion(ctx, db.Version); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}
	return p, nil
}

// Apply executes the steps of p in order. It does not write the version.
func (e *Engine) Apply(ctx context.Context, conn types.Conn, p *Plan) error {
	for _, s := range p.Steps {
		if err := conn.Exec(ctx, s.SQL); err != nil {
			return fmt.Errorf("%s %s: %w", s.Kind, s.Table, err)
		}
	}
	return nil
}

// Hooks returns the engine's hooks.
func (e *Engine) Hooks() Hooks {
	return e.hooks
}
