package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/larder/internal/ddl"
	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/internal/migrate"
	"github.com/mesh-intelligence/larder/internal/naming"
	"github.com/mesh-intelligence/larder/internal/observer"
	"github.com/mesh-intelligence/larder/internal/query"
	"github.com/mesh-intelligence/larder/internal/spec"
	"github.com/mesh-intelligence/larder/internal/worker"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Observer is notified after a successful write to a table read by a query
// it registered for.
type Observer interface {
	TableChanged(query reflect.Type, db *DB)
}

// boundObserver pairs an Observer with the handle that delivers to it.
type boundObserver struct {
	o  Observer
	db *DB
}

func (b boundObserver) TableChanged(q any) {
	if t, ok := q.(reflect.Type); ok {
		b.o.TableChanged(t, b.db)
	}
}

// DB is a handle on one SQLite database file reconciled with a declared
// schema. Every statement runs on a single worker goroutine in submission
// order.
type DB struct {
	mu      sync.RWMutex
	id      uuid.UUID
	config  types.Config
	schema  *types.Database
	conn    *Conn
	state   migrate.State
	plan    *migrate.Plan
	queries map[reflect.Type]*query.Compiled

	worker    *worker.Worker
	registry  *spec.Registry
	observers *observer.Registry
	hooks     migrate.Hooks
}

type options struct {
	worker    *worker.Worker
	registry  *spec.Registry
	observers *observer.Registry
	hooks     migrate.Hooks
}

// Option configures Open.
type Option func(*options)

// WithWorker runs the handle on w instead of the shared worker.
func WithWorker(w *worker.Worker) Option {
	return func(o *options) { o.worker = w }
}

// WithRegistry resolves declarations through r instead of spec.Default().
func WithRegistry(r *spec.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithObservers replaces the process-wide observer registry, typically with
// a private one in tests.
func WithObservers(r *observer.Registry) Option {
	return func(o *options) { o.observers = r }
}

// WithHooks sets the configure, create and upgrade hooks.
func WithHooks(h migrate.Hooks) Option {
	return func(o *options) { o.hooks = h }
}

func newOptions(opts []Option) options {
	o := options{
		worker:    worker.Shared(),
		registry:  spec.Default(),
		observers: observer.Default(),
		hooks:     migrate.NopHooks{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open resolves the database declared by dbType and opens it.
func Open(ctx context.Context, cfg types.Config, dbType reflect.Type, opts ...Option) (*DB, error) {
	o := newOptions(opts)
	schema, err := o.registry.LoadDatabase(dbType)
	if err != nil {
		return nil, err
	}
	return open(ctx, cfg, schema, o)
}

// OpenSchema opens a database from an explicit declaration.
func OpenSchema(ctx context.Context, cfg types.Config, schema *types.Database, opts ...Option) (*DB, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return open(ctx, cfg, schema, newOptions(opts))
}

func open(ctx context.Context, cfg types.Config, schema *types.Database, o options) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applyLogging(cfg)
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	db := &DB{
		id:        id,
		config:    cfg,
		schema:    schema,
		state:     migrate.NotOpen,
		queries:   make(map[reflect.Type]*query.Compiled),
		worker:    o.worker,
		registry:  o.registry,
		observers: o.observers,
		hooks:     o.hooks,
	}
	ctx = db.logContext(ctx)

	err = db.worker.Do(ctx, func() error {
		conn, err := OpenConn(ctx, cfg.Path)
		if err != nil {
			return err
		}
		if err := db.migrate(ctx, conn); err != nil {
			conn.Close()
			return err
		}
		db.mu.Lock()
		db.conn = conn
		db.state = migrate.Ready
		db.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.InfoContext(ctx, "database opened", "database", schema.Name, "path", cfg.Path, "version", schema.Version, "driver", driverType)
	return db, nil
}

// applyLogging installs the process logger requested by cfg. A config
// without logging keys leaves the current logger alone.
func applyLogging(cfg types.Config) {
	if cfg.LogLevel == "" && cfg.LogFormat == "" {
		return
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	format, _ := logging.ParseFormat(cfg.LogFormat)
	logging.InitLogger(level, format)
}

func (db *DB) migrate(ctx context.Context, conn *Conn) error {
	fk := "OFF"
	if db.config.ForeignKeys {
		fk = "ON"
	}
	if err := conn.Exec(ctx, "PRAGMA foreign_keys="+fk); err != nil {
		return fmt.Errorf("configure foreign keys: %w", err)
	}
	if err := db.hooks.OnConfigure(ctx, conn); err != nil {
		return fmt.Errorf("on configure: %w", err)
	}
	engine := migrate.New(
		migrate.WithHooks(db.hooks),
		migrate.WithCompiler(ddl.Options{WithoutRowid: db.config.WithoutRowidSupported}),
		migrate.WithTransaction(db.config.MigrateInTx),
		migrate.WithForeignKeys(db.config.ForeignKeys),
	)
	plan, err := engine.Run(ctx, conn, db.schema)
	if err != nil {
		return err
	}
	db.plan = plan
	return nil
}

func (db *DB) logContext(ctx context.Context) context.Context {
	return logging.WithHandle(ctx, db.id.String())
}

// ID returns the handle id. It is also the handle's worker holder key.
func (db *DB) ID() uuid.UUID {
	return db.id
}

// Schema returns the declaration the handle was opened with.
func (db *DB) Schema() *types.Database {
	return db.schema
}

// State returns Ready while the handle is open and NotOpen after Close.
func (db *DB) State() migrate.State {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.state
}

// LastPlan returns the migration plan applied when the handle was opened.
func (db *DB) LastPlan() *migrate.Plan {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.plan
}

// Resume keeps the worker goroutine alive until Pause.
func (db *DB) Resume() {
	db.worker.Resume(db.id)
}

// Pause releases the worker; it exits once idle if no other handle resumed it.
func (db *DB) Pause() {
	db.worker.Pause(db.id)
}

// do runs fn with the open connection on the worker.
func (db *DB) do(ctx context.Context, fn func(ctx context.Context, c *Conn) error) error {
	ctx = db.logContext(ctx)
	return db.worker.Do(ctx, func() error {
		db.mu.RLock()
		c := db.conn
		db.mu.RUnlock()
		if c == nil {
			return types.ErrClosed
		}
		return fn(ctx, c)
	})
}

// Close releases the connection and the worker holder. Close is idempotent.
func (db *DB) Close(ctx context.Context) error {
	err := db.worker.Do(db.logContext(ctx), func() error {
		db.mu.Lock()
		defer db.mu.Unlock()
		if db.conn == nil {
			return nil
		}
		err := db.conn.Close()
		db.conn = nil
		db.state = migrate.NotOpen
		return err
	})
	db.Pause()
	return err
}

// DeleteDatabase closes the handle and removes the database file and its
// journal, WAL and shared-memory companions.
func (db *DB) DeleteDatabase(ctx context.Context) error {
	if err := db.Close(ctx); err != nil {
		return err
	}
	return RemoveFiles(db.config.Path)
}

// compiled returns the cached compilation of the query declared by t.
func (db *DB) compiled(t reflect.Type) (*query.Compiled, error) {
	db.mu.RLock()
	c, ok := db.queries[t]
	db.mu.RUnlock()
	if ok {
		return c, nil
	}
	q, err := db.registry.LoadQuery(t)
	if err != nil {
		return nil, err
	}
	if c, err = query.Compile(q); err != nil {
		return nil, err
	}
	db.mu.Lock()
	db.queries[t] = c
	db.mu.Unlock()
	return c, nil
}

// Query runs the query declared by queryType with filter applied over its
// defaults. filter may be nil.
func (db *DB) Query(ctx context.Context, queryType reflect.Type, filter *types.Filter) (*types.Cursor, error) {
	c, err := db.compiled(queryType)
	if err != nil {
		return nil, err
	}
	return db.selectCompiled(ctx, c, filter)
}

// Run compiles q and runs it with filter applied.
func (db *DB) Run(ctx context.Context, q *types.Query, filter *types.Filter) (*types.Cursor, error) {
	c, err := query.Compile(q)
	if err != nil {
		return nil, err
	}
	return db.selectCompiled(ctx, c, filter)
}

func (db *DB) selectCompiled(ctx context.Context, c *query.Compiled, filter *types.Filter) (*types.Cursor, error) {
	var cur *types.Cursor
	err := db.do(ctx, func(ctx context.Context, conn *Conn) error {
		var err error
		cur, err = conn.Select(ctx, c.Params(filter))
		return err
	})
	return cur, err
}

// Insert is one row for InsertAll.
type Insert struct {
	Table  string
	Values types.Values
}

// Update is one statement for UpdateAll.
type Update struct {
	Table  string
	Values types.Values
	Where  string
	Args   []any
}

// Insert writes one row and returns its rowid, or -1 with the engine error.
func (db *DB) Insert(ctx context.Context, table string, values types.Values) (int64, error) {
	ids, err := db.InsertAll(ctx, []Insert{{Table: table, Values: values}})
	if len(ids) == 0 {
		return -1, err
	}
	return ids[0], err
}

// InsertAll writes rows in order inside one transaction and returns their
// rowids, -1 for each row that failed. Observers of every table that
// received a row are notified once. The returned error joins the per-row
// failures.
func (db *DB) InsertAll(ctx context.Context, rows []Insert) ([]int64, error) {
	ids := make([]int64, len(rows))
	var errs []error
	changed := make(map[string]bool)
	err := db.do(ctx, func(ctx context.Context, c *Conn) error {
		return c.InTx(ctx, func(tx types.Conn) error {
			for i, r := range rows {
				id, err := tx.Insert(ctx, r.Table, r.Values)
				ids[i] = id
				if err != nil {
					errs = append(errs, fmt.Errorf("insert into %s: %w", r.Table, err))
					continue
				}
				changed[r.Table] = true
			}
			return nil
		})
	})
	if err != nil {
		for i := range ids {
			ids[i] = -1
		}
		return ids, err
	}
	db.notify(changed)
	return ids, errors.Join(errs...)
}

// Update rewrites matching rows with UPDATE OR ROLLBACK and returns the
// number changed. An engine error is logged and reported as 0 rows.
func (db *DB) Update(ctx context.Context, table string, values types.Values, where string, args ...any) int64 {
	return db.UpdateAll(ctx, []Update{{Table: table, Values: values, Where: where, Args: args}})[0]
}

// UpdateAll runs updates in order and returns the rows changed by each.
func (db *DB) UpdateAll(ctx context.Context, updates []Update) []int64 {
	counts := make([]int64, len(updates))
	if len(updates) == 0 {
		return counts
	}
	changed := make(map[string]bool)
	err := db.do(ctx, func(ctx context.Context, conn *Conn) error {
		for i, u := range updates {
			n, err := conn.Update(ctx, u.Table, u.Values, u.Where, u.Args, types.ConflictRollback)
			if err != nil {
				logging.UpdateFailed(ctx, u.Table, err, "where", u.Where)
				continue
			}
			counts[i] = n
			if n > 0 {
				changed[u.Table] = true
			}
		}
		return nil
	})
	if err != nil {
		logging.UpdateFailed(db.logContext(ctx), updates[0].Table, err)
		return make([]int64, len(updates))
	}
	db.notify(changed)
	return counts
}

// Delete removes the rows matching where and returns how many were removed.
func (db *DB) Delete(ctx context.Context, table, where string, args ...any) (int64, error) {
	var n int64
	err := db.do(ctx, func(ctx context.Context, conn *Conn) error {
		var err error
		n, err = conn.Delete(ctx, table, where, args)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	if n > 0 {
		db.notify(map[string]bool{table: true})
	}
	return n, nil
}

// DeleteByID removes the row whose _id is id.
func (db *DB) DeleteByID(ctx context.Context, table string, id int64) (bool, error) {
	n, err := db.Delete(ctx, table, naming.Quote(types.IDColumn)+"=?", id)
	return n > 0, err
}

// Tables returns the live table names.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := db.do(ctx, func(ctx context.Context, conn *Conn) error {
		var err error
		names, err = conn.TableNames(ctx)
		return err
	})
	return names, err
}

// InTx runs fn inside one transaction on the worker. Observers are not
// notified of writes made through the transaction's Conn.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, conn types.Conn) error) error {
	return db.do(ctx, func(ctx context.Context, c *Conn) error {
		return c.InTx(ctx, func(tx types.Conn) error { return fn(ctx, tx) })
	})
}

// RegisterObserver notifies o whenever a table read by queryType changes.
func (db *DB) RegisterObserver(o Observer, queryType reflect.Type) error {
	c, err := db.compiled(queryType)
	if err != nil {
		return err
	}
	db.observers.Register(boundObserver{o: o, db: db}, queryType, c.Tables...)
	return nil
}

// UnregisterObserver stops notifying o about queryType.
func (db *DB) UnregisterObserver(o Observer, queryType reflect.Type) {
	db.observers.Unregister(boundObserver{o: o, db: db}, queryType)
}

// UnregisterObserverAll stops notifying o about every query.
func (db *DB) UnregisterObserverAll(o Observer) {
	db.observers.UnregisterAll(boundObserver{o: o, db: db})
}

func (db *DB) notify(changed map[string]bool) {
	if len(changed) == 0 {
		return
	}
	tables := make([]string, 0, len(changed))
	for t := range changed {
		tables = append(tables, t)
	}
	db.observers.Notify(tables...)
}

// PlanSchema reports the migration Open would apply to the file at
// cfg.Path without writing to it. A missing file plans a fresh create.
func PlanSchema(ctx context.Context, cfg types.Config, schema *types.Database) (*migrate.Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	path := cfg.Path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = MemoryPath
	}
	conn, err := OpenConn(ctx, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	engine := migrate.New(migrate.WithCompiler(ddl.Options{WithoutRowid: cfg.WithoutRowidSupported}))
	return engine.Plan(ctx, conn, schema)
}
