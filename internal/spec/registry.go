// Package spec resolves the table, database and query declarations of Go
// types. A declaration comes from the registry cache, then the precompiled
// catalog in pkg/types, then reflection over struct tags. Every resolved
// declaration is cached for the life of the registry.
package spec

import (
	"reflect"
	"sync"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Registry caches resolved declarations keyed by Go type. It is safe for
// concurrent use; a declaration is built at most once.
type Registry struct {
	mu        sync.Mutex
	lookup    func(key string) (any, bool)
	tables    map[reflect.Type]*types.Table
	databases map[reflect.Type]*types.Database
	queries   map[reflect.Type]*types.Query
}

// Option configures a Registry.
type Option func(*Registry)

// WithCatalog replaces the precompiled catalog lookup.
func WithCatalog(lookup func(key string) (any, bool)) Option {
	return func(r *Registry) { r.lookup = lookup }
}

// New returns an empty registry that consults the pkg/types catalog.
func New(opts ...Option) *Registry {
	r := &Registry{
		lookup:    types.Lookup,
		tables:    make(map[reflect.Type]*types.Table),
		databases: make(map[reflect.Type]*types.Database),
		queries:   make(map[reflect.Type]*types.Query),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = New() })
	return defaultRegistry
}

// LoadTable returns the table declared by t.
func (r *Registry) LoadTable(t reflect.Type) (*types.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadTable(t)
}

// LoadDatabase returns the database declared by t.
func (r *Registry) LoadDatabase(t reflect.Type) (*types.Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadDatabase(t)
}

// LoadQuery returns the query declared by t. A table type yields the
// bare-table query.
func (r *Registry) LoadQuery(t reflect.Type) (*types.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadQuery(t)
}

func (r *Registry) loadTable(t reflect.Type) (*types.Table, error) {
	t = indirect(t)
	if tbl, ok := r.tables[t]; ok {
		return tbl, nil
	}
	key := types.SpecKey(t, types.TableSpecSuffix)
	tbl, ok, err := fromCatalog[*types.Table](r.lookup, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		if tbl, err = BuildTable(t); err != nil {
			return nil, err
		}
	} else if err := tbl.Validate(); err != nil {
		return nil, err
	}
	r.tables[t] = tbl
	return tbl, nil
}

func (r *Registry) loadDatabase(t reflect.Type) (*types.Database, error) {
	t = indirect(t)
	if db, ok := r.databases[t]; ok {
		return db, nil
	}
	key := types.SpecKey(t, types.DatabaseSpecSuffix)
	db, ok, err := fromCatalog[*types.Database](r.lookup, key)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := db.Validate(); err != nil {
			return nil, err
		}
		r.cacheDatabaseTables(t, db)
	} else if db, err = buildDatabase(t, r.loadTable); err != nil {
		return nil, err
	}
	r.databases[t] = db
	return db, nil
}

// cacheDatabaseTables pairs the table fields of t with the tables of a
// precompiled database by name.
func (r *Registry) cacheDatabaseTables(t reflect.Type, db *types.Database) {
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		ft := indirect(t.Field(i).Type)
		if ft.Kind() != reflect.Struct || ft.Name() == "" {
			continue
		}
		if _, ok := r.tables[ft]; ok {
			continue
		}
		if tbl := db.Table(tableName(ft)); tbl != nil {
			r.tables[ft] = tbl
		}
	}
}

func (r *Registry) loadQuery(t reflect.Type) (*types.Query, error) {
	t = indirect(t)
	if q, ok := r.queries[t]; ok {
		return q, nil
	}
	key := types.SpecKey(t, types.QuerySpecSuffix)
	q, ok, err := fromCatalog[*types.Query](r.lookup, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		if q, err = buildQuery(t, r.loadTable); err != nil {
			return nil, err
		}
	}
	r.queries[t] = q
	return q, nil
}

// fromCatalog looks key up and asserts the entry's type. An entry of any
// other type is a configuration error.
func fromCatalog[T any](lookup func(string) (any, bool), key string) (T, bool, error) {
	var zero T
	if lookup == nil {
		return zero, false, nil
	}
	v, ok := lookup(key)
	if !ok {
		return zero, false, nil
	}
	spec, ok := v.(T)
	if !ok || reflect.ValueOf(spec).IsNil() {
		return zero, false, &types.ConfigError{
			Type:     key,
			Err:      types.ErrSpecMismatch,
			Expected: reflect.TypeFor[T]().String(),
		}
	}
	return spec, true, nil
}
