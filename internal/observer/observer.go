// Package observer tracks which queries watch which tables and notifies
// their observers when a table changes.
package observer

import "sync"

// Observer receives change notifications. Implementations must be
// comparable, typically a pointer.
type Observer interface {
	// TableChanged is called once per interested query when a table it reads
	// was written.
	TableChanged(query any)
}

// Registry maps table name to observer to the set of query keys the
// observer registered for that table.
type Registry struct {
	mu     sync.Mutex
	tables map[string]map[Observer]map[any]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tables: make(map[string]map[Observer]map[any]struct{})}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry shared by every database handle.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = New() })
	return defaultReg
}

// Register records that o watches query, which reads the given tables.
func (r *Registry) Register(o Observer, query any, tables ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, table := range tables {
		observers, ok := r.tables[table]
		if !ok {
			observers = make(map[Observer]map[any]struct{})
			r.tables[table] = observers
		}
		queries, ok := observers[o]
		if !ok {
			queries = make(map[any]struct{})
			observers[o] = queries
		}
		queries[query] = struct{}{}
	}
}

// Unregister removes query from o on every table. Tables and observers left
// without registrations are dropped.
func (r *Registry) Unregister(o Observer, query any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for table, observers := range r.tables {
		queries, ok := observers[o]
		if !ok {
			continue
		}
		delete(queries, query)
		if len(queries) == 0 {
			delete(observers, o)
		}
		if len(observers) == 0 {
			delete(r.tables, table)
		}
	}
}

// UnregisterAll removes o from every table.
func (r *Registry) UnregisterAll(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for table, observers := range r.tables {
		delete(observers, o)
		if len(observers) == 0 {
			delete(r.tables, table)
		}
	}
}

// Len returns the number of tables with at least one observer.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}

type delivery struct {
	o     Observer
	query any
}

// Notify tells every observer of the given tables about each of its
// interested queries exactly once. Observers are called outside the lock and
// may register or unregister from the callback.
func (r *Registry) Notify(tables ...string) {
	r.mu.Lock()
	var pending []delivery
	seen := make(map[delivery]bool)
	for _, table := range tables {
		for o, queries := range r.tables[table] {
			for q := range queries {
				d := delivery{o: o, query: q}
				if !seen[d] {
					seen[d] = true
					pending = append(pending, d)
				}
			}
		}
	}
	r.mu.Unlock()

	for _, d := range pending {
		d.o.TableChanged(d.query)
	}
}
