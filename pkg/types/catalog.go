package types

import (
	"reflect"
	"sync"
)

// Suffixes appended to a type's qualified name to form its catalog key.
const (
	TableSpecSuffix    = "$$TableSpec"
	DatabaseSpecSuffix = "$$DatabaseSpec"
	QuerySpecSuffix    = "$$QuerySpec"
)

var catalog = struct {
	sync.RWMutex
	specs map[string]any
}{specs: make(map[string]any)}

// SpecKey returns the catalog key for t: "<pkgpath>.<Name><suffix>".
// Pointer types are dereferenced.
func SpecKey(t reflect.Type, suffix string) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name() + suffix
}

// Register stores a precompiled spec under key. Generated code calls it from
// init functions. The value is checked against the expected kind only when it
// is looked up.
func Register(key string, spec any) {
	catalog.Lock()
	defer catalog.Unlock()
	catalog.specs[key] = spec
}

// RegisterTable stores the precompiled table spec for t.
func RegisterTable(t reflect.Type, spec *Table) {
	Register(SpecKey(t, TableSpecSuffix), spec)
}

// RegisterDatabase stores the precompiled database spec for t.
func RegisterDatabase(t reflect.Type, spec *Database) {
	Register(SpecKey(t, DatabaseSpecSuffix), spec)
}

// RegisterQuery stores the precompiled query spec for t.
func RegisterQuery(t reflect.Type, spec *Query) {
	Register(SpecKey(t, QuerySpecSuffix), spec)
}

// Lookup returns the catalog entry for key.
func Lookup(key string) (any, bool) {
	catalog.RLock()
	defer catalog.RUnlock()
	spec, ok := catalog.specs[key]
	return spec, ok
}

// Unregister removes the entry for key. It exists for tests.
func Unregister(key string) {
	catalog.Lock()
	defer catalog.Unlock()
	delete(catalog.specs, key)
}
