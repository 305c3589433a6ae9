// Package sqlite is the public API of larder: open a SQLite database whose
// schema is declared by Go types, and keep it at the declared version.
//
//	type Note struct {
//		types.WithID
//		Body string `column:"TEXT" notnull:""`
//	}
//
//	type Notes struct {
//		_    struct{} `database:"version=1"`
//		Note Note
//	}
//
//	db, err := sqlite.Open(ctx, types.DefaultConfig("notes.db"), reflect.TypeOf(Notes{}))
//	if err != nil {
//		return err
//	}
//	defer db.Close(ctx)
//	id, err := db.Insert(ctx, "note", types.Values{"body": "hello"})
package sqlite

import (
	"context"
	"reflect"

	"github.com/mesh-intelligence/larder/internal/migrate"
	"github.com/mesh-intelligence/larder/internal/sqlite"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Version is the larder release.
const Version = "v0.1.0"

// DB is an open database handle.
type DB = sqlite.DB

// Option configures Open.
type Option = sqlite.Option

// Observer is notified when a table read by a registered query changes.
type Observer = sqlite.Observer

// Hooks run while a database is configured, created or upgraded.
type Hooks = migrate.Hooks

// NopHooks implements Hooks with no-ops. Embed it to override a subset.
type NopHooks = migrate.NopHooks

// Open resolves the database declared by dbType, opens the file at
// cfg.Path and migrates it to the declared version.
func Open(ctx context.Context, cfg types.Config, dbType reflect.Type, opts ...Option) (*DB, error) {
	return sqlite.Open(ctx, cfg, dbType, opts...)
}

// OpenSchema opens a database from an explicit declaration.
func OpenSchema(ctx context.Context, cfg types.Config, schema *types.Database, opts ...Option) (*DB, error) {
	return sqlite.OpenSchema(ctx, cfg, schema, opts...)
}

// WithHooks sets the configure, create and upgrade hooks.
func WithHooks(h Hooks) Option {
	return sqlite.WithHooks(h)
}
