package migrate

import (
	"context"
	"errors"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// fakeConn records executed statements and serves a canned live schema.
type fakeConn struct {
	version  int
	tables   []string
	columns  map[string][]string
	execs    []string
	failOn   string
	inTx     int
	rollback bool
}

func (f *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return errors.New("exec failed: " + query)
	}
	f.execs = append(f.execs, query)
	return nil
}

func (f *fakeConn) Select(context.Context, types.SelectParams) (*types.Cursor, error) {
	return &types.Cursor{}, nil
}

func (f *fakeConn) Insert(context.Context, string, types.Values) (int64, error) { return -1, nil }

func (f *fakeConn) Update(context.Context, string, types.Values, string, []any, types.ConflictClause) (int64, error) {
	return 0, nil
}

func (f *fakeConn) Delete(context.Context, string, string, []any) (int64, error) { return 0, nil }

func (f *fakeConn) TableNames(context.Context) ([]string, error) { return f.tables, nil }

func (f *fakeConn) ColumnNames(_ context.Context, table string) ([]string, error) {
	return f.columns[table], nil
}

func (f *fakeConn) Version(context.Context) (int, error) { return f.version, nil }

func (f *fakeConn) SetVersion(_ context.Context, v int) error {
	f.execs = append(f.execs, "SET VERSION")
	f.version = v
	return nil
}

func (f *fakeConn) InTx(_ context.Context, fn func(types.Conn) error) error {
	f.inTx++
	saved := f.version
	if err := fn(f); err != nil {
		f.rollback = true
		f.version = saved
		return err
	}
	return nil
}

// recordingHooks appends hook names to the connection's statement log.
type recordingHooks struct {
	NopHooks
	calls []string
	fail  string
}

func (h *recordingHooks) record(name string) error {
	h.calls = append(h.calls, name)
	if name == h.fail {
		return errors.New(name + " failed")
	}
	return nil
}

func (h *recordingHooks) OnCreate(context.Context, types.Conn) error { return h.record("OnCreate") }

func (h *recordingHooks) BeforeUpgrade(context.Context, types.Conn, int, int) error {
	return h.record("BeforeUpgrade")
}

func (h *recordingHooks) AfterUpgrade(context.Context, types.Conn, int, int) error {
	return h.record("AfterUpgrade")
}
