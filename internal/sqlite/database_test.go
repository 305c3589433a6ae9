package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/internal/migrate"
	"github.com/mesh-intelligence/larder/internal/observer"
	"github.com/mesh-intelligence/larder/internal/spec"
	"github.com/mesh-intelligence/larder/internal/worker"
	"github.com/mesh-intelligence/larder/pkg/types"
)

type TableTest struct {
	types.WithID
	Data string `column:"TEXT"`
}

type QueryTest struct {
	types.WithID
	Key   string `column:"TEXT"`
	Value string `column:"TEXT"`
	Ref   int    `column:"INTEGER"`
}

type JoinTest struct {
	types.WithID
	Extra string `column:"TEXT"`
	Ref   int    `column:"INTEGER"`
}

type TestDatabase struct {
	_         struct{} `database:"version=10"`
	TableTest TableTest
	QueryTest QueryTest
	JoinTest  JoinTest
}

type KeyValues struct {
	QueryTest QueryTest `query:"" columns:"key,value"`
}

type JoinedKeyValues struct {
	QueryTest QueryTest `query:"" columns:"key,value"`
	JoinTest  JoinTest  `join:"" columns:"extra" on:"%1$s.ref=%2$s._id"`
}

type LeftJoinedKeyValues struct {
	QueryTest QueryTest `query:"" columns:"key,value"`
	JoinTest  JoinTest  `join:"left" columns:"extra" on:"%1$s.ref=%2$s._id"`
}

type CrossJoinedKeyValues struct {
	QueryTest QueryTest `query:"" columns:"key,value"`
	JoinTest  JoinTest  `join:"cross" columns:"extra" on:"%1$s.ref=%2$s.ref"`
}

func testConfig(t *testing.T) types.Config {
	t.Helper()
	return types.DefaultConfig(filepath.Join(t.TempDir(), "data", "test.db"))
}

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithWorker(worker.New()), WithRegistry(spec.New()), WithObservers(observer.New())}, opts...)
	db, err := Open(context.Background(), testConfig(t), reflect.TypeOf(TestDatabase{}), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	var rows []Insert
	for range 2 {
		rows = append(rows, Insert{Table: "table_test", Values: types.Values{"data": "payload"}})
	}
	for _, r := range []struct {
		key, value string
		ref        int
	}{{"foo", "bar", 1}, {"Foo", "Bar", 2}, {"fOo", "bar", 1}, {"FOo", "BAr", 5}, {"FOO", "BAR", 13}} {
		rows = append(rows, Insert{Table: "query_test", Values: types.Values{"key": r.key, "value": r.value, "ref": r.ref}})
	}
	for _, r := range []struct {
		extra string
		ref   int
	}{{"baz", 1}, {"Baz", 2}, {"bAz", 1}, {"baZ", 1}, {"BAz", 4}, {"bAZ", 1}, {"BaZ", 9}, {"BAZ", 13}} {
		rows = append(rows, Insert{Table: "join_test", Values: types.Values{"extra": r.extra, "ref": r.ref}})
	}
	ids, err := db.InsertAll(ctx, rows)
	require.NoError(t, err)
	for _, id := range ids {
		require.Positive(t, id)
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, migrate.Ready, db.State())
	assert.Equal(t, migrate.NeedsCreate, db.LastPlan().State)

	tables, err := db.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"join_test", "query_test", "table_test"}, tables)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), types.Config{}, reflect.TypeOf(TestDatabase{}), WithWorker(worker.New()))
	assert.ErrorIs(t, err, types.ErrPathEmpty)

	_, err = Open(context.Background(), testConfig(t), reflect.TypeOf(KeyValues{}), WithWorker(worker.New()))
	assert.True(t, types.IsConfigError(err))
}

func TestQueryTable(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	cur, err := db.Query(context.Background(), reflect.TypeOf(TableTest{}), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Len())
	assert.Len(t, cur.Columns, 2)
}

func TestQueryColumns(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	cur, err := db.Query(context.Background(), reflect.TypeOf(KeyValues{}), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cur.Len())
	assert.ElementsMatch(t, []string{"key", "value"}, cur.Columns)
}

func TestQueryFilter(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	filter := types.NewFilter(1).
		SetLimit(1).
		SetSelection("value=?", "bar").
		SetOrderBy("_id DESC")
	cur, err := db.Query(context.Background(), reflect.TypeOf(KeyValues{}), filter)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len())
	assert.Equal(t, "fOo", cell(cur, 0, "key"))
}

func TestQueryJoins(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	ctx := context.Background()

	cur, err := db.Query(ctx, reflect.TypeOf(JoinedKeyValues{}), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cur.Len())
	assert.Len(t, cur.Columns, 3)
	for i := range cur.Rows {
		extra := cell(cur, i, "extra").(string)
		assert.Equal(t, cell(cur, i, "value"), strings.ReplaceAll(extra, "z", "r"))
	}

	cur, err = db.Query(ctx, reflect.TypeOf(LeftJoinedKeyValues{}), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cur.Len())
	nulls := 0
	for i := range cur.Rows {
		if cell(cur, i, "extra") == nil {
			nulls++
		}
	}
	assert.Equal(t, 1, nulls)

	cur, err = db.Query(ctx, reflect.TypeOf(CrossJoinedKeyValues{}), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, cur.Len())
}

func TestUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	ctx := context.Background()

	n := db.Update(ctx, "query_test", types.Values{"value": "qux"}, "ref=?", 1)
	assert.EqualValues(t, 2, n)

	// Engine errors are reported as zero rows.
	assert.Zero(t, db.Update(ctx, "query_test", types.Values{"missing": 1}, ""))
	assert.Zero(t, db.Update(ctx, "query_test", nil, ""))

	ok, err := db.DeleteByID(ctx, "query_test", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.DeleteByID(ctx, "query_test", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := db.Delete(ctx, "join_test", "ref>?", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, removed)

	_, err = db.Delete(ctx, "missing", "")
	assert.Error(t, err)
}

func TestInsertFailureReturnsMinusOne(t *testing.T) {
	db := openTestDB(t)
	id, err := db.Insert(context.Background(), "table_test", types.Values{"nope": 1})
	assert.Error(t, err)
	assert.EqualValues(t, -1, id)
}

type changeRecorder struct {
	mu  sync.Mutex
	got []reflect.Type
}

func (r *changeRecorder) TableChanged(q reflect.Type, _ *DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, q)
}

func (r *changeRecorder) calls() []reflect.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reflect.Type(nil), r.got...)
}

func TestObserversNotifiedAfterWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	joined := reflect.TypeOf(JoinedKeyValues{})
	plain := reflect.TypeOf(KeyValues{})

	o := &changeRecorder{}
	require.NoError(t, db.RegisterObserver(o, joined))
	require.NoError(t, db.RegisterObserver(o, plain))

	_, err := db.Insert(ctx, "join_test", types.Values{"extra": "x", "ref": 1})
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{joined}, o.calls())

	_, err = db.Insert(ctx, "query_test", types.Values{"key": "k"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []reflect.Type{joined, joined, plain}, o.calls())

	// Writes that change nothing do not notify.
	db.Update(ctx, "query_test", types.Values{"key": "z"}, "_id=?", 99)
	_, _ = db.Insert(ctx, "query_test", types.Values{"bogus": 1})
	assert.Len(t, o.calls(), 3)

	db.UnregisterObserver(o, joined)
	db.Update(ctx, "query_test", types.Values{"key": "z"}, "")
	assert.Len(t, o.calls(), 4)

	db.UnregisterObserverAll(o)
	db.Update(ctx, "query_test", types.Values{"key": "y"}, "")
	assert.Len(t, o.calls(), 4)
}

func TestObserversSeeWritesFromOtherHandles(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	w := worker.New()
	reg := spec.New()
	dbType := reflect.TypeOf(TestDatabase{})

	a, err := Open(ctx, cfg, dbType, WithWorker(w), WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })
	b, err := Open(ctx, cfg, dbType, WithWorker(w), WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close(ctx) })

	plain := reflect.TypeOf(KeyValues{})
	o := &changeRecorder{}
	require.NoError(t, a.RegisterObserver(o, plain))
	t.Cleanup(func() { a.UnregisterObserverAll(o) })

	_, err = b.Insert(ctx, "query_test", types.Values{"key": "via b"})
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{plain}, o.calls())

	_, err = a.Insert(ctx, "query_test", types.Values{"key": "via a"})
	require.NoError(t, err)
	assert.Len(t, o.calls(), 2)
}

func TestOpenAppliesLoggingConfig(t *testing.T) {
	prev := logging.GetLogger()
	t.Cleanup(func() { logging.SetLogger(prev) })

	cfg := testConfig(t)
	cfg.LogLevel = types.LogLevelDebug
	cfg.LogFormat = types.LogFormatJSON
	db, err := Open(context.Background(), cfg, reflect.TypeOf(TestDatabase{}),
		WithWorker(worker.New()), WithRegistry(spec.New()), WithObservers(observer.New()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	l := logging.GetLogger()
	assert.NotSame(t, prev, l)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	_, isJSON := l.Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)
}

func TestOpenKeepsLoggerWithoutLoggingConfig(t *testing.T) {
	prev := logging.GetLogger()
	db := openTestDB(t)
	require.NotNil(t, db)
	assert.Same(t, prev, logging.GetLogger())
}

func TestCloseAndDeleteDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	path := db.config.Path

	require.NoError(t, db.Close(ctx))
	require.NoError(t, db.Close(ctx))
	assert.Equal(t, migrate.NotOpen, db.State())
	_, err := db.Insert(ctx, "table_test", types.Values{"data": "x"})
	assert.ErrorIs(t, err, types.ErrClosed)

	_, err = os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, db.DeleteDatabase(ctx))
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResumeKeepsWorkerAlive(t *testing.T) {
	w := worker.New()
	db := openTestDB(t, WithWorker(w))
	db.Resume()
	assert.Equal(t, 1, w.Holders())
	db.Pause()
	assert.Equal(t, 0, w.Holders())
}

func dataTable(cols ...string) *types.Table {
	tbl := types.NewTable("test_table")
	for _, c := range cols {
		tbl.Add(types.Column{Name: c, Type: types.Text})
	}
	return tbl
}

func openSchema(t *testing.T, cfg types.Config, schema *types.Database) *DB {
	t.Helper()
	db, err := OpenSchema(context.Background(), cfg, schema, WithWorker(worker.New()))
	require.NoError(t, err)
	return db
}

func TestUpgradeDropsRemovedColumns(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	v1 := openSchema(t, cfg, &types.Database{Name: "test", Version: 1, Tables: []*types.Table{dataTable("data", "drop")}})
	_, err := v1.Insert(ctx, "test_table", types.Values{"data": "kept", "drop": "lost"})
	require.NoError(t, err)
	require.NoError(t, v1.Close(ctx))

	v2 := openSchema(t, cfg, &types.Database{Name: "test", Version: 2, Tables: []*types.Table{dataTable("data", "keep")}})
	defer v2.Close(ctx)
	assert.Equal(t, migrate.NeedsUpgrade, v2.LastPlan().State)

	cur, err := v2.Run(ctx, &types.Query{Table: dataTable("data", "keep")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"data", "keep"}, cur.Columns)
	require.Equal(t, 1, cur.Len())
	assert.Equal(t, "kept", cell(cur, 0, "data"))
	assert.Nil(t, cell(cur, 0, "keep"))
}

func TestUpgradeDropsRemovedTables(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	other := types.NewTable("other").Add(types.IDColumnDef())

	v1 := openSchema(t, cfg, &types.Database{Name: "test", Version: 1, Tables: []*types.Table{dataTable("data"), other}})
	require.NoError(t, v1.Close(ctx))

	v2 := openSchema(t, cfg, &types.Database{Name: "test", Version: 2, Tables: []*types.Table{dataTable("data")}})
	defer v2.Close(ctx)
	tables, err := v2.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test_table"}, tables)
}

func TestOpenRejectsDowngrade(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	v2 := openSchema(t, cfg, &types.Database{Name: "test", Version: 2, Tables: []*types.Table{dataTable("data")}})
	require.NoError(t, v2.Close(ctx))

	_, err := OpenSchema(ctx, cfg, &types.Database{Name: "test", Version: 1, Tables: []*types.Table{dataTable("data")}}, WithWorker(worker.New()))
	assert.ErrorIs(t, err, types.ErrDowngrade)
}

type failingCreate struct {
	migrate.NopHooks
}

func (failingCreate) OnCreate(context.Context, types.Conn) error {
	return errors.New("seed failed")
}

func TestOpenHookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	schema := &types.Database{Name: "test", Version: 1, Tables: []*types.Table{dataTable("data")}}
	_, err := OpenSchema(ctx, cfg, schema, WithWorker(worker.New()), WithHooks(failingCreate{}))
	require.Error(t, err)

	plan, err := PlanSchema(ctx, cfg, schema)
	require.NoError(t, err)
	assert.Equal(t, migrate.NeedsCreate, plan.State)
	assert.Equal(t, 0, plan.From)
}

func TestPlanSchemaDoesNotCreateFile(t *testing.T) {
	cfg := testConfig(t)
	schema := &types.Database{Name: "test", Version: 1, Tables: []*types.Table{dataTable("data")}}
	plan, err := PlanSchema(context.Background(), cfg, schema)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, `CREATE TABLE test_table ("data" TEXT)`, plan.Steps[0].SQL)
	_, err = os.Stat(cfg.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestJSONLRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestDB(t)
	seed(t, src)
	path := filepath.Join(t.TempDir(), "query_test.jsonl")

	n, err := src.ExportJSONL(ctx, "query_test", path)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// A malformed line and an unknown key are tolerated on import.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n" + `{"key":"extra","unknown":1}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dst := openTestDB(t)
	n, err = dst.ImportJSONL(ctx, "query_test", path)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	cur, err := dst.Run(ctx, &types.Query{
		Table:     dst.Schema().Table("query_test"),
		Selection: "key=?", SelectionArgs: []any{"FOO"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len())
	assert.EqualValues(t, 5, cell(cur, 0, "_id"))
	assert.EqualValues(t, 13, cell(cur, 0, "ref"))

	_, err = dst.ExportJSONL(ctx, "missing", path)
	assert.True(t, types.IsConfigError(err))
}
