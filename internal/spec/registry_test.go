package spec

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/internal/ddl"
	"github.com/mesh-intelligence/larder/internal/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

type TestTable struct {
	types.WithID
	Data string `column:"TEXT" notnull:""`
}

type Author struct {
	types.WithID
	_    struct{} `unique:"name,born" conflict:"replace"`
	Name string   `column:"TEXT" notnull:"" collate:"NOCASE"`
	Born int      `column:"INTEGER" check:"%s > 0"`
}

type Book struct {
	types.WithID
	types.WithCurrentTimestamp
	_        struct{} `table:"if_not_exists"`
	Title    string   `column:"TEXT" notnull:"abort" unique:""`
	AuthorID int64    `column:"INTEGER" references:"author(_id)" ondelete:"cascade" deferrable:"true"`
	Pages    int      `column:"INTEGER" default:"0"`
	ignored  int
}

type Library struct {
	_      struct{} `database:"version=3"`
	Author Author
	Book   Book
	Skip   TestTable `table:"-"`
}

type BooksByAuthor struct {
	Book   Book   `query:"" columns:"title,pages" selection:"pages > ?" args:"10" orderby:"title" limit:"20"`
	Author Author `join:"left" columns:"name" on:"%1$s.author_id=%2$s._id"`
}

func TestBuildTableFromTags(t *testing.T) {
	tbl, err := BuildTable(reflect.TypeOf(Book{}))
	require.NoError(t, err)
	assert.Equal(t, "book", tbl.Name)
	assert.True(t, tbl.IfNotExists)
	assert.Equal(t, []string{"_id", "_timestamp", "title", "author_id", "pages"}, tbl.ColumnNames())

	stmt, err := ddl.BuildCreateTable(tbl, false)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS book (`+
		`"_id" INTEGER PRIMARY KEY ASC NOT NULL, `+
		`"_timestamp" TEXT DEFAULT CURRENT_TIMESTAMP, `+
		`"title" TEXT UNIQUE NOT NULL ON CONFLICT ABORT, `+
		`"author_id" INTEGER REFERENCES author ("_id") ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED, `+
		`"pages" INTEGER DEFAULT 0)`, stmt.SQL)
}

func TestBuildTableTableLevelConstraints(t *testing.T) {
	tbl, err := BuildTable(reflect.TypeOf(&Author{}))
	require.NoError(t, err)
	stmt, err := ddl.BuildCreateTable(tbl, false)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE author (`+
		`"_id" INTEGER PRIMARY KEY ASC NOT NULL, `+
		`"name" TEXT NOT NULL COLLATE NOCASE, `+
		`"born" INTEGER CHECK (born > 0), `+
		`UNIQUE ("name", "born") ON CONFLICT REPLACE)`, stmt.SQL)
}

type misnamed struct {
	Title string `column:"TEXT" name:"heading"`
}

type badType struct {
	Title string `column:"VARCHAR"`
}

type noColumns struct {
	Title string
}

type emptyUnique struct {
	_ struct{} `unique:""`
	A string   `column:"TEXT"`
}

func TestBuildTableErrors(t *testing.T) {
	for name, typ := range map[string]reflect.Type{
		"misnamed":     reflect.TypeOf(misnamed{}),
		"bad type":     reflect.TypeOf(badType{}),
		"no columns":   reflect.TypeOf(noColumns{}),
		"not a struct": reflect.TypeOf(0),
		"empty unique": reflect.TypeOf(emptyUnique{}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildTable(typ)
			require.Error(t, err)
			assert.True(t, types.IsConfigError(err), "got %v", err)
		})
	}

	_, err := BuildTable(reflect.TypeOf(noColumns{}))
	assert.ErrorIs(t, err, types.ErrNotTable)
	assert.Contains(t, err.Error(), "noColumns")
}

func TestBuildDatabase(t *testing.T) {
	db, err := BuildDatabase(reflect.TypeOf(Library{}))
	require.NoError(t, err)
	assert.Equal(t, "library", db.Name)
	assert.Equal(t, 3, db.Version)
	require.Len(t, db.Tables, 2)
	assert.Equal(t, "author", db.Tables[0].Name)
	assert.Equal(t, "book", db.Tables[1].Name)

	_, err = BuildDatabase(reflect.TypeOf(TestTable{}))
	assert.ErrorIs(t, err, types.ErrNotDatabase)
}

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery(reflect.TypeOf(BooksByAuthor{}))
	require.NoError(t, err)
	assert.Equal(t, "book", q.Table.Name)
	assert.Equal(t, []string{"title", "pages"}, q.Columns)
	assert.Equal(t, []any{"10"}, q.SelectionArgs)
	assert.Equal(t, 20, q.Limit)
	require.NotNil(t, q.Join)
	assert.Equal(t, types.JoinLeft, q.Join.Type)

	c, err := query.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, "book LEFT JOIN author ON (book.author_id=author._id)", c.Table)
	assert.Equal(t, []string{"title", "pages", "name"}, c.Columns)
}

func TestBuildQueryBareTable(t *testing.T) {
	q, err := BuildQuery(reflect.TypeOf(TestTable{}))
	require.NoError(t, err)
	c, err := query.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, "test_table", c.Table)
	assert.Nil(t, c.Columns)
	assert.Nil(t, c.Defaults)
}

func TestBuildQueryRejectsOtherShapes(t *testing.T) {
	_, err := BuildQuery(reflect.TypeOf(noColumns{}))
	assert.ErrorIs(t, err, types.ErrNotQuery)
}

func TestRegistryCachesByType(t *testing.T) {
	r := New(WithCatalog(nil))
	a, err := r.LoadTable(reflect.TypeOf(Book{}))
	require.NoError(t, err)
	b, err := r.LoadTable(reflect.TypeOf(&Book{}))
	require.NoError(t, err)
	assert.Same(t, a, b)

	db, err := r.LoadDatabase(reflect.TypeOf(Library{}))
	require.NoError(t, err)
	assert.Same(t, a, db.Table("book"), "database tables come from the table cache")
}

func TestRegistryPrefersCatalog(t *testing.T) {
	pre := types.NewTable("test_table").Add(types.Column{Name: "other", Type: types.Blob})
	catalog := map[string]any{
		types.SpecKey(reflect.TypeOf(TestTable{}), types.TableSpecSuffix): pre,
	}
	r := New(WithCatalog(func(k string) (any, bool) { v, ok := catalog[k]; return v, ok }))

	got, err := r.LoadTable(reflect.TypeOf(TestTable{}))
	require.NoError(t, err)
	assert.Same(t, pre, got)
}

func TestRegistryCatalogDatabaseCachesTables(t *testing.T) {
	author := types.NewTable("author").Add(types.Column{Name: "name", Type: types.Text})
	book := types.NewTable("book").Add(types.Column{Name: "title", Type: types.Text})
	db := &types.Database{Name: "library", Version: 1, Tables: []*types.Table{author, book}}
	catalog := map[string]any{types.SpecKey(reflect.TypeOf(Library{}), types.DatabaseSpecSuffix): db}
	r := New(WithCatalog(func(k string) (any, bool) { v, ok := catalog[k]; return v, ok }))

	got, err := r.LoadDatabase(reflect.TypeOf(Library{}))
	require.NoError(t, err)
	assert.Same(t, db, got)

	tbl, err := r.LoadTable(reflect.TypeOf(Book{}))
	require.NoError(t, err)
	assert.Same(t, book, tbl)
}

func TestRegistryCatalogTypeMismatch(t *testing.T) {
	catalog := map[string]any{
		types.SpecKey(reflect.TypeOf(TestTable{}), types.TableSpecSuffix): &types.Query{},
	}
	r := New(WithCatalog(func(k string) (any, bool) { v, ok := catalog[k]; return v, ok }))

	_, err := r.LoadTable(reflect.TypeOf(TestTable{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSpecMismatch)
	assert.True(t, types.IsConfigError(err))
}

func TestRegistryConcurrentFirstUse(t *testing.T) {
	var lookups atomic.Int32
	r := New(WithCatalog(func(string) (any, bool) {
		lookups.Add(1)
		return nil, false
	}))

	const n = 32
	results := make([]*types.Table, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl, err := r.LoadTable(reflect.TypeOf(TestTable{}))
			assert.NoError(t, err)
			results[i] = tbl
		}(i)
	}
	wg.Wait()

	for _, tbl := range results {
		assert.Same(t, results[0], tbl)
	}
	assert.Equal(t, int32(1), lookups.Load(), "spec built more than once")
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
