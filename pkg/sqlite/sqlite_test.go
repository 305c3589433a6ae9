package sqlite_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/pkg/sqlite"
	"github.com/mesh-intelligence/larder/pkg/types"
)

type Note struct {
	types.WithID
	types.WithCurrentTimestamp
	Body string `column:"TEXT" notnull:""`
}

type Notes struct {
	_    struct{} `database:"version=1"`
	Note Note
}

type created struct {
	sqlite.NopHooks
	called bool
}

func (c *created) OnCreate(ctx context.Context, conn types.Conn) error {
	c.called = true
	_, err := conn.Insert(ctx, "note", types.Values{"body": "welcome"})
	return err
}

func TestOpenPublicAPI(t *testing.T) {
	ctx := context.Background()
	hooks := &created{}
	db, err := sqlite.Open(ctx, types.DefaultConfig(filepath.Join(t.TempDir(), "notes.db")), reflect.TypeOf(Notes{}), sqlite.WithHooks(hooks))
	require.NoError(t, err)
	defer db.Close(ctx)
	assert.True(t, hooks.called)

	id, err := db.Insert(ctx, "note", types.Values{"body": "hello"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)

	cur, err := db.Query(ctx, reflect.TypeOf(Note{}), types.NewFilter(0).SetOrderBy("_id"))
	require.NoError(t, err)
	require.Equal(t, 2, cur.Len())
	assert.Equal(t, []string{"_id", "_timestamp", "body"}, cur.Columns)
	body, _ := cur.Value(1, "body")
	assert.Equal(t, "hello", body)
}
