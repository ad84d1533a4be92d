package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mistlake/minisql/internal/btreeindex"
	"github.com/mistlake/minisql/internal/value"
)

func newTestDB(t *testing.T) (*Database, string, func()) {
	t.Helper()
	root, err := os.MkdirTemp("", "minisql-db-*")
	require.NoError(t, err)

	dbDir := filepath.Join(root, "db1")
	require.NoError(t, Create(dbDir))

	db, err := Open(dbDir, nil)
	require.NoError(t, err)

	cleanup := func() {
		_ = db.Close()
		_ = os.RemoveAll(root)
	}
	return db, dbDir, cleanup
}

func widgetCols() []value.Column {
	return []value.Column{
		{Name: "id", Type: value.TypeInt32, Width: 4},
		{Name: "name", Type: value.TypeChar, Width: 8},
		{Name: "qty", Type: value.TypeInt32, Width: 4},
	}
}

func TestDatabase_CreateAlreadyExistsFails(t *testing.T) {
	root, err := os.MkdirTemp("", "minisql-db-*")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	dbDir := filepath.Join(root, "db1")
	require.NoError(t, Create(dbDir))
	require.Error(t, Create(dbDir))
}

func TestDatabase_CreateTableAndInsertRoundTrips(t *testing.T) {
	db, _, cleanup := newTestDB(t)
	defer cleanup()

	_, err := db.CreateTable("widgets", widgetCols())
	require.NoError(t, err)

	pid, err := db.InsertRow("widgets", []value.Value{value.Int(1), value.Char("a"), value.Int(10)})
	require.NoError(t, err)
	require.Equal(t, int32(0), pid)

	tbl, err := db.OpenTable("widgets")
	require.NoError(t, err)
	row, live, err := tbl.ReadRowByPageID(pid)
	require.NoError(t, err)
	require.True(t, live)
	require.Equal(t, "a", row[1].S)
}

func TestDatabase_InsertMaintainsLoadedIndex(t *testing.T) {
	db, _, cleanup := newTestDB(t)
	defer cleanup()

	_, err := db.CreateTable("widgets", widgetCols())
	require.NoError(t, err)
	_, err = db.InsertRow("widgets", []value.Value{value.Int(1), value.Char("a"), value.Int(10)})
	require.NoError(t, err)

	_, err = db.CreateIndex("widgets", "qty", 3)
	require.NoError(t, err)

	pid, err := db.InsertRow("widgets", []value.Value{value.Int(2), value.Char("b"), value.Int(20)})
	require.NoError(t, err)

	ids, err := db.IndexPoint("widgets", "qty", btreeindex.IntKey(20))
	require.NoError(t, err)
	require.Equal(t, []int32{pid}, ids)
}

func TestDatabase_DeleteByPageIDRemovesExactIndexEntryAmongDuplicates(t *testing.T) {
	db, _, cleanup := newTestDB(t)
	defer cleanup()

	_, err := db.CreateTable("widgets", widgetCols())
	require.NoError(t, err)
	var pids []int32
	for i := 0; i < 5; i++ {
		pid, err := db.InsertRow("widgets", []value.Value{value.Int(int32(i + 1)), value.Char("x"), value.Int(10)})
		require.NoError(t, err)
		pids = append(pids, pid)
	}
	_, err = db.CreateIndex("widgets", "qty", 2)
	require.NoError(t, err)

	require.NoError(t, db.DeleteByPageID("widgets", pids[2]))

	lo, hi := btreeindex.IntKey(10), btreeindex.IntKey(10)
	ids, err := db.IndexRange("widgets", "qty", &lo, &hi)
	require.NoError(t, err)
	require.Len(t, ids, 4)
	for _, id := range ids {
		require.NotEqual(t, pids[2], id)
	}

	tbl, err := db.OpenTable("widgets")
	require.NoError(t, err)
	_, live, err := tbl.ReadRowByPageID(pids[2])
	require.NoError(t, err)
	require.False(t, live)

	idVal, err := tbl.ReadInt(pids[2], "id")
	require.NoError(t, err)
	require.Equal(t, int32(-1), idVal)
}

func TestDatabase_UpdateRowsByPageIDsCrossesIndex(t *testing.T) {
	db, _, cleanup := newTestDB(t)
	defer cleanup()

	_, err := db.CreateTable("widgets", widgetCols())
	require.NoError(t, err)
	pid, err := db.InsertRow("widgets", []value.Value{value.Int(1), value.Char("a"), value.Int(10)})
	require.NoError(t, err)
	_, err = db.CreateIndex("widgets", "qty", 2)
	require.NoError(t, err)

	n, err := db.UpdateRowsByPageIDs("widgets", []int32{pid}, SetList{{Column: "qty", Value: value.Int(25)}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ids, err := db.IndexPoint("widgets", "qty", btreeindex.IntKey(25))
	require.NoError(t, err)
	require.Equal(t, []int32{pid}, ids)

	_, err = db.IndexPoint("widgets", "qty", btreeindex.IntKey(10))
	require.NoError(t, err)
}

func TestDatabase_ListTables(t *testing.T) {
	db, _, cleanup := newTestDB(t)
	defer cleanup()

	_, err := db.CreateTable("widgets", widgetCols())
	require.NoError(t, err)
	_, err = db.CreateTable("gadgets", widgetCols())
	require.NoError(t, err)

	names, err := db.ListTables()
	require.NoError(t, err)
	require.Equal(t, []string{"gadgets", "widgets"}, names)
}

func TestDatabase_IndexesReloadAfterReopen(t *testing.T) {
	db, dbDir, cleanup := newTestDB(t)
	defer cleanup()

	_, err := db.CreateTable("widgets", widgetCols())
	require.NoError(t, err)
	pid, err := db.InsertRow("widgets", []value.Value{value.Int(1), value.Char("a"), value.Int(10)})
	require.NoError(t, err)
	_, err = db.CreateIndex("widgets", "qty", 2)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(dbDir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.IndexPoint("widgets", "qty", btreeindex.IntKey(10))
	require.NoError(t, err)
	require.Equal(t, []int32{pid}, ids)
}
