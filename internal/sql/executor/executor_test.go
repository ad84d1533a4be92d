package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	root, err := os.MkdirTemp("", "minisql-exec-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(root) })
	return New(nil, 8), filepath.Join(root, "db1")
}

func TestExecutor_S1_CreateAndInsert(t *testing.T) {
	ex, dbPath := newTestExecutor(t)

	require.Nil(t, ex.Execute("CREATE DATABASE "+dbPath).Err)
	require.Equal(t, Idle, ex.State())

	require.Nil(t, ex.Execute("USE "+dbPath).Err)
	require.Equal(t, Open, ex.State())

	require.Nil(t, ex.Execute("CREATE TABLE t (name CHAR(8), qty INT)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('a', 10)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('b', 20)").Err)

	r := ex.Execute("SELECT * FROM t")
	require.NoError(t, r.Err)
	require.Equal(t, []string{"id", "name", "qty"}, r.Columns)
	require.Equal(t, [][]string{{"1", "a", "10"}, {"2", "b", "20"}}, r.Rows)
	require.Equal(t, "(filas: 2)", r.Counter)
}

func TestExecutor_S2_IndexRange(t *testing.T) {
	ex, dbPath := newTestExecutor(t)
	require.Nil(t, ex.Execute("CREATE DATABASE "+dbPath).Err)
	require.Nil(t, ex.Execute("USE "+dbPath).Err)
	require.Nil(t, ex.Execute("CREATE TABLE t (name CHAR(8), qty INT)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('a', 10)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('b', 20)").Err)

	require.Nil(t, ex.Execute("CREATE INDEX ix_q ON t (qty)").Err)

	r := ex.Execute("SELECT name FROM t WHERE qty >= 15 AND qty <= 30")
	require.NoError(t, r.Err)
	require.Equal(t, []string{"name"}, r.Columns)
	require.Equal(t, [][]string{{"b"}}, r.Rows)
	require.Equal(t, "(filas: 1)", r.Counter)
}

func TestExecutor_S3_DeleteAndReselect(t *testing.T) {
	ex, dbPath := newTestExecutor(t)
	require.Nil(t, ex.Execute("CREATE DATABASE "+dbPath).Err)
	require.Nil(t, ex.Execute("USE "+dbPath).Err)
	require.Nil(t, ex.Execute("CREATE TABLE t (name CHAR(8), qty INT)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('a', 10)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('b', 20)").Err)

	del := ex.Execute("DELETE FROM t WHERE qty == 10")
	require.NoError(t, del.Err)
	require.Equal(t, "(filas borradas: 1)", del.Counter)

	r := ex.Execute("SELECT * FROM t")
	require.NoError(t, r.Err)
	require.Equal(t, [][]string{{"2", "b", "20"}}, r.Rows)
	require.Equal(t, "(filas: 1)", r.Counter)

	tbl, err := ex.db.OpenTable("t")
	require.NoError(t, err)
	deleted, err := tbl.IsDeleted(0)
	require.NoError(t, err)
	require.True(t, deleted)
	idVal, err := tbl.ReadInt(0, "id")
	require.NoError(t, err)
	require.Equal(t, int32(-1), idVal)
}

func TestExecutor_S4_UpdateCrossesIndex(t *testing.T) {
	ex, dbPath := newTestExecutor(t)
	require.Nil(t, ex.Execute("CREATE DATABASE "+dbPath).Err)
	require.Nil(t, ex.Execute("USE "+dbPath).Err)
	require.Nil(t, ex.Execute("CREATE TABLE t (name CHAR(8), qty INT)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('a', 10)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('b', 20)").Err)
	require.Nil(t, ex.Execute("CREATE INDEX ix_q ON t (qty)").Err)

	upd := ex.Execute("UPDATE t SET qty = 25 WHERE name == 'b'")
	require.NoError(t, upd.Err)
	require.Equal(t, "(filas actualizadas: 1)", upd.Counter)

	r := ex.Execute("SELECT * FROM t WHERE qty == 25")
	require.NoError(t, r.Err)
	require.Equal(t, [][]string{{"2", "b", "25"}}, r.Rows)
}

func TestExecutor_S5_PersistsAcrossClose(t *testing.T) {
	ex, dbPath := newTestExecutor(t)
	require.Nil(t, ex.Execute("CREATE DATABASE "+dbPath).Err)
	require.Nil(t, ex.Execute("USE "+dbPath).Err)
	require.Nil(t, ex.Execute("CREATE TABLE t (name CHAR(8), qty INT)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('a', 10)").Err)
	require.Nil(t, ex.Execute("INSERT INTO t (name, qty) VALUES ('b', 20)").Err)
	require.Nil(t, ex.Execute("CREATE INDEX ix_q ON t (qty)").Err)
	require.Nil(t, ex.Execute("UPDATE t SET qty = 25 WHERE name == 'b'").Err)

	require.Nil(t, ex.Execute("CLOSE DATABASE").Err)
	require.Equal(t, Idle, ex.State())

	ex2 := New(nil, 8)
	require.Nil(t, ex2.Execute("USE "+dbPath).Err)
	r := ex2.Execute("SELECT * FROM t WHERE qty == 25")
	require.NoError(t, r.Err)
	require.Equal(t, [][]string{{"2", "b", "25"}}, r.Rows)
	require.NoError(t, ex2.Close())
}

func TestExecutor_NoDatabaseOpenFailsNonDDL(t *testing.T) {
	ex, _ := newTestExecutor(t)
	r := ex.Execute("SHOW TABLES")
	require.Error(t, r.Err)
}

func TestExecutor_CreateDatabaseDoesNotAutoUse(t *testing.T) {
	ex, dbPath := newTestExecutor(t)
	require.Nil(t, ex.Execute("CREATE DATABASE "+dbPath).Err)
	require.Equal(t, Idle, ex.State())
}

func TestExecutor_RenderFormatsErrorLine(t *testing.T) {
	ex, _ := newTestExecutor(t)
	r := ex.Execute("SHOW TABLES")
	require.Contains(t, r.Render(), "Error: ")
}
