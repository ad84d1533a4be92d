package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_CreateDatabase(t *testing.T) {
	stmt, err := Parse("CREATE DATABASE db1")
	require.NoError(t, err)
	require.Equal(t, &CreateDatabaseStmt{Name: "db1"}, stmt)
}

func TestParse_UseDatabase(t *testing.T) {
	stmt, err := Parse("USE /tmp/db1")
	require.NoError(t, err)
	require.Equal(t, &UseDatabaseStmt{Name: "/tmp/db1"}, stmt)
}

func TestParse_CloseVariants(t *testing.T) {
	for _, sql := range []string{"CLOSE DATABASE", "CLOSE", "close database;"} {
		stmt, err := Parse(sql)
		require.NoError(t, err)
		require.IsType(t, &CloseDatabaseStmt{}, stmt)
	}
}

func TestParse_ShowTables(t *testing.T) {
	stmt, err := Parse("SHOW TABLES")
	require.NoError(t, err)
	require.IsType(t, &ShowTablesStmt{}, stmt)
}

func TestParse_CreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE t (name CHAR(8), qty INT, weight FLOAT)")
	require.NoError(t, err)
	ct := stmt.(*CreateTableStmt)
	require.Equal(t, "t", ct.TableName)
	require.Equal(t, []ColumnDef{
		{Name: "name", Type: "CHAR", CharLen: 8},
		{Name: "qty", Type: "INT"},
		{Name: "weight", Type: "FLOAT"},
	}, ct.Columns)
}

func TestParse_CreateTable_InvalidColumnType(t *testing.T) {
	_, err := Parse("CREATE TABLE t (name TEXT)")
	require.Error(t, err)
}

func TestParse_InsertWithColumns(t *testing.T) {
	stmt, err := Parse("INSERT INTO t (name, qty) VALUES ('a', 10)")
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	require.Equal(t, "t", ins.TableName)
	require.Equal(t, []string{"name", "qty"}, ins.Columns)
	require.Equal(t, []Literal{{Quoted: true, Text: "a"}, {Quoted: false, Text: "10"}}, ins.Values)
}

func TestParse_InsertWithoutColumns(t *testing.T) {
	stmt, err := Parse("INSERT INTO t VALUES (1, 'a', 10)")
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	require.Nil(t, ins.Columns)
	require.Len(t, ins.Values, 3)
}

func TestParse_InsertColumnValueCountMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO t (name, qty) VALUES ('a')")
	require.Error(t, err)
}

func TestParse_SelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, "t", sel.TableName)
	require.Nil(t, sel.Proj)
	require.Nil(t, sel.Where)
}

func TestParse_SelectProjectionWithWhere(t *testing.T) {
	stmt, err := Parse("SELECT name FROM t WHERE qty >= 15 AND qty <= 30")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, []string{"name"}, sel.Proj)
	require.NotNil(t, sel.Where)
	require.Equal(t, "qty", sel.Where.P1.Column)
	require.Equal(t, OpGE, sel.Where.P1.Op)
	require.Equal(t, "15", sel.Where.P1.Value.Text)
	require.Equal(t, ConnAnd, sel.Where.Conn)
	require.NotNil(t, sel.Where.P2)
	require.Equal(t, OpLE, sel.Where.P2.Op)
	require.Equal(t, "30", sel.Where.P2.Value.Text)
}

func TestParse_SelectWhereOr(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE qty == 10 OR qty == 20")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, ConnOr, sel.Where.Conn)
}

func TestParse_SelectWhereNotEqual(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE name != 'b'")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, OpNE, sel.Where.P1.Op)
	require.Equal(t, "b", sel.Where.P1.Value.Text)
	require.True(t, sel.Where.P1.Value.Quoted)
}

func TestParse_DeleteWithWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM t WHERE qty == 10")
	require.NoError(t, err)
	del := stmt.(*DeleteStmt)
	require.Equal(t, "t", del.TableName)
	require.Equal(t, OpEQ, del.Where.P1.Op)
}

func TestParse_DeleteWithoutWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM t")
	require.NoError(t, err)
	del := stmt.(*DeleteStmt)
	require.Nil(t, del.Where)
}

func TestParse_Update(t *testing.T) {
	stmt, err := Parse("UPDATE t SET qty = 25, name = 'z' WHERE name == 'b'")
	require.NoError(t, err)
	upd := stmt.(*UpdateStmt)
	require.Equal(t, "t", upd.TableName)
	require.Equal(t, []Assignment{
		{Column: "qty", Value: Literal{Text: "25"}},
		{Column: "name", Value: Literal{Quoted: true, Text: "z"}},
	}, upd.Assignments)
	require.NotNil(t, upd.Where)
}

func TestParse_UpdateMissingSet(t *testing.T) {
	_, err := Parse("UPDATE t WHERE id == 1")
	require.Error(t, err)
}

func TestParse_CreateIndex(t *testing.T) {
	stmt, err := Parse("CREATE INDEX ix_q ON t (qty)")
	require.NoError(t, err)
	ci := stmt.(*CreateIndexStmt)
	require.Equal(t, "ix_q", ci.IndexName)
	require.Equal(t, "t", ci.TableName)
	require.Equal(t, "qty", ci.Column)
}

func TestParse_RejectsUnsupported(t *testing.T) {
	_, err := Parse("ALTER TABLE t ADD COLUMN x INT")
	require.Error(t, err)
}

func TestParse_RejectsEmpty(t *testing.T) {
	_, err := Parse("   ")
	require.Error(t, err)
}

func TestParse_WhereOperatorDisambiguation(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE qty >= 10")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Equal(t, OpGE, sel.Where.P1.Op)

	stmt2, err := Parse("SELECT * FROM t WHERE qty > 10")
	require.NoError(t, err)
	sel2 := stmt2.(*SelectStmt)
	require.Equal(t, OpGT, sel2.Where.P1.Op)
}

func TestSplitComma(t *testing.T) {
	got := splitComma("1,'a,b',10,'x'")
	require.Equal(t, []string{"1", "'a,b'", "10", "'x'"}, got)
}

func TestSplitKeyword(t *testing.T) {
	left, right := splitKeyword("t WHERE qty == 1", "WHERE")
	require.Equal(t, "t", left)
	require.Equal(t, "qty == 1", right)

	left, right = splitKeyword("t", "WHERE")
	require.Equal(t, "t", left)
	require.Empty(t, right)
}
