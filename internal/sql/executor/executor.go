// Package executor dispatches parsed statements against an open
// database, driving the planner for WHERE-bearing reads and formatting
// tabular results the way the original CLI does.
package executor

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/mistlake/minisql/internal/btreeindex"
	"github.com/mistlake/minisql/internal/database"
	"github.com/mistlake/minisql/internal/dberrors"
	"github.com/mistlake/minisql/internal/sql/parser"
	"github.com/mistlake/minisql/internal/sql/planner"
	"github.com/mistlake/minisql/internal/table"
	"github.com/mistlake/minisql/internal/value"
)

// State is the executor session's open/closed state, per spec.md §4.6.
type State int

const (
	Idle State = iota
	Open
)

// Result is the outcome of one Execute call: either a row set (SELECT)
// or an affected-row count (INSERT/UPDATE/DELETE/DDL), or an error.
type Result struct {
	Columns      []string
	Rows         [][]string
	AffectedRows int
	Counter      string // e.g. "(filas: 2)"; empty when nothing to report
	Err          error
}

// Executor owns one Database and the Idle/Open session state.
type Executor struct {
	log   *slog.Logger
	db    *database.Database
	state State
	dir   string

	defaultIndexT int32
}

// New creates an executor in the Idle state. defaultIndexT is the
// minimum degree used for the implicit id index SELECT * creates and
// for CREATE INDEX; a value <= 0 selects database.DefaultIndexDegree.
func New(logger *slog.Logger, defaultIndexT int32) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultIndexT <= 0 {
		defaultIndexT = database.DefaultIndexDegree
	}
	return &Executor{log: logger, state: Idle, defaultIndexT: defaultIndexT}
}

// State reports the current session state.
func (ex *Executor) State() State { return ex.state }

// Close drops the open database, if any, returning the executor to Idle.
func (ex *Executor) Close() error {
	if ex.state == Idle {
		return nil
	}
	err := ex.db.Close()
	ex.db = nil
	ex.dir = ""
	ex.state = Idle
	return err
}

// Execute parses and runs one SQL statement. It never returns a Go
// error directly; parse/exec failures are reported in Result.Err and
// the caller formats them as "Error: <reason>" per spec.md §7.
func (ex *Executor) Execute(sql string) Result {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", dberrors.ErrSyntax, err)}
	}

	switch s := stmt.(type) {
	case *parser.CreateDatabaseStmt:
		return ex.execCreateDatabase(s)
	case *parser.UseDatabaseStmt:
		return ex.execUse(s)
	case *parser.CloseDatabaseStmt:
		return ex.execClose()
	case *parser.ShowTablesStmt:
		return ex.requireOpen(ex.execShowTables)
	case *parser.CreateTableStmt:
		return ex.requireOpen(func() Result { return ex.execCreateTable(s) })
	case *parser.InsertStmt:
		return ex.requireOpen(func() Result { return ex.execInsert(s) })
	case *parser.SelectStmt:
		return ex.requireOpen(func() Result { return ex.execSelect(s) })
	case *parser.DeleteStmt:
		return ex.requireOpen(func() Result { return ex.execDelete(s) })
	case *parser.UpdateStmt:
		return ex.requireOpen(func() Result { return ex.execUpdate(s) })
	case *parser.CreateIndexStmt:
		return ex.requireOpen(func() Result { return ex.execCreateIndex(s) })
	default:
		return Result{Err: fmt.Errorf("%w: unrecognized statement", dberrors.ErrSyntax)}
	}
}

func (ex *Executor) requireOpen(fn func() Result) Result {
	if ex.state != Open {
		return Result{Err: dberrors.ErrNoDatabaseOpen}
	}
	return fn()
}

// execCreateDatabase stays in the current state, per REDESIGN FLAG #3:
// CREATE DATABASE never auto-USEs the database it creates.
func (ex *Executor) execCreateDatabase(s *parser.CreateDatabaseStmt) Result {
	if err := database.Create(s.Name); err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func (ex *Executor) execUse(s *parser.UseDatabaseStmt) Result {
	db, err := database.Open(s.Name, ex.log)
	if err != nil {
		return Result{Err: err}
	}
	if ex.state == Open {
		_ = ex.db.Close()
	}
	ex.db = db
	ex.dir = s.Name
	ex.state = Open
	return Result{}
}

func (ex *Executor) execClose() Result {
	if ex.state != Open {
		return Result{Err: dberrors.ErrNoDatabaseOpen}
	}
	err := ex.db.Close()
	ex.db = nil
	ex.dir = ""
	ex.state = Idle
	if err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func (ex *Executor) execShowTables() Result {
	names, err := ex.db.ListTables()
	if err != nil {
		return Result{Err: err}
	}
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	return Result{Columns: []string{"table"}, Rows: rows, Counter: fmt.Sprintf("(filas: %d)", len(names))}
}

func (ex *Executor) execCreateTable(s *parser.CreateTableStmt) Result {
	cols := make([]value.Column, 0, len(s.Columns)+1)
	cols = append(cols, value.Column{Name: "id", Type: value.TypeInt32, Width: 4})
	for _, c := range s.Columns {
		vt, width, err := columnType(c)
		if err != nil {
			return Result{Err: err}
		}
		cols = append(cols, value.Column{Name: c.Name, Type: vt, Width: width})
	}
	if _, err := ex.db.CreateTable(s.TableName, cols); err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func columnType(c parser.ColumnDef) (value.Type, int32, error) {
	switch c.Type {
	case "INT":
		return value.TypeInt32, 4, nil
	case "FLOAT":
		return value.TypeFloat32, 4, nil
	case "CHAR":
		w, err := value.TypeChar.Width(c.CharLen)
		return value.TypeChar, w, err
	default:
		return 0, 0, fmt.Errorf("executor: unknown column type %q: %w", c.Type, dberrors.ErrSchema)
	}
}

func (ex *Executor) execInsert(s *parser.InsertStmt) Result {
	tbl, err := ex.db.OpenTable(s.TableName)
	if err != nil {
		return Result{Err: err}
	}

	row := make([]value.Value, len(tbl.Cols))
	for i, c := range tbl.Cols {
		switch c.Type {
		case value.TypeInt32:
			row[i] = value.Int(0)
		case value.TypeFloat32:
			row[i] = value.Float(0)
		case value.TypeChar:
			row[i] = value.Char("")
		}
	}

	colIdx := func(name string) int {
		for i, c := range tbl.Cols {
			if c.Name == name {
				return i
			}
		}
		return -1
	}

	idIdx := colIdx("id")
	idProvided := false

	cols := s.Columns
	if len(cols) == 0 {
		// No column list: values are assigned positionally to every
		// declared column in order (including the implicit id).
		if len(s.Values) != len(tbl.Cols) {
			return Result{Err: fmt.Errorf("executor: expected %d values, got %d: %w", len(tbl.Cols), len(s.Values), dberrors.ErrSyntax)}
		}
		for i, lit := range s.Values {
			v, err := litToValue(lit, tbl.Cols[i].Type)
			if err != nil {
				return Result{Err: err}
			}
			row[i] = v
			if i == idIdx {
				idProvided = true
			}
		}
	} else {
		if len(cols) != len(s.Values) {
			return Result{Err: fmt.Errorf("executor: %d columns but %d values: %w", len(cols), len(s.Values), dberrors.ErrSyntax)}
		}
		for k, colName := range cols {
			i := colIdx(colName)
			if i < 0 {
				return Result{Err: fmt.Errorf("executor: unknown column %s: %w", colName, dberrors.ErrSchema)}
			}
			v, err := litToValue(s.Values[k], tbl.Cols[i].Type)
			if err != nil {
				return Result{Err: err}
			}
			row[i] = v
			if i == idIdx {
				idProvided = true
			}
		}
	}

	if idIdx >= 0 && !idProvided {
		count, err := tbl.Count()
		if err != nil {
			return Result{Err: err}
		}
		row[idIdx] = value.Int(count + 1)
	}

	if _, err := ex.db.InsertRow(s.TableName, row); err != nil {
		return Result{Err: err}
	}
	return Result{AffectedRows: 1}
}

// litToValue types a parsed literal against a target column, per
// spec.md §4.5: numeric literals parse as INT/FLOAT according to the
// column, CHAR literals may be bare or quoted.
func litToValue(lit parser.Literal, target value.Type) (value.Value, error) {
	switch target {
	case value.TypeInt32:
		n, err := strconv.ParseInt(lit.Text, 10, 32)
		if err != nil {
			return value.Value{}, fmt.Errorf("executor: %q is not an INT: %w", lit.Text, dberrors.ErrType)
		}
		return value.Int(int32(n)), nil
	case value.TypeFloat32:
		f, err := strconv.ParseFloat(lit.Text, 32)
		if err != nil {
			return value.Value{}, fmt.Errorf("executor: %q is not a FLOAT: %w", lit.Text, dberrors.ErrType)
		}
		return value.Float(float32(f)), nil
	case value.TypeChar:
		return value.Char(lit.Text), nil
	default:
		return value.Value{}, fmt.Errorf("executor: unknown target type: %w", dberrors.ErrSchema)
	}
}

func (ex *Executor) execCreateIndex(s *parser.CreateIndexStmt) Result {
	if _, err := ex.db.CreateIndex(s.TableName, s.Column, ex.defaultIndexT); err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func (ex *Executor) execSelect(s *parser.SelectStmt) Result {
	tbl, err := ex.db.OpenTable(s.TableName)
	if err != nil {
		return Result{Err: err}
	}

	if len(s.Proj) == 0 && !ex.db.HasIndex(s.TableName, "id") {
		if _, err := ex.db.CreateIndex(s.TableName, "id", ex.defaultIndexT); err != nil {
			ex.log.Warn("executor: default id index creation failed", "table", s.TableName, "error", err)
		}
	}

	projIdx, projNames, err := resolveProjection(tbl.Cols, s.Proj)
	if err != nil {
		return Result{Err: err}
	}

	pids, err := ex.candidatePageIDs(s.TableName, tbl, s.Where)
	if err != nil {
		return Result{Err: err}
	}

	var rows [][]string
	n := 0
	for _, pid := range pids {
		row, live, err := tbl.ReadRowByPageID(pid)
		if err != nil {
			return Result{Err: err}
		}
		if !live || !rowLive(tbl.Cols, row) {
			continue
		}
		if s.Where != nil && !evalWhere(s.Where, tbl.Cols, row) {
			continue
		}
		out := make([]string, len(projIdx))
		for j, ci := range projIdx {
			out[j] = row[ci].String()
		}
		rows = append(rows, out)
		n++
	}

	return Result{Columns: projNames, Rows: rows, Counter: fmt.Sprintf("(filas: %d)", n)}
}

func resolveProjection(cols []value.Column, proj []string) (idx []int, names []string, err error) {
	if len(proj) == 0 {
		idx = make([]int, len(cols))
		names = make([]string, len(cols))
		for i, c := range cols {
			idx[i] = i
			names[i] = c.Name
		}
		return idx, names, nil
	}
	for _, p := range proj {
		found := -1
		for i, c := range cols {
			if c.Name == p {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, nil, fmt.Errorf("executor: unknown column %s: %w", p, dberrors.ErrSchema)
		}
		idx = append(idx, found)
		names = append(names, p)
	}
	return idx, names, nil
}

func rowLive(cols []value.Column, row []value.Value) bool {
	for i, c := range cols {
		if c.Name == "id" && c.Type == value.TypeInt32 {
			return row[i].I != -1
		}
	}
	return true
}

// candidatePageIDs drives the planner off where.P1 when its column has
// an on-disk index, falling back to a full sequential scan otherwise,
// then deduplicates and sorts (range/union plans can overlap or come
// back unordered relative to page id).
func (ex *Executor) candidatePageIDs(tableName string, tbl *table.Table, where *parser.WhereExpr) ([]int32, error) {
	count, err := tbl.Count()
	if err != nil {
		return nil, err
	}

	if where == nil {
		return seq(count), nil
	}

	colIdx := -1
	for i, c := range tbl.Cols {
		if c.Name == where.P1.Column {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("executor: unknown column %s: %w", where.P1.Column, dberrors.ErrSchema)
	}
	colType := tbl.Cols[colIdx].Type

	hasIndex := func(col string) bool { return ex.db.HasIndex(tableName, col) }
	keyFor := func(lit parser.Literal) (btreeindex.Key, value.Type, error) {
		v, err := litToValue(lit, colType)
		if err != nil {
			return btreeindex.Key{}, 0, err
		}
		k, err := keyForValue(v)
		return k, colType, err
	}

	plan, err := planner.BuildPlan(where, hasIndex, keyFor)
	if err != nil {
		return nil, err
	}

	switch plan.Kind {
	case planner.SeqScan:
		return seq(count), nil
	case planner.IndexPoint:
		return ex.db.IndexPoint(tableName, plan.Column, plan.Point)
	case planner.IndexRange:
		ids, err := ex.db.IndexRange(tableName, plan.Column, plan.Lo, plan.Hi)
		if err != nil {
			return nil, err
		}
		return dedupSorted(ids), nil
	case planner.IndexUnion:
		a, err := ex.db.IndexRange(tableName, plan.Column, plan.RangeALo, plan.RangeAHi)
		if err != nil {
			return nil, err
		}
		b, err := ex.db.IndexRange(tableName, plan.Column, plan.RangeBLo, plan.RangeBHi)
		if err != nil {
			return nil, err
		}
		return dedupSorted(append(a, b...)), nil
	default:
		return seq(count), nil
	}
}

func seq(n int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func dedupSorted(ids []int32) []int32 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	var prev int32 = -1
	first := true
	for _, id := range ids {
		if first || id != prev {
			out = append(out, id)
			prev = id
			first = false
		}
	}
	return out
}

func keyForValue(v value.Value) (btreeindex.Key, error) {
	switch v.Type {
	case value.TypeInt32:
		return btreeindex.IntKey(v.I), nil
	case value.TypeFloat32:
		return btreeindex.FloatKey(v.F), nil
	case value.TypeChar:
		return btreeindex.CharKey(v.S), nil
	default:
		return btreeindex.Key{}, fmt.Errorf("executor: unknown value type: %w", dberrors.ErrSchema)
	}
}

func evalPredicate(p parser.Predicate, cols []value.Column, row []value.Value) bool {
	ci := -1
	for i, c := range cols {
		if c.Name == p.Column {
			ci = i
			break
		}
	}
	if ci < 0 {
		return false
	}
	rhs, err := litToValue(p.Value, cols[ci].Type)
	if err != nil {
		return false
	}
	lhs := row[ci]

	switch cols[ci].Type {
	case value.TypeInt32:
		return compareOrdered(int64(lhs.I), int64(rhs.I), p.Op)
	case value.TypeFloat32:
		return compareOrdered(float64(lhs.F), float64(rhs.F), p.Op)
	default:
		return compareOrdered(lhs.S, rhs.S, p.Op)
	}
}

func compareOrdered[T int64 | float64 | string](a, b T, op parser.Op) bool {
	switch op {
	case parser.OpEQ:
		return a == b
	case parser.OpNE:
		return a != b
	case parser.OpGE:
		return a >= b
	case parser.OpLE:
		return a <= b
	case parser.OpGT:
		return a > b
	case parser.OpLT:
		return a < b
	default:
		return false
	}
}

func evalWhere(w *parser.WhereExpr, cols []value.Column, row []value.Value) bool {
	r1 := evalPredicate(w.P1, cols, row)
	if w.Conn == parser.ConnNone || w.P2 == nil {
		return r1
	}
	r2 := evalPredicate(*w.P2, cols, row)
	if w.Conn == parser.ConnAnd {
		return r1 && r2
	}
	return r1 || r2
}

func (ex *Executor) execDelete(s *parser.DeleteStmt) Result {
	tbl, err := ex.db.OpenTable(s.TableName)
	if err != nil {
		return Result{Err: err}
	}
	pids, err := ex.candidatePageIDs(s.TableName, tbl, s.Where)
	if err != nil {
		return Result{Err: err}
	}

	deleted := 0
	for _, pid := range pids {
		row, live, err := tbl.ReadRowByPageID(pid)
		if err != nil {
			return Result{Err: err}
		}
		if !live || !rowLive(tbl.Cols, row) {
			continue
		}
		if s.Where != nil && !evalWhere(s.Where, tbl.Cols, row) {
			continue
		}
		if err := ex.db.DeleteByPageID(s.TableName, pid); err != nil {
			return Result{Err: err}
		}
		deleted++
	}
	return Result{AffectedRows: deleted, Counter: fmt.Sprintf("(filas borradas: %d)", deleted)}
}

func (ex *Executor) execUpdate(s *parser.UpdateStmt) Result {
	tbl, err := ex.db.OpenTable(s.TableName)
	if err != nil {
		return Result{Err: err}
	}
	pids, err := ex.candidatePageIDs(s.TableName, tbl, s.Where)
	if err != nil {
		return Result{Err: err}
	}

	var matched []int32
	for _, pid := range pids {
		row, live, err := tbl.ReadRowByPageID(pid)
		if err != nil {
			return Result{Err: err}
		}
		if !live || !rowLive(tbl.Cols, row) {
			continue
		}
		if s.Where != nil && !evalWhere(s.Where, tbl.Cols, row) {
			continue
		}
		matched = append(matched, pid)
	}

	sets := make(database.SetList, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		ci := -1
		for i, c := range tbl.Cols {
			if c.Name == a.Column {
				ci = i
				break
			}
		}
		if ci < 0 {
			return Result{Err: fmt.Errorf("executor: unknown column %s: %w", a.Column, dberrors.ErrSchema)}
		}
		v, err := litToValue(a.Value, tbl.Cols[ci].Type)
		if err != nil {
			return Result{Err: err}
		}
		sets = append(sets, database.SetItem{Column: a.Column, Value: v})
	}

	n, err := ex.db.UpdateRowsByPageIDs(s.TableName, matched, sets)
	if err != nil {
		return Result{Err: err}
	}
	return Result{AffectedRows: n, Counter: fmt.Sprintf("(filas actualizadas: %d)", n)}
}
