// Package database owns a database directory's lifecycle: the per-table
// handle registry, the per-table-per-column index registry, lazy index
// discovery, and the mutation paths (insert/update/delete) that keep
// every loaded index consistent with the table it covers.
package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mistlake/minisql/internal/btreeindex"
	"github.com/mistlake/minisql/internal/dberrors"
	"github.com/mistlake/minisql/internal/table"
	"github.com/mistlake/minisql/internal/value"
)

// DefaultIndexDegree is the minimum degree EnsureDefaultIndex uses, and
// the one the executor falls back to when it is given no degree.
const DefaultIndexDegree = 8

// Database is one open database directory.
type Database struct {
	dir string
	log *slog.Logger

	tables       map[string]*table.Table
	indexes      map[string]map[string]*btreeindex.Tree
	indexLoaded  map[string]bool
	insertOrder  []string // table names, insertion order, for deterministic Close
}

// Create makes a brand-new, empty database directory at dir. It fails if
// dir already exists.
func Create(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("database: %s: %w", dir, dberrors.ErrExists)
	}
	return os.MkdirAll(dir, 0o755)
}

// Open activates an existing database directory.
func Open(dir string, logger *slog.Logger) (*Database, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("database: %s: %w", dir, dberrors.ErrNotFound)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Database{
		dir:         dir,
		log:         logger,
		tables:      make(map[string]*table.Table),
		indexes:     make(map[string]map[string]*btreeindex.Tree),
		indexLoaded: make(map[string]bool),
	}, nil
}

// Dir returns the database's root directory.
func (db *Database) Dir() string { return db.dir }

// Close releases every open table and index handle, in the reverse order
// tables were first referenced.
func (db *Database) Close() error {
	var firstErr error
	for i := len(db.insertOrder) - 1; i >= 0; i-- {
		name := db.insertOrder[i]
		for _, ix := range db.indexes[name] {
			if err := ix.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if t, ok := db.tables[name]; ok {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	db.tables = make(map[string]*table.Table)
	db.indexes = make(map[string]map[string]*btreeindex.Tree)
	db.indexLoaded = make(map[string]bool)
	db.insertOrder = nil
	return firstErr
}

func (db *Database) tableDir(name string) string { return filepath.Join(db.dir, name) }

func (db *Database) remember(name string) {
	if _, ok := db.tables[name]; !ok {
		db.insertOrder = append(db.insertOrder, name)
	}
}

// CreateTable allocates a new table directory and registers its handle.
func (db *Database) CreateTable(name string, cols []value.Column) (*table.Table, error) {
	if _, ok := db.tables[name]; ok {
		return nil, fmt.Errorf("database: table %s: %w", name, dberrors.ErrExists)
	}
	if _, err := os.Stat(filepath.Join(db.tableDir(name), name+".tbl")); err == nil {
		return nil, fmt.Errorf("database: table %s: %w", name, dberrors.ErrExists)
	}

	t, err := table.Create(db.tableDir(name), name, cols)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	db.indexes[name] = make(map[string]*btreeindex.Tree)
	db.remember(name)
	return t, nil
}

// OpenTable returns the registered handle for name, opening it from disk
// on first reference.
func (db *Database) OpenTable(name string) (*table.Table, error) {
	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	t, err := table.Open(db.tableDir(name), name)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	db.indexes[name] = make(map[string]*btreeindex.Tree)
	db.remember(name)
	return t, nil
}

// ListTables returns the names of every table subdirectory under the
// database root that contains a matching <name>.tbl file.
func (db *Database) ListTables() ([]string, error) {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(db.dir, e.Name(), e.Name()+".tbl")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func kindForType(t value.Type) (btreeindex.Kind, error) {
	switch t {
	case value.TypeInt32:
		return btreeindex.KindInt32, nil
	case value.TypeFloat32:
		return btreeindex.KindFloat32, nil
	case value.TypeChar:
		return btreeindex.KindChar, nil
	default:
		return 0, fmt.Errorf("database: unknown column type %s: %w", t, dberrors.ErrSchema)
	}
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
		return btreeindex.Key{}, fmt.Errorf("database: unknown value type %s: %w", v.Type, dberrors.ErrSchema)
	}
}

func indexPath(tableDir, tableName, column string, kind btreeindex.Kind) string {
	return filepath.Join(tableDir, fmt.Sprintf("%s_%s.%s", tableName, column, btreeindex.Extension(kind)))
}

// idLive reports whether row represents a row not already tombstoned by
// the in-row id==-1 convention. Tables without an id column are always
// considered live by this check; the sidecar byte is the authority there.
func idLive(cols []value.Column, row []value.Value) bool {
	for i, c := range cols {
		if c.Name == "id" && c.Type == value.TypeInt32 {
			return row[i].I != -1
		}
	}
	return true
}

// CreateIndex builds a new on-disk B-tree over table.column by a full
// table scan, and registers the resulting handle. t is the B-tree's
// minimum degree.
func (db *Database) CreateIndex(tableName, column string, t int32) (*btreeindex.Tree, error) {
	tbl, err := db.OpenTable(tableName)
	if err != nil {
		return nil, err
	}
	colIdx := -1
	for i, c := range tbl.Cols {
		if c.Name == column {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("database: column %s: %w", column, dberrors.ErrSchema)
	}
	kind, err := kindForType(tbl.Cols[colIdx].Type)
	if err != nil {
		return nil, err
	}

	path := indexPath(db.tableDir(tableName), tableName, column, kind)
	ix, err := btreeindex.Create(path, kind, t)
	if err != nil {
		return nil, err
	}

	count, err := tbl.Count()
	if err != nil {
		ix.Close()
		return nil, err
	}
	for pid := int32(0); pid < count; pid++ {
		row, live, err := tbl.ReadRowByPageID(pid)
		if err != nil {
			ix.Close()
			return nil, err
		}
		if !live || !idLive(tbl.Cols, row) {
			continue
		}
		key, err := keyForValue(row[colIdx])
		if err != nil {
			ix.Close()
			return nil, err
		}
		if err := ix.Insert(key, pid); err != nil {
			ix.Close()
			return nil, err
		}
	}

	if db.indexes[tableName] == nil {
		db.indexes[tableName] = make(map[string]*btreeindex.Tree)
	}
	db.indexes[tableName][column] = ix
	return ix, nil
}

// ensureIndicesLoaded enumerates <table>/<table>_<col>.{bti,btf,bts} and
// opens each not-yet-registered index handle. A broken index file is
// logged and skipped, never aborting the session.
func (db *Database) ensureIndicesLoaded(tableName string) error {
	if db.indexLoaded[tableName] {
		return nil
	}
	if _, err := db.OpenTable(tableName); err != nil {
		return err
	}

	entries, err := os.ReadDir(db.tableDir(tableName))
	if err != nil {
		return err
	}
	prefix := tableName + "_"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		ext := filepath.Ext(name)
		var kind btreeindex.Kind
		switch ext {
		case ".bti":
			kind = btreeindex.KindInt32
		case ".btf":
			kind = btreeindex.KindFloat32
		case ".bts":
			kind = btreeindex.KindChar
		default:
			continue
		}
		column := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
		if _, ok := db.indexes[tableName][column]; ok {
			continue
		}

		ix, err := btreeindex.Open(filepath.Join(db.tableDir(tableName), name), kind)
		if err != nil {
			db.log.Warn("database: failed to open index, skipping", "table", tableName, "column", column, "error", err)
			continue
		}
		if db.indexes[tableName] == nil {
			db.indexes[tableName] = make(map[string]*btreeindex.Tree)
		}
		db.indexes[tableName][column] = ix
	}
	db.indexLoaded[tableName] = true
	return nil
}

// InsertRow appends row to tableName and inserts its value into every
// loaded index on that table. Per-index insert failures are logged and
// swallowed; the table mutation is authoritative.
func (db *Database) InsertRow(tableName string, row []value.Value) (int32, error) {
	tbl, err := db.OpenTable(tableName)
	if err != nil {
		return 0, err
	}
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return 0, err
	}

	pid, err := tbl.AppendRow(row)
	if err != nil {
		return 0, err
	}

	for col, ix := range db.indexes[tableName] {
		colIdx := -1
		for i, c := range tbl.Cols {
			if c.Name == col {
				colIdx = i
				break
			}
		}
		if colIdx < 0 {
			db.log.Warn("database: index refers to unknown column, skipping", "table", tableName, "column", col)
			continue
		}
		key, err := keyForValue(row[colIdx])
		if err != nil {
			db.log.Warn("database: index insert skipped", "table", tableName, "column", col, "error", err)
			continue
		}
		if err := ix.Insert(key, pid); err != nil {
			db.log.Warn("database: index insert failed, skipping", "table", tableName, "column", col, "error", err)
		}
	}
	return pid, nil
}

// DeleteByPageID tombstones the row at pageID in tableName, removing its
// entry from every loaded index and setting id = -1 when an id column
// exists, per spec's in-row deletion marker convention.
func (db *Database) DeleteByPageID(tableName string, pageID int32) error {
	tbl, err := db.OpenTable(tableName)
	if err != nil {
		return err
	}
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return err
	}

	row, live, err := tbl.ReadRowByPageID(pageID)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("database: row %d: %w", pageID, dberrors.ErrNotFound)
	}

	for col, ix := range db.indexes[tableName] {
		colIdx := -1
		for i, c := range tbl.Cols {
			if c.Name == col {
				colIdx = i
				break
			}
		}
		if colIdx < 0 {
			db.log.Warn("database: index refers to unknown column, skipping", "table", tableName, "column", col)
			continue
		}
		key, err := keyForValue(row[colIdx])
		if err != nil {
			db.log.Warn("database: index delete skipped", "table", tableName, "column", col, "error", err)
			continue
		}
		if _, err := ix.RemoveExact(key, pageID); err != nil {
			db.log.Warn("database: index delete failed, skipping", "table", tableName, "column", col, "error", err)
		}
	}

	for i, c := range tbl.Cols {
		if c.Name == "id" && c.Type == value.TypeInt32 {
			row[i] = value.Int(-1)
		}
	}
	if err := tbl.WriteRowInDisk(pageID, row); err != nil {
		return err
	}
	return tbl.MarkDeleted(pageID)
}

// SetList is one column=value assignment for UpdateRowsByPageIDs.
type SetList []SetItem

// SetItem is a single "col = value" assignment.
type SetItem struct {
	Column string
	Value  value.Value
}

// UpdateRowsByPageIDs applies sets to every row in pageIDs, coercing
// values to each column's declared type, and keeps every loaded index
// on a changed column in step by removing the old key and inserting the
// new one against the same page id.
func (db *Database) UpdateRowsByPageIDs(tableName string, pageIDs []int32, sets SetList) (int, error) {
	tbl, err := db.OpenTable(tableName)
	if err != nil {
		return 0, err
	}
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return 0, err
	}

	colIdxOf := func(name string) int {
		for i, c := range tbl.Cols {
			if c.Name == name {
				return i
			}
		}
		return -1
	}

	updated := 0
	for _, pid := range pageIDs {
		row, live, err := tbl.ReadRowByPageID(pid)
		if err != nil {
			return updated, err
		}
		if !live {
			continue
		}

		oldVals := make(map[string]value.Value, len(sets))
		for _, s := range sets {
			ci := colIdxOf(s.Column)
			if ci < 0 {
				return updated, fmt.Errorf("database: column %s: %w", s.Column, dberrors.ErrSchema)
			}
			coerced, err := s.Value.CoerceTo(tbl.Cols[ci].Type)
			if err != nil {
				return updated, err
			}
			oldVals[s.Column] = row[ci]
			row[ci] = coerced
		}

		if err := tbl.WriteRowInDisk(pid, row); err != nil {
			return updated, err
		}

		for col, oldVal := range oldVals {
			ix, ok := db.indexes[tableName][col]
			if !ok {
				continue
			}
			ci := colIdxOf(col)
			oldKey, err := keyForValue(oldVal)
			if err != nil {
				db.log.Warn("database: index update skipped", "table", tableName, "column", col, "error", err)
				continue
			}
			newKey, err := keyForValue(row[ci])
			if err != nil {
				db.log.Warn("database: index update skipped", "table", tableName, "column", col, "error", err)
				continue
			}
			if _, err := ix.RemoveExact(oldKey, pid); err != nil {
				db.log.Warn("database: index update remove failed, skipping", "table", tableName, "column", col, "error", err)
			}
			if err := ix.Insert(newKey, pid); err != nil {
				db.log.Warn("database: index update insert failed, skipping", "table", tableName, "column", col, "error", err)
			}
		}
		updated++
	}
	return updated, nil
}

// IndexPoint returns the candidate page ids for key on table.column,
// using a loaded index. It returns ErrNotFound if no such index is
// loaded; callers translate that into a full scan.
func (db *Database) IndexPoint(tableName, column string, key btreeindex.Key) ([]int32, error) {
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return nil, err
	}
	ix, ok := db.indexes[tableName][column]
	if !ok {
		return nil, fmt.Errorf("database: no index on %s.%s: %w", tableName, column, dberrors.ErrNotFound)
	}
	v, found, err := ix.Search(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	// Search returns one match; for exactness under duplicates the caller
	// should prefer IndexRange(key, key) when duplicates are possible.
	return []int32{v}, nil
}

// IndexRange returns the candidate page ids for every key in [lo, hi] on
// table.column, using a loaded index.
func (db *Database) IndexRange(tableName, column string, lo, hi *btreeindex.Key) ([]int32, error) {
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return nil, err
	}
	ix, ok := db.indexes[tableName][column]
	if !ok {
		return nil, fmt.Errorf("database: no index on %s.%s: %w", tableName, column, dberrors.ErrNotFound)
	}
	return ix.RangeValues(lo, hi)
}

// HasIndex reports whether table.column has a loaded (or loadable) index.
func (db *Database) HasIndex(tableName, column string) bool {
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return false
	}
	_, ok := db.indexes[tableName][column]
	return ok
}

// EnsureDefaultIndex creates a default B-tree on column if one does not
// already exist for table, using DefaultIndexDegree.
func (db *Database) EnsureDefaultIndex(tableName, column string) error {
	if err := db.ensureIndicesLoaded(tableName); err != nil {
		return err
	}
	if _, ok := db.indexes[tableName][column]; ok {
		return nil
	}
	_, err := db.CreateIndex(tableName, column, DefaultIndexDegree)
	return err
}
