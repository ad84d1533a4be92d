// Package table implements the fixed-width row store: a binary schema
// header followed by packed fixed-width rows, plus a tombstone sidecar
// file for logical deletion.
package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/mistlake/minisql/internal/dberrors"
	"github.com/mistlake/minisql/internal/pager"
	"github.com/mistlake/minisql/internal/value"
)

const (
	magic        = "GFTABv1\x00" // 8 bytes, matches spec.md's "GFTABv1" + NUL
	nameSize     = 32
	headerSize   = 8 + nameSize + 4 + 4 + 4 // 60
	colNameSize  = 32
	colDescSize  = colNameSize + 4 + 4 + 4 // 44
	MaxColumns   = 64
)

// Table is an open fixed-width row store: the packed rows file plus its
// tombstone sidecar.
type Table struct {
	Name    string
	Cols    []value.Column
	RowSize int32

	data *pager.Pager
	del  *pager.Pager
}

func tablePaths(dir, name string) (tblPath, delPath string) {
	tblPath = filepath.Join(dir, name+".tbl")
	delPath = tblPath + ".del"
	return
}

// Create truncates (or creates) the table file and sidecar, and writes
// the header and column descriptors for cols.
func Create(dir, name string, cols []value.Column) (*Table, error) {
	if len(cols) < 1 || len(cols) > MaxColumns {
		return nil, fmt.Errorf("table: ncols %d out of range [1,%d]: %w", len(cols), MaxColumns, dberrors.ErrSchema)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("table: mkdir %s: %w", dir, err)
	}

	tblPath, delPath := tablePaths(dir, name)

	dataPager, err := pager.Open(tblPath, true)
	if err != nil {
		return nil, err
	}
	delPager, err := pager.Open(delPath, true)
	if err != nil {
		_ = dataPager.Close()
		return nil, err
	}

	var rowSize int32
	for i := range cols {
		cols[i].Offset = rowSize
		rowSize += cols[i].Width
	}

	t := &Table{Name: name, Cols: cols, RowSize: rowSize, data: dataPager, del: delPager}
	if err := t.writeHeader(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open loads an existing table's header and column descriptors.
func Open(dir, name string) (*Table, error) {
	tblPath, delPath := tablePaths(dir, name)

	if _, err := os.Stat(tblPath); err != nil {
		return nil, fmt.Errorf("table: %s: %w", name, dberrors.ErrNotFound)
	}

	dataPager, err := pager.Open(tblPath, false)
	if err != nil {
		return nil, err
	}
	delPager, err := pager.Open(delPath, false)
	if err != nil {
		_ = dataPager.Close()
		return nil, err
	}

	t := &Table{data: dataPager, del: delPager}
	if err := t.readHeader(); err != nil {
		_ = dataPager.Close()
		_ = delPager.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) writeHeader() error {
	buf := make([]byte, headerSize+len(t.Cols)*colDescSize)

	copy(buf[0:8], magic)
	copy(buf[8:8+nameSize], t.Name)
	binary.LittleEndian.PutUint32(buf[8+nameSize:], uint32(len(t.Cols)))
	binary.LittleEndian.PutUint32(buf[8+nameSize+4:], uint32(t.RowSize))
	// reserved: left zero

	off := headerSize
	for _, c := range t.Cols {
		copy(buf[off:off+colNameSize], c.Name)
		binary.LittleEndian.PutUint32(buf[off+colNameSize:], uint32(c.Type))
		binary.LittleEndian.PutUint32(buf[off+colNameSize+4:], uint32(c.Width))
		binary.LittleEndian.PutUint32(buf[off+colNameSize+8:], uint32(c.Offset))
		off += colDescSize
	}

	return t.data.WriteAt(0, buf)
}

func (t *Table) readHeader() error {
	hdr := make([]byte, headerSize)
	if err := t.data.ReadAt(0, hdr); err != nil {
		return err
	}
	if !bytes.Equal(hdr[0:8], []byte(magic)) {
		return fmt.Errorf("table: bad magic: %w", dberrors.ErrFormat)
	}

	t.Name = cstr(hdr[8 : 8+nameSize])
	ncols := int32(binary.LittleEndian.Uint32(hdr[8+nameSize:]))
	t.RowSize = int32(binary.LittleEndian.Uint32(hdr[8+nameSize+4:]))

	if ncols < 1 || ncols > MaxColumns {
		return fmt.Errorf("table: ncols %d out of range: %w", ncols, dberrors.ErrFormat)
	}

	colsBuf := make([]byte, int(ncols)*colDescSize)
	if err := t.data.ReadAt(int64(headerSize), colsBuf); err != nil {
		return err
	}

	cols := make([]value.Column, ncols)
	for i := range cols {
		off := i * colDescSize
		cols[i] = value.Column{
			Name:   cstr(colsBuf[off : off+colNameSize]),
			Type:   value.Type(binary.LittleEndian.Uint32(colsBuf[off+colNameSize:])),
			Width:  int32(binary.LittleEndian.Uint32(colsBuf[off+colNameSize+4:])),
			Offset: int32(binary.LittleEndian.Uint32(colsBuf[off+colNameSize+8:])),
		}
	}
	t.Cols = cols
	return nil
}

func (t *Table) dataOffset() int64 {
	return int64(headerSize + len(t.Cols)*colDescSize)
}

// Count returns the number of rows in the table, derived from file length.
func (t *Table) Count() (int32, error) {
	size := t.data.Size()
	rowsBytes := size - t.dataOffset()
	if rowsBytes < 0 || t.RowSize == 0 {
		return 0, nil
	}
	return int32(rowsBytes / int64(t.RowSize)), nil
}

// colIndex finds a column by name, or -1.
func (t *Table) colIndex(name string) int {
	for i, c := range t.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) packRow(row []value.Value) ([]byte, error) {
	if len(row) != len(t.Cols) {
		return nil, fmt.Errorf("table: row has %d values, table has %d columns: %w", len(row), len(t.Cols), dberrors.ErrSchema)
	}

	buf := make([]byte, t.RowSize)
	for i, c := range t.Cols {
		v := row[i]
		if v.Type != c.Type {
			return nil, fmt.Errorf("table: column %s expects %s, got %s: %w", c.Name, c.Type, v.Type, dberrors.ErrType)
		}
		dst := buf[c.Offset : c.Offset+c.Width]
		switch c.Type {
		case value.TypeInt32:
			binary.LittleEndian.PutUint32(dst, uint32(v.I))
		case value.TypeFloat32:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(v.F))
		case value.TypeChar:
			b := []byte(v.S)
			if int32(len(b)) >= c.Width {
				// Truncate to width-1 bytes, leaving the last byte as NUL.
				b = b[:c.Width-1]
			}
			copy(dst, b)
			// Remaining bytes (including the terminator) stay zero.
		}
	}
	return buf, nil
}

func (t *Table) unpackRow(buf []byte) []value.Value {
	row := make([]value.Value, len(t.Cols))
	for i, c := range t.Cols {
		src := buf[c.Offset : c.Offset+c.Width]
		switch c.Type {
		case value.TypeInt32:
			row[i] = value.Int(int32(binary.LittleEndian.Uint32(src)))
		case value.TypeFloat32:
			row[i] = value.Float(math.Float32frombits(binary.LittleEndian.Uint32(src)))
		case value.TypeChar:
			row[i] = value.Char(cstr(src))
		}
	}
	return row
}

// AppendRow packs and writes row at the current count, returning the new
// page id. The tombstone byte for the new row is set live (0).
func (t *Table) AppendRow(row []value.Value) (int32, error) {
	count, err := t.Count()
	if err != nil {
		return 0, err
	}

	if err := t.WriteRowInDisk(count, row); err != nil {
		return 0, err
	}
	if err := t.setTombstone(count, 0); err != nil {
		return 0, err
	}
	return count, nil
}

// WriteRowInDisk overwrites the row at pageID. It also clears the
// tombstone byte, matching the source's "UPDATE un-marks a tombstoned
// row" behavior described in spec.md §4.3 (the core does not rely on
// this during normal UPDATE/DELETE flow).
func (t *Table) WriteRowInDisk(pageID int32, row []value.Value) error {
	if pageID < 0 {
		return fmt.Errorf("table: negative page id %d: %w", pageID, dberrors.ErrIO)
	}

	buf, err := t.packRow(row)
	if err != nil {
		return err
	}

	off := t.dataOffset() + int64(pageID)*int64(t.RowSize)
	if err := t.data.WriteAt(off, buf); err != nil {
		return err
	}
	return t.setTombstone(pageID, 0)
}

// ReadRowByPageID returns the unpacked row and whether it is live. A
// pageID beyond the current row count is reported as absent, not an
// error.
func (t *Table) ReadRowByPageID(pageID int32) ([]value.Value, bool, error) {
	count, err := t.Count()
	if err != nil {
		return nil, false, err
	}
	if pageID < 0 || pageID >= count {
		return nil, false, nil
	}

	deleted, err := t.IsDeleted(pageID)
	if err != nil {
		return nil, false, err
	}
	if deleted {
		return nil, false, nil
	}

	buf := make([]byte, t.RowSize)
	off := t.dataOffset() + int64(pageID)*int64(t.RowSize)
	if err := t.data.ReadAt(off, buf); err != nil {
		return nil, false, err
	}
	return t.unpackRow(buf), true, nil
}

// MarkDeleted flags pageID as logically deleted.
func (t *Table) MarkDeleted(pageID int32) error {
	return t.setTombstone(pageID, 1)
}

// IsDeleted reports whether pageID's tombstone byte is set. A pageID
// beyond the current sidecar length is treated as live (0), matching an
// un-extended sidecar for a row that was only just appended.
func (t *Table) IsDeleted(pageID int32) (bool, error) {
	if pageID < 0 {
		return false, fmt.Errorf("table: negative page id %d: %w", pageID, dberrors.ErrIO)
	}
	if int64(pageID) >= t.del.Size() {
		return false, nil
	}
	buf := make([]byte, 1)
	if err := t.del.ReadAt(int64(pageID), buf); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// setTombstone extends the sidecar with zeros up to pageID+1 and then
// sets byte pageID to flag.
func (t *Table) setTombstone(pageID int32, flag byte) error {
	if pageID < 0 {
		return fmt.Errorf("table: negative page id %d: %w", pageID, dberrors.ErrIO)
	}
	if need := int64(pageID) + 1 - t.del.Size(); need > 0 {
		zeros := make([]byte, need)
		if err := t.del.WriteAt(t.del.Size(), zeros); err != nil {
			return err
		}
	}
	return t.del.WriteAt(int64(pageID), []byte{flag})
}

// ReadInt reads a single INT32 field by column name without materializing
// the full row.
func (t *Table) ReadInt(pageID int32, col string) (int32, error) {
	v, err := t.readField(pageID, col, value.TypeInt32)
	if err != nil {
		return 0, err
	}
	return v.I, nil
}

// ReadFloat reads a single FLOAT32 field by column name.
func (t *Table) ReadFloat(pageID int32, col string) (float32, error) {
	v, err := t.readField(pageID, col, value.TypeFloat32)
	if err != nil {
		return 0, err
	}
	return v.F, nil
}

// ReadChar reads a single CHAR field by column name, trailing NULs
// stripped.
func (t *Table) ReadChar(pageID int32, col string) (string, error) {
	v, err := t.readField(pageID, col, value.TypeChar)
	if err != nil {
		return "", err
	}
	return v.S, nil
}

func (t *Table) readField(pageID int32, col string, want value.Type) (value.Value, error) {
	idx := t.colIndex(col)
	if idx < 0 {
		return value.Value{}, fmt.Errorf("table: unknown column %s: %w", col, dberrors.ErrSchema)
	}
	c := t.Cols[idx]
	if c.Type != want {
		return value.Value{}, fmt.Errorf("table: column %s is %s, not %s: %w", col, c.Type, want, dberrors.ErrType)
	}

	buf := make([]byte, c.Width)
	off := t.dataOffset() + int64(pageID)*int64(t.RowSize) + int64(c.Offset)
	if err := t.data.ReadAt(off, buf); err != nil {
		return value.Value{}, err
	}

	switch c.Type {
	case value.TypeInt32:
		return value.Int(int32(binary.LittleEndian.Uint32(buf))), nil
	case value.TypeFloat32:
		return value.Float(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	default:
		return value.Char(cstr(buf)), nil
	}
}

// Close releases the table's pagers.
func (t *Table) Close() error {
	err1 := t.data.Close()
	err2 := t.del.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
