// Package value defines the tagged value union and column/type
// descriptors shared by the row store, the B-tree indexes, and the SQL
// executor.
package value

import (
	"fmt"
	"strconv"

	"github.com/mistlake/minisql/internal/dberrors"
)

// Type tags a column's physical representation.
type Type int32

const (
	TypeInt32 Type = 1
	TypeFloat32 Type = 2
	TypeChar Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "INT32"
	case TypeFloat32:
		return "FLOAT32"
	case TypeChar:
		return "CHAR"
	default:
		return fmt.Sprintf("Type(%d)", int32(t))
	}
}

// Width returns the physical byte width of a column of this type.
// For CHAR, charLen is the declared n in CHAR(n); it is ignored for the
// other two types.
func (t Type) Width(charLen int32) (int32, error) {
	switch t {
	case TypeInt32, TypeFloat32:
		return 4, nil
	case TypeChar:
		if charLen < 1 || charLen > 65535 {
			return 0, fmt.Errorf("value: CHAR width %d out of range [1,65535]: %w", charLen, dberrors.ErrSchema)
		}
		return charLen, nil
	default:
		return 0, fmt.Errorf("value: unknown type tag %d: %w", int32(t), dberrors.ErrSchema)
	}
}

// Column describes one column of a table: its name, type tag, physical
// width, and byte offset within a packed row.
type Column struct {
	Name   string
	Type   Type
	Width  int32
	Offset int32
}

// Value is the tagged value union passed between the parser, the
// executor, and the storage layer.
type Value struct {
	Type Type
	I    int32
	F    float32
	S    string
}

func Int(v int32) Value     { return Value{Type: TypeInt32, I: v} }
func Float(v float32) Value { return Value{Type: TypeFloat32, F: v} }
func Char(v string) Value   { return Value{Type: TypeChar, S: v} }

// CoerceTo converts v to the target column type if a defined coercion
// exists (INT<->FLOAT, numeric->CHAR via decimal string). It returns
// ErrType if no coercion applies.
func (v Value) CoerceTo(target Type) (Value, error) {
	if v.Type == target {
		return v, nil
	}
	switch target {
	case TypeInt32:
		switch v.Type {
		case TypeFloat32:
			return Int(int32(v.F)), nil
		}
	case TypeFloat32:
		switch v.Type {
		case TypeInt32:
			return Float(float32(v.I)), nil
		}
	case TypeChar:
		switch v.Type {
		case TypeInt32:
			return Char(strconv.FormatInt(int64(v.I), 10)), nil
		case TypeFloat32:
			return Char(strconv.FormatFloat(float64(v.F), 'f', -1, 32)), nil
		}
	}
	return Value{}, fmt.Errorf("value: cannot coerce %s to %s: %w", v.Type, target, dberrors.ErrType)
}

// String renders v for tabular output.
func (v Value) String() string {
	switch v.Type {
	case TypeInt32:
		return strconv.FormatInt(int64(v.I), 10)
	case TypeFloat32:
		return strconv.FormatFloat(float64(v.F), 'g', -1, 32)
	case TypeChar:
		return v.S
	default:
		return ""
	}
}
