package btreeindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mistlake/minisql/internal/dberrors"
)

// Kind enumerates the three statically supported key kinds. Node storage
// is always "raw bytes of fixed width W"; Kind bridges that to a native
// Go value only at the Tree's public API edges.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindFloat32
	KindChar
)

// Key is the tagged key union accepted by Insert/Search/RangeValues.
type Key struct {
	Kind Kind
	I32  int32
	F32  float32
	Str  string
}

func IntKey(v int32) Key     { return Key{Kind: KindInt32, I32: v} }
func FloatKey(v float32) Key { return Key{Kind: KindFloat32, F32: v} }
func CharKey(v string) Key   { return Key{Kind: KindChar, Str: v} }

// CharKeyWidth is the fixed width of the CHAR32 key kind.
const CharKeyWidth = 32

func keyWidth(kind Kind) int32 {
	switch kind {
	case KindInt32, KindFloat32:
		return 4
	case KindChar:
		return CharKeyWidth
	default:
		return 0
	}
}

func magicFor(kind Kind) [8]byte {
	switch kind {
	case KindInt32:
		return [8]byte{'B', 'T', 'i', 1, 0, 0, 0, 0}
	case KindFloat32:
		return [8]byte{'B', 'T', 'f', 1, 0, 0, 0, 0}
	default:
		return [8]byte{'B', 'T', 's', 1, 0, 0, 0, 0}
	}
}

// Extension returns the on-disk file extension for kind, per spec.md §6.
func Extension(kind Kind) string {
	switch kind {
	case KindInt32:
		return "bti"
	case KindFloat32:
		return "btf"
	default:
		return "bts"
	}
}

func encodeKey(kind Kind, k Key, dst []byte) {
	switch kind {
	case KindInt32:
		binary.LittleEndian.PutUint32(dst, uint32(k.I32))
	case KindFloat32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(k.F32))
	case KindChar:
		b := []byte(k.Str)
		if len(b) > CharKeyWidth {
			b = b[:CharKeyWidth]
		}
		copy(dst, b)
	}
}

func decodeKey(kind Kind, src []byte) Key {
	switch kind {
	case KindInt32:
		return IntKey(int32(binary.LittleEndian.Uint32(src)))
	case KindFloat32:
		return FloatKey(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	default:
		if i := bytes.IndexByte(src, 0); i >= 0 {
			return CharKey(string(src[:i]))
		}
		return CharKey(string(src))
	}
}

// compareRaw compares two encoded keys of kind, returning -1/0/+1.
// INT32 and FLOAT32 compare by decoded numeric value (signed, IEEE
// respectively); CHAR compares by raw bytes across the full width
// (memcmp, including trailing NULs), per spec.md §4.2.
func compareRaw(kind Kind, a, b []byte) int {
	switch kind {
	case KindInt32:
		ai := int32(binary.LittleEndian.Uint32(a))
		bi := int32(binary.LittleEndian.Uint32(b))
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	case KindFloat32:
		af := math.Float32frombits(binary.LittleEndian.Uint32(a))
		bf := math.Float32frombits(binary.LittleEndian.Uint32(b))
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	default:
		return bytes.Compare(a, b)
	}
}

func validateKind(kind Kind) error {
	switch kind {
	case KindInt32, KindFloat32, KindChar:
		return nil
	default:
		return fmt.Errorf("btreeindex: unknown key kind %d: %w", kind, dberrors.ErrSchema)
	}
}
