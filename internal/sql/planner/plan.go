// Package planner turns a WHERE expression into a candidate page-id
// source: either a probe against an on-disk index or a full sequential
// scan. It never touches storage directly; BuildPlan only decides what
// to ask the database layer for.
package planner

import (
	"math"

	"github.com/mistlake/minisql/internal/btreeindex"
	"github.com/mistlake/minisql/internal/sql/parser"
	"github.com/mistlake/minisql/internal/value"
)

// Kind distinguishes the two candidate sources a plan can describe.
type Kind int

const (
	// SeqScan materializes every page id in [0, count), live or not.
	SeqScan Kind = iota
	// IndexPoint probes a single key.
	IndexPoint
	// IndexRange probes an inclusive [Lo, Hi] range; either bound may be
	// nil to mean unbounded on that side.
	IndexRange
	// IndexUnion is the NE case: a range above and a range below the key,
	// candidates are the union of both probes. For CHAR keys both ranges
	// are unbounded.
	IndexUnion
)

// Plan is the drive-predicate plan for one statement's WHERE clause.
type Plan struct {
	Kind Kind

	Column string // index column for IndexPoint/IndexRange/IndexUnion

	Point btreeindex.Key // IndexPoint

	Lo, Hi *btreeindex.Key // IndexRange

	// RangeA/RangeB are the two disjoint ranges for IndexUnion (NE).
	RangeALo, RangeAHi *btreeindex.Key
	RangeBLo, RangeBHi *btreeindex.Key
}

// HasIndex reports, for a column name, whether an on-disk index exists
// that BuildPlan can drive against. Callers supply this as a closure
// over the open database so this package stays storage-agnostic.
type HasIndex func(column string) bool

// KeyForLiteral converts a parsed literal into a btreeindex.Key typed
// by the target column. Callers supply this because the conversion
// needs the column's declared value.Type, which this package does not
// look up itself.
type KeyForLiteral func(lit parser.Literal) (btreeindex.Key, value.Type, error)

// BuildPlan picks where to expr is non-nil and its first predicate's
// column has a loadable index. With no WHERE, or when the drive column
// is unindexed, it returns a SeqScan plan.
func BuildPlan(expr *parser.WhereExpr, hasIndex HasIndex, keyFor KeyForLiteral) (Plan, error) {
	if expr == nil {
		return Plan{Kind: SeqScan}, nil
	}
	p1 := expr.P1
	if !hasIndex(p1.Column) {
		return Plan{Kind: SeqScan}, nil
	}

	key, vt, err := keyFor(p1.Value)
	if err != nil {
		return Plan{}, err
	}

	switch p1.Op {
	case parser.OpEQ:
		return Plan{Kind: IndexPoint, Column: p1.Column, Point: key}, nil

	case parser.OpGE:
		return Plan{Kind: IndexRange, Column: p1.Column, Lo: ptr(key), Hi: nil}, nil

	case parser.OpLE:
		return Plan{Kind: IndexRange, Column: p1.Column, Lo: nil, Hi: ptr(key)}, nil

	case parser.OpGT:
		lo, ok := nextAfter(key, vt, +1)
		if !ok {
			return Plan{Kind: IndexRange, Column: p1.Column, Lo: ptr(key), Hi: nil}, nil
		}
		return Plan{Kind: IndexRange, Column: p1.Column, Lo: ptr(lo), Hi: nil}, nil

	case parser.OpLT:
		hi, ok := nextAfter(key, vt, -1)
		if !ok {
			return Plan{Kind: IndexRange, Column: p1.Column, Lo: nil, Hi: ptr(key)}, nil
		}
		return Plan{Kind: IndexRange, Column: p1.Column, Lo: nil, Hi: ptr(hi)}, nil

	case parser.OpNE:
		lowHi, okLow := nextAfter(key, vt, -1)
		highLo, okHigh := nextAfter(key, vt, +1)
		p := Plan{Kind: IndexUnion, Column: p1.Column}
		if okLow {
			p.RangeBHi = ptr(lowHi)
		}
		if okHigh {
			p.RangeALo = ptr(highLo)
		}
		return p, nil

	default:
		return Plan{Kind: SeqScan}, nil
	}
}

func ptr(k btreeindex.Key) *btreeindex.Key { return &k }

// nextAfter returns the next representable key strictly beyond k in the
// given direction (dir=+1 moves toward +inf, dir=-1 toward -inf). For
// CHAR keys it reports ok=false: per spec.md §4.5's known limitation,
// GT/LT on CHAR use the same bound as GE/LE rather than a strict one.
func nextAfter(k btreeindex.Key, vt value.Type, dir int) (btreeindex.Key, bool) {
	switch vt {
	case value.TypeInt32:
		if dir > 0 {
			return btreeindex.IntKey(k.I32 + 1), true
		}
		return btreeindex.IntKey(k.I32 - 1), true
	case value.TypeFloat32:
		if dir > 0 {
			return btreeindex.FloatKey(nextFloat32Up(k.F32)), true
		}
		return btreeindex.FloatKey(nextFloat32Down(k.F32)), true
	default:
		return btreeindex.Key{}, false
	}
}

// nextFloat32Up/Down step to the next IEEE-754 representable float32 in
// the given direction, via the bit pattern (matches math.Nextafter's
// approach, specialized to float32 since the stdlib only offers the
// float64 form).
func nextFloat32Up(f float32) float32 {
	if math.IsNaN(float64(f)) {
		return f
	}
	bits := math.Float32bits(f)
	if f == 0 {
		return math.Float32frombits(1) // smallest positive
	}
	if f > 0 {
		bits++
	} else {
		bits--
	}
	return math.Float32frombits(bits)
}

func nextFloat32Down(f float32) float32 {
	if math.IsNaN(float64(f)) {
		return f
	}
	bits := math.Float32bits(f)
	if f == 0 {
		return math.Float32frombits(1<<31 | 1) // smallest negative
	}
	if f > 0 {
		bits--
	} else {
		bits++
	}
	return math.Float32frombits(bits)
}
