// Package btreeindex implements a disk-resident B-tree secondary index,
// parameterized over one of three key kinds (INT32, FLOAT32, CHAR32).
// The algorithm follows the classic CLRS top-down insertion (proactive
// split before descending) and deletion (proactive fill before
// descending) scheme; nodes are addressed by absolute byte offset into
// a single index file rather than by in-memory pointer.
package btreeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mistlake/minisql/internal/dberrors"
	"github.com/mistlake/minisql/internal/pager"
)

const headerSize = 8 + 4 + 8 + 8 + 4 // magic, t, root_off, node_size, key_bytes

// Tree is one open disk-resident B-tree index file.
type Tree struct {
	p        *pager.Pager
	kind     Kind
	t        int32
	keyWidth int32
	nodeSz   int64
	rootOff  uint64
}

// Create initializes a brand new, empty index file at path for the
// given key kind and branching factor t (2 <= t <= TMax).
func Create(path string, kind Kind, t int32) (*Tree, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if t < 2 || t > TMax {
		return nil, fmt.Errorf("btreeindex: t=%d out of range [2,%d]: %w", t, TMax, dberrors.ErrSchema)
	}
	p, err := pager.Open(path, true)
	if err != nil {
		return nil, err
	}
	kw := keyWidth(kind)
	tr := &Tree{p: p, kind: kind, t: t, keyWidth: kw, nodeSz: nodeSize(kw), rootOff: 0}
	if err := tr.writeHeader(); err != nil {
		p.Close()
		return nil, err
	}
	return tr, nil
}

// Open opens an existing index file at path, which must have been
// created for the given key kind.
func Open(path string, kind Kind) (*Tree, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("btreeindex: %s: %w", path, dberrors.ErrNotFound)
	}
	p, err := pager.Open(path, false)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize)
	if err := p.ReadAt(0, buf); err != nil {
		p.Close()
		return nil, err
	}
	wantMagic := magicFor(kind)
	var gotMagic [8]byte
	copy(gotMagic[:], buf[0:8])
	if gotMagic != wantMagic {
		p.Close()
		return nil, fmt.Errorf("btreeindex: %s: bad magic for kind %d: %w", path, kind, dberrors.ErrFormat)
	}
	tr := &Tree{
		p:        p,
		kind:     kind,
		t:        int32(binary.LittleEndian.Uint32(buf[8:12])),
		rootOff:  binary.LittleEndian.Uint64(buf[12:20]),
		nodeSz:   int64(binary.LittleEndian.Uint64(buf[20:28])),
		keyWidth: int32(binary.LittleEndian.Uint32(buf[28:32])),
	}
	if tr.keyWidth != keyWidth(kind) {
		p.Close()
		return nil, fmt.Errorf("btreeindex: %s: key width mismatch: %w", path, dberrors.ErrFormat)
	}
	return tr, nil
}

func (tr *Tree) Close() error { return tr.p.Close() }

func (tr *Tree) writeHeader() error {
	buf := make([]byte, headerSize)
	magic := magicFor(tr.kind)
	copy(buf[0:8], magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], uint32(tr.t))
	binary.LittleEndian.PutUint64(buf[12:20], tr.rootOff)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(tr.nodeSz))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(tr.keyWidth))
	return tr.p.WriteAt(0, buf)
}

func (tr *Tree) cmp(a, b []byte) int { return compareRaw(tr.kind, a, b) }

func (tr *Tree) encode(k Key) []byte {
	buf := make([]byte, tr.keyWidth)
	encodeKey(tr.kind, k, buf)
	return buf
}

func (tr *Tree) readNode(off uint64) (*node, error) {
	buf := make([]byte, tr.nodeSz)
	if err := tr.p.ReadAt(int64(off), buf); err != nil {
		return nil, err
	}
	return decodeNode(buf, tr.keyWidth), nil
}

func (tr *Tree) writeNode(off uint64, nd *node) error {
	return tr.p.WriteAt(int64(off), encodeNode(nd, tr.keyWidth, tr.nodeSz))
}

func (tr *Tree) allocNode() (uint64, error) {
	off := tr.p.Size()
	if off < headerSize {
		off = headerSize
	}
	if err := tr.p.WriteAt(off, make([]byte, tr.nodeSz)); err != nil {
		return 0, err
	}
	return uint64(off), nil
}

// Insert adds (key, val) to the index. Duplicate keys are permitted;
// placement among existing duplicates of the same key is unspecified.
func (tr *Tree) Insert(key Key, val int32) error {
	kb := tr.encode(key)

	if tr.rootOff == 0 {
		off, err := tr.allocNode()
		if err != nil {
			return err
		}
		nd := newNode(tr.keyWidth, true)
		nd.n = 1
		copy(nd.keys[0], kb)
		nd.values[0] = val
		if err := tr.writeNode(off, nd); err != nil {
			return err
		}
		tr.rootOff = off
		return tr.writeHeader()
	}

	root, err := tr.readNode(tr.rootOff)
	if err != nil {
		return err
	}
	if int(root.n) == maxKeysFor(tr.t) {
		newRootOff, err := tr.allocNode()
		if err != nil {
			return err
		}
		newRoot := newNode(tr.keyWidth, false)
		newRoot.n = 0
		newRoot.children[0] = tr.rootOff
		if err := tr.writeNode(newRootOff, newRoot); err != nil {
			return err
		}
		if err := tr.splitChild(newRootOff, 0); err != nil {
			return err
		}
		tr.rootOff = newRootOff
		if err := tr.writeHeader(); err != nil {
			return err
		}
	}
	return tr.insertNonFull(tr.rootOff, kb, val)
}

func maxKeysFor(t int32) int { return int(2*t - 1) }

// splitChild splits the full child at xOff.children[i] about its
// median key, pulling the median up into xOff at position i.
func (tr *Tree) splitChild(xOff uint64, i int) error {
	x, err := tr.readNode(xOff)
	if err != nil {
		return err
	}
	yOff := x.children[i]
	y, err := tr.readNode(yOff)
	if err != nil {
		return err
	}
	t := int(tr.t)

	zOff, err := tr.allocNode()
	if err != nil {
		return err
	}
	z := newNode(tr.keyWidth, y.isLeaf)
	z.n = int16(t - 1)
	for j := 0; j < t-1; j++ {
		copy(z.keys[j], y.keys[j+t])
		z.values[j] = y.values[j+t]
	}
	if !y.isLeaf {
		for j := 0; j < t; j++ {
			z.children[j] = y.children[j+t]
		}
	}

	medianKey := append([]byte(nil), y.keys[t-1]...)
	medianVal := y.values[t-1]
	y.n = int16(t - 1)

	for j := int(x.n); j >= i+1; j-- {
		x.children[j+1] = x.children[j]
	}
	x.children[i+1] = zOff
	for j := int(x.n) - 1; j >= i; j-- {
		copy(x.keys[j+1], x.keys[j])
		x.values[j+1] = x.values[j]
	}
	copy(x.keys[i], medianKey)
	x.values[i] = medianVal
	x.n++

	if err := tr.writeNode(yOff, y); err != nil {
		return err
	}
	if err := tr.writeNode(zOff, z); err != nil {
		return err
	}
	return tr.writeNode(xOff, x)
}

func (tr *Tree) insertNonFull(xOff uint64, kb []byte, val int32) error {
	x, err := tr.readNode(xOff)
	if err != nil {
		return err
	}
	if x.isLeaf {
		i := int(x.n) - 1
		for i >= 0 && tr.cmp(x.keys[i], kb) > 0 {
			copy(x.keys[i+1], x.keys[i])
			x.values[i+1] = x.values[i]
			i--
		}
		copy(x.keys[i+1], kb)
		x.values[i+1] = val
		x.n++
		return tr.writeNode(xOff, x)
	}

	i := int(x.n) - 1
	for i >= 0 && tr.cmp(x.keys[i], kb) > 0 {
		i--
	}
	i++

	child, err := tr.readNode(x.children[i])
	if err != nil {
		return err
	}
	if int(child.n) == maxKeysFor(tr.t) {
		if err := tr.splitChild(xOff, i); err != nil {
			return err
		}
		x, err = tr.readNode(xOff)
		if err != nil {
			return err
		}
		if tr.cmp(x.keys[i], kb) < 0 {
			i++
		}
	}
	return tr.insertNonFull(x.children[i], kb, val)
}

// Search returns the value stored for key and true, or false if key is
// absent. If key has duplicates, an unspecified one of them is returned.
func (tr *Tree) Search(key Key) (int32, bool, error) {
	if tr.rootOff == 0 {
		return 0, false, nil
	}
	kb := tr.encode(key)
	return tr.searchRec(tr.rootOff, kb)
}

func (tr *Tree) searchRec(off uint64, kb []byte) (int32, bool, error) {
	x, err := tr.readNode(off)
	if err != nil {
		return 0, false, err
	}
	i := 0
	for i < int(x.n) && tr.cmp(kb, x.keys[i]) > 0 {
		i++
	}
	if i < int(x.n) && tr.cmp(kb, x.keys[i]) == 0 {
		return x.values[i], true, nil
	}
	if x.isLeaf {
		return 0, false, nil
	}
	return tr.searchRec(x.children[i], kb)
}

// RangeValues returns the values of every key k with lo <= k <= hi, in
// ascending key order. Either bound may be nil for an open end.
func (tr *Tree) RangeValues(lo, hi *Key) ([]int32, error) {
	var out []int32
	if tr.rootOff == 0 {
		return out, nil
	}
	var loB, hiB []byte
	if lo != nil {
		loB = tr.encode(*lo)
	}
	if hi != nil {
		hiB = tr.encode(*hi)
	}
	err := tr.rangeRec(tr.rootOff, loB, hiB, &out)
	return out, err
}

// rangeRec walks the subtree rooted at off in ascending key order,
// appending every value whose key falls within [lo, hi] to out. It
// stops descending into, or scanning, any part of the subtree whose
// keys are provably all > hi.
func (tr *Tree) rangeRec(off uint64, lo, hi []byte, out *[]int32) error {
	x, err := tr.readNode(off)
	if err != nil {
		return err
	}
	for i := 0; i < int(x.n); i++ {
		if !x.isLeaf && (lo == nil || tr.cmp(x.keys[i], lo) >= 0) {
			if err := tr.rangeRec(x.children[i], lo, hi, out); err != nil {
				return err
			}
		}
		if hi != nil && tr.cmp(x.keys[i], hi) > 0 {
			return nil
		}
		if lo == nil || tr.cmp(x.keys[i], lo) >= 0 {
			*out = append(*out, x.values[i])
		}
	}
	if !x.isLeaf {
		if err := tr.rangeRec(x.children[x.n], lo, hi, out); err != nil {
			return err
		}
	}
	return nil
}

// Traverse calls visit for every (key, value) pair in ascending key
// order. Traverse stops and returns visit's error if visit returns one.
func (tr *Tree) Traverse(visit func(Key, int32) error) error {
	if tr.rootOff == 0 {
		return nil
	}
	return tr.traverseRec(tr.rootOff, visit)
}

func (tr *Tree) traverseRec(off uint64, visit func(Key, int32) error) error {
	x, err := tr.readNode(off)
	if err != nil {
		return err
	}
	for i := 0; i < int(x.n); i++ {
		if !x.isLeaf {
			if err := tr.traverseRec(x.children[i], visit); err != nil {
				return err
			}
		}
		if err := visit(decodeKey(tr.kind, x.keys[i]), x.values[i]); err != nil {
			return err
		}
	}
	if !x.isLeaf {
		if err := tr.traverseRec(x.children[x.n], visit); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of entries currently stored in the index.
func (tr *Tree) Count() (int, error) {
	n := 0
	err := tr.Traverse(func(Key, int32) error { n++; return nil })
	return n, err
}
