package btreeindex

import "encoding/binary"

// TMax is the maximum supported branching factor. The on-disk node size
// is computed once, using TMax, regardless of the runtime t a particular
// index was created with, so that the index file format never changes
// shape when t changes.
const TMax = 128

const (
	maxKeys     = 2*TMax - 1
	maxChildren = 2 * TMax
)

// node is the in-memory decoding of one disk node. keys/values are only
// meaningful up to index n-1; children up to index n (inclusive) when
// !isLeaf.
type node struct {
	isLeaf   bool
	n        int16
	keys     [][]byte
	values   []int32
	children []uint64
}

func newNode(keyWidth int32, isLeaf bool) *node {
	nd := &node{
		isLeaf:   isLeaf,
		keys:     make([][]byte, maxKeys),
		values:   make([]int32, maxKeys),
		children: make([]uint64, maxChildren),
	}
	for i := range nd.keys {
		nd.keys[i] = make([]byte, keyWidth)
	}
	return nd
}

func nodeSize(keyWidth int32) int64 {
	var sz int64
	sz += 1                                 // isLeaf
	sz += 2                                 // n
	sz += int64(maxKeys) * int64(keyWidth)  // keys
	sz += int64(maxKeys) * 4                // values
	sz += int64(maxChildren) * 8            // children
	sz += 4                                 // reserved
	return sz
}

func encodeNode(nd *node, keyWidth int32, size int64) []byte {
	buf := make([]byte, size)
	if nd.isLeaf {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint16(buf[1:3], uint16(nd.n))
	off := 3
	for i := 0; i < maxKeys; i++ {
		copy(buf[off:off+int(keyWidth)], nd.keys[i])
		off += int(keyWidth)
	}
	for i := 0; i < maxKeys; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(nd.values[i]))
		off += 4
	}
	for i := 0; i < maxChildren; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], nd.children[i])
		off += 8
	}
	return buf
}

func decodeNode(buf []byte, keyWidth int32) *node {
	nd := &node{
		isLeaf:   buf[0] != 0,
		n:        int16(binary.LittleEndian.Uint16(buf[1:3])),
		keys:     make([][]byte, maxKeys),
		values:   make([]int32, maxKeys),
		children: make([]uint64, maxChildren),
	}
	off := 3
	for i := 0; i < maxKeys; i++ {
		nd.keys[i] = append([]byte(nil), buf[off:off+int(keyWidth)]...)
		off += int(keyWidth)
	}
	for i := 0; i < maxKeys; i++ {
		nd.values[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	for i := 0; i < maxChildren; i++ {
		nd.children[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}
	return nd
}
