package btreeindex

// RemoveOne deletes a single entry matching key. If key has duplicates,
// an unspecified one of them is removed; callers that must remove a
// specific (key, value) pair out of several duplicates should use
// RemoveExact instead. RemoveOne reports dberrors via a nil error and a
// false return when key is absent.
func (tr *Tree) RemoveOne(key Key) (bool, error) {
	return tr.removeMatching(tr.encode(key), func(int32) bool { return true })
}

// RemoveExact deletes the entry whose key equals key and whose stored
// value equals val. This is the row-id-aware deletion secondary indexes
// must use so that deleting one row never removes a different row's
// entry when the indexed column holds duplicate values.
func (tr *Tree) RemoveExact(key Key, val int32) (bool, error) {
	return tr.removeMatching(tr.encode(key), func(v int32) bool { return v == val })
}

// removeMatching removes the first entry, in the order a standard
// descent would encounter it, whose key compares equal to kb and whose
// value satisfies matches. When a node holds several key-equal entries
// (duplicates funnel into a contiguous run within one node, or are
// split across a node and its neighboring children by a prior split),
// every equal-key slot in the current node is checked against matches
// before descending, and both adjoining children are tried in turn when
// none match locally.
func (tr *Tree) removeMatching(kb []byte, matches func(int32) bool) (bool, error) {
	if tr.rootOff == 0 {
		return false, nil
	}
	found, err := tr.removeRec(tr.rootOff, kb, matches)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	root, err := tr.readNode(tr.rootOff)
	if err != nil {
		return true, err
	}
	if root.n == 0 && !root.isLeaf {
		tr.rootOff = root.children[0]
		if err := tr.writeHeader(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// equalRun returns [lo, hi) indices of x.keys that compare equal to kb.
func equalRun(tr *Tree, x *node, kb []byte) (int, int) {
	lo := 0
	for lo < int(x.n) && tr.cmp(x.keys[lo], kb) < 0 {
		lo++
	}
	hi := lo
	for hi < int(x.n) && tr.cmp(x.keys[hi], kb) == 0 {
		hi++
	}
	return lo, hi
}

func (tr *Tree) removeRec(off uint64, kb []byte, matches func(int32) bool) (bool, error) {
	x, err := tr.readNode(off)
	if err != nil {
		return false, err
	}
	t := int(tr.t)

	lo, hi := equalRun(tr, x, kb)
	for idx := lo; idx < hi; idx++ {
		if matches(x.values[idx]) {
			if x.isLeaf {
				return true, tr.removeFromLeaf(off, x, idx)
			}
			return true, tr.removeFromNonLeaf(off, x, idx)
		}
	}

	if x.isLeaf {
		// No equal-key entry in this leaf matched; key is absent here.
		return false, nil
	}

	// Try the children adjoining the equal-key run in turn: either may
	// hold a duplicate that split off into it during a prior insertion.
	// lo and hi are re-derived after every fill, since a fill's borrow
	// or merge can shift key positions within x, and the equal-key slots
	// of x are checked again: a borrow can lift a matching entry into x.
	tried := lo
	for {
		_, hi = equalRun(tr, x, kb)
		ci := tried
		if ci > int(x.n) {
			return false, nil
		}

		child, err := tr.readNode(x.children[ci])
		if err != nil {
			return false, err
		}
		if int(child.n) == t-1 {
			if err := tr.fill(off, ci); err != nil {
				return false, err
			}
			x, err = tr.readNode(off)
			if err != nil {
				return false, err
			}
			lo, hi = equalRun(tr, x, kb)
			for idx := lo; idx < hi; idx++ {
				if matches(x.values[idx]) {
					return true, tr.removeFromNonLeaf(off, x, idx)
				}
			}
			if ci > lo {
				ci = lo
			}
		}

		found, err := tr.removeRec(x.children[ci], kb, matches)
		if err != nil || found {
			return found, err
		}

		if ci == hi || ci >= int(x.n) {
			return false, nil
		}
		tried = hi
	}
}

func (tr *Tree) removeFromLeaf(off uint64, x *node, idx int) error {
	for j := idx; j < int(x.n)-1; j++ {
		copy(x.keys[j], x.keys[j+1])
		x.values[j] = x.values[j+1]
	}
	x.n--
	return tr.writeNode(off, x)
}

func (tr *Tree) removeFromNonLeaf(off uint64, x *node, idx int) error {
	t := int(tr.t)
	keyCopy := append([]byte(nil), x.keys[idx]...)
	origVal := x.values[idx]

	leftChild, err := tr.readNode(x.children[idx])
	if err != nil {
		return err
	}
	rightChild, err := tr.readNode(x.children[idx+1])
	if err != nil {
		return err
	}

	switch {
	case int(leftChild.n) >= t:
		predKey, predVal, err := tr.getPredecessor(x.children[idx])
		if err != nil {
			return err
		}
		copy(x.keys[idx], predKey)
		x.values[idx] = predVal
		if err := tr.writeNode(off, x); err != nil {
			return err
		}
		_, err = tr.removeRec(x.children[idx], predKey, func(v int32) bool { return v == predVal })
		return err
	case int(rightChild.n) >= t:
		succKey, succVal, err := tr.getSuccessor(x.children[idx+1])
		if err != nil {
			return err
		}
		copy(x.keys[idx], succKey)
		x.values[idx] = succVal
		if err := tr.writeNode(off, x); err != nil {
			return err
		}
		_, err = tr.removeRec(x.children[idx+1], succKey, func(v int32) bool { return v == succVal })
		return err
	default:
		mergedOff, err := tr.merge(off, idx)
		if err != nil {
			return err
		}
		_, err = tr.removeRec(mergedOff, keyCopy, func(v int32) bool { return v == origVal })
		return err
	}
}

func (tr *Tree) getPredecessor(off uint64) ([]byte, int32, error) {
	x, err := tr.readNode(off)
	if err != nil {
		return nil, 0, err
	}
	if x.isLeaf {
		return x.keys[x.n-1], x.values[x.n-1], nil
	}
	return tr.getPredecessor(x.children[x.n])
}

func (tr *Tree) getSuccessor(off uint64) ([]byte, int32, error) {
	x, err := tr.readNode(off)
	if err != nil {
		return nil, 0, err
	}
	if x.isLeaf {
		return x.keys[0], x.values[0], nil
	}
	return tr.getSuccessor(x.children[0])
}

// fill ensures x.children[i] holds at least t keys before a descent
// into it, by borrowing from a sibling or merging, per CLRS §18.3.
func (tr *Tree) fill(xOff uint64, i int) error {
	x, err := tr.readNode(xOff)
	if err != nil {
		return err
	}
	t := int(tr.t)

	if i != 0 {
		left, err := tr.readNode(x.children[i-1])
		if err != nil {
			return err
		}
		if int(left.n) >= t {
			return tr.borrowFromPrev(xOff, i)
		}
	}
	if i != int(x.n) {
		right, err := tr.readNode(x.children[i+1])
		if err != nil {
			return err
		}
		if int(right.n) >= t {
			return tr.borrowFromNext(xOff, i)
		}
	}
	if i != int(x.n) {
		_, err := tr.merge(xOff, i)
		return err
	}
	_, err = tr.merge(xOff, i-1)
	return err
}

func (tr *Tree) borrowFromPrev(xOff uint64, i int) error {
	x, err := tr.readNode(xOff)
	if err != nil {
		return err
	}
	child, err := tr.readNode(x.children[i])
	if err != nil {
		return err
	}
	sibling, err := tr.readNode(x.children[i-1])
	if err != nil {
		return err
	}

	for j := int(child.n) - 1; j >= 0; j-- {
		copy(child.keys[j+1], child.keys[j])
		child.values[j+1] = child.values[j]
	}
	if !child.isLeaf {
		for j := int(child.n); j >= 0; j-- {
			child.children[j+1] = child.children[j]
		}
	}
	copy(child.keys[0], x.keys[i-1])
	child.values[0] = x.values[i-1]
	if !child.isLeaf {
		child.children[0] = sibling.children[sibling.n]
	}
	child.n++

	copy(x.keys[i-1], sibling.keys[sibling.n-1])
	x.values[i-1] = sibling.values[sibling.n-1]
	sibling.n--

	if err := tr.writeNode(x.children[i], child); err != nil {
		return err
	}
	if err := tr.writeNode(x.children[i-1], sibling); err != nil {
		return err
	}
	return tr.writeNode(xOff, x)
}

func (tr *Tree) borrowFromNext(xOff uint64, i int) error {
	x, err := tr.readNode(xOff)
	if err != nil {
		return err
	}
	child, err := tr.readNode(x.children[i])
	if err != nil {
		return err
	}
	sibling, err := tr.readNode(x.children[i+1])
	if err != nil {
		return err
	}

	copy(child.keys[child.n], x.keys[i])
	child.values[child.n] = x.values[i]
	if !child.isLeaf {
		child.children[child.n+1] = sibling.children[0]
	}
	child.n++

	copy(x.keys[i], sibling.keys[0])
	x.values[i] = sibling.values[0]

	for j := 0; j < int(sibling.n)-1; j++ {
		copy(sibling.keys[j], sibling.keys[j+1])
		sibling.values[j] = sibling.values[j+1]
	}
	if !sibling.isLeaf {
		for j := 0; j < int(sibling.n); j++ {
			sibling.children[j] = sibling.children[j+1]
		}
	}
	sibling.n--

	if err := tr.writeNode(x.children[i], child); err != nil {
		return err
	}
	if err := tr.writeNode(x.children[i+1], sibling); err != nil {
		return err
	}
	return tr.writeNode(xOff, x)
}

// merge folds x.children[i+1] and the separator x.keys[i] into
// x.children[i], and returns that child's offset.
func (tr *Tree) merge(xOff uint64, i int) (uint64, error) {
	x, err := tr.readNode(xOff)
	if err != nil {
		return 0, err
	}
	t := int(tr.t)
	child, err := tr.readNode(x.children[i])
	if err != nil {
		return 0, err
	}
	sibling, err := tr.readNode(x.children[i+1])
	if err != nil {
		return 0, err
	}

	copy(child.keys[t-1], x.keys[i])
	child.values[t-1] = x.values[i]
	for j := 0; j < int(sibling.n); j++ {
		copy(child.keys[t+j], sibling.keys[j])
		child.values[t+j] = sibling.values[j]
	}
	if !child.isLeaf {
		for j := 0; j <= int(sibling.n); j++ {
			child.children[t+j] = sibling.children[j]
		}
	}
	child.n += sibling.n + 1

	for j := i; j < int(x.n)-1; j++ {
		copy(x.keys[j], x.keys[j+1])
		x.values[j] = x.values[j+1]
	}
	for j := i + 1; j < int(x.n); j++ {
		x.children[j] = x.children[j+1]
	}
	x.n--

	if err := tr.writeNode(x.children[i], child); err != nil {
		return 0, err
	}
	return x.children[i], tr.writeNode(xOff, x)
}
