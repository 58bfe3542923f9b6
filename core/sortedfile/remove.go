package sortedfile

// Get looks up the record whose key matches key's, returning the decoded
// stored record (not key itself).
func (t *Tree) Get(key Record) (Record, bool) {
	id := t.root()
	for id != nullNode {
		_, left, right := t.getNode(id)
		switch cmp := key.Compare(t.recordBytes(id)); {
		case cmp < 0:
			id = left
		case cmp > 0:
			id = right
		default:
			return t.factory(t.recordBytes(id)), true
		}
	}
	return nil, false
}

// Floor returns the record with the greatest key not exceeding key's, or
// (nil, false) if every stored key is greater.
func (t *Tree) Floor(key Record) (Record, bool) {
	id := t.root()
	best := nullNode
	for id != nullNode {
		_, left, right := t.getNode(id)
		if key.Compare(t.recordBytes(id)) < 0 {
			id = left
		} else {
			best = id
			id = right
		}
	}
	if best == nullNode {
		return nil, false
	}
	return t.factory(t.recordBytes(best)), true
}

// Remove deletes the record matching key's key, if present, and reports
// whether anything was removed.
func (t *Tree) Remove(key Record) bool {
	newRoot, removed := t.remove(t.root(), key)
	t.setRoot(newRoot)
	if removed {
		t.setCount(t.Count() - 1)
		t.dirty = true
	}
	return removed
}

func (t *Tree) remove(id uint16, key Record) (uint16, bool) {
	if id == nullNode {
		return nullNode, false
	}
	_, left, right := t.getNode(id)
	var removed bool
	switch cmp := key.Compare(t.recordBytes(id)); {
	case cmp < 0:
		left, removed = t.remove(left, key)
		if !removed {
			return id, false
		}
		t.setNode(id, 0, left, right)
	case cmp > 0:
		right, removed = t.remove(right, key)
		if !removed {
			return id, false
		}
		t.setNode(id, 0, left, right)
	default:
		switch {
		case left == nullNode:
			t.freeNodeSlot(id)
			return right, true
		case right == nullNode:
			t.freeNodeSlot(id)
			return left, true
		default:
			succ := t.min(right)
			copy(t.recordBytes(id), t.recordBytes(succ))
			newRight, _ := t.remove(right, t.factory(t.recordBytes(id)))
			t.setNode(id, 0, left, newRight)
			return t.rebalance(id), true
		}
	}
	return t.rebalance(id), true
}

func (t *Tree) min(id uint16) uint16 {
	for {
		_, left, _ := t.getNode(id)
		if left == nullNode {
			return id
		}
		id = left
	}
}
