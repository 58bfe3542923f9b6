package sortedfile

// Insert adds rec to the tree, or overwrites the record already stored
// under rec's key if one exists. Returns errTreeFull if the page's node
// budget is exhausted and the caller must split the page.
func (t *Tree) Insert(rec Record) error {
	newRoot, err := t.insert(t.root(), rec)
	if err != nil {
		return err
	}
	t.setRoot(newRoot)
	t.dirty = true
	return nil
}

func (t *Tree) insert(id uint16, rec Record) (uint16, error) {
	if id == nullNode {
		nid, err := t.allocNode()
		if err != nil {
			return id, err
		}
		buf := make([]byte, t.recSize)
		rec.Save(buf)
		copy(t.recordBytes(nid), buf)
		t.setNode(nid, 0, nullNode, nullNode)
		t.setCount(t.Count() + 1)
		return nid, nil
	}

	_, left, right := t.getNode(id)
	switch cmp := rec.Compare(t.recordBytes(id)); {
	case cmp < 0:
		newLeft, err := t.insert(left, rec)
		if err != nil {
			return id, err
		}
		left = newLeft
	case cmp > 0:
		newRight, err := t.insert(right, rec)
		if err != nil {
			return id, err
		}
		right = newRight
	default:
		buf := make([]byte, t.recSize)
		rec.Save(buf)
		copy(t.recordBytes(id), buf)
		return id, nil
	}
	t.setNode(id, 0, left, right)
	return t.rebalance(id), nil
}

// height walks the subtree rooted at id to compute its height. Balance
// factors are persisted per node (2 bits), but heights are not, so
// rebalancing recomputes them on the fly; page-resident trees are bounded
// by MaxNodes so this stays cheap.
func (t *Tree) height(id uint16) int {
	if id == nullNode {
		return 0
	}
	_, left, right := t.getNode(id)
	lh, rh := t.height(left), t.height(right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

func (t *Tree) rebalance(id uint16) uint16 {
	_, left, right := t.getNode(id)
	bf := t.height(right) - t.height(left)
	switch {
	case bf < -1:
		_, ll, lr := t.getNode(left)
		if t.height(lr) > t.height(ll) {
			newLeft := t.rotateLeft(left)
			_, _, r := t.getNode(id)
			t.setNode(id, 0, newLeft, r)
		}
		id = t.rotateRight(id)
	case bf > 1:
		_, rl, rr := t.getNode(right)
		if t.height(rl) > t.height(rr) {
			newRight := t.rotateRight(right)
			_, l, _ := t.getNode(id)
			t.setNode(id, 0, l, newRight)
		}
		id = t.rotateLeft(id)
	default:
		t.setBalanceFactor(id, bf)
	}
	return id
}

func (t *Tree) setBalanceFactor(id uint16, bf int) {
	var packed int
	switch {
	case bf < 0:
		packed = -1
	case bf > 0:
		packed = 1
	default:
		packed = 0
	}
	_, l, r := t.getNode(id)
	t.setNode(id, packed, l, r)
}

func (t *Tree) fixBalance(id uint16) {
	_, l, r := t.getNode(id)
	t.setBalanceFactor(id, t.height(r)-t.height(l))
}

// rotateLeft promotes id's right child. id.right.left becomes id's new
// right child.
func (t *Tree) rotateLeft(id uint16) uint16 {
	_, left, right := t.getNode(id)
	_, rl, rr := t.getNode(right)
	t.setNode(id, 0, left, rl)
	t.setNode(right, 0, id, rr)
	t.fixBalance(id)
	t.fixBalance(right)
	return right
}

// rotateRight promotes id's left child. id.left.right becomes id's new
// left child.
func (t *Tree) rotateRight(id uint16) uint16 {
	_, left, right := t.getNode(id)
	_, ll, lr := t.getNode(left)
	t.setNode(id, 0, lr, right)
	t.setNode(left, 0, ll, id)
	t.fixBalance(id)
	t.fixBalance(left)
	return left
}
