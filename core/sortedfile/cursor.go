package sortedfile

// Cursor walks a Tree's records in key order (or reverse key order).
type Cursor struct {
	t          *Tree
	stack      []uint16
	descending bool
}

// Asc returns a cursor that yields records in ascending key order.
func (t *Tree) Asc() *Cursor {
	c := &Cursor{t: t}
	c.pushLeft(t.root())
	return c
}

// Dsc returns a cursor that yields records in descending key order.
func (t *Tree) Dsc() *Cursor {
	c := &Cursor{t: t, descending: true}
	c.pushRight(t.root())
	return c
}

func (c *Cursor) pushLeft(id uint16) {
	for id != nullNode {
		c.stack = append(c.stack, id)
		_, left, _ := c.t.getNode(id)
		id = left
	}
}

func (c *Cursor) pushRight(id uint16) {
	for id != nullNode {
		c.stack = append(c.stack, id)
		_, _, right := c.t.getNode(id)
		id = right
	}
}

// Next advances the cursor, returning the decoded record and true, or
// (nil, false) once the traversal is exhausted.
func (c *Cursor) Next() (Record, bool) {
	if len(c.stack) == 0 {
		return nil, false
	}
	id := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	rec := c.t.factory(c.t.recordBytes(id))
	_, left, right := c.t.getNode(id)
	if c.descending {
		c.pushRight(left)
	} else {
		c.pushLeft(right)
	}
	return rec, true
}
