package vm

import "github.com/cairndb/cairn/core/table"

// frame is one routine call's local variable slots. The batch itself
// runs in an implicit outermost frame sized to its own DECLAREs.
type frame struct {
	locals []table.Value
}

// loopState is the per-loop-id box ForInit/ForSortInit install and
// ForNext/ForSortNext consume; exactly one of cursor/sorted is set.
type loopState struct {
	cursor rowCursor
	sorted *sortedLoopState
}

type sortedLoopState struct {
	rows []sortedRow
	ix   int
}

type sortedRow struct {
	key  []table.Value
	vals []table.Value
}
