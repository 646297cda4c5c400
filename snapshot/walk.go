package snapshot

import "github.com/lumenjs/core/heap"

// reachable performs the breadth-first walk spec's snapshot contract
// describes ("produced by walking every reachable cell from the
// roots"), starting at roots and following each cell's own
// TypeDescriptor.Trace. The returned order is stable given a stable
// Trace order and is used directly as the cell table: a cell's
// position in this slice is the index every reference to it encodes.
func reachable(roots []heap.Cell) []heap.Cell {
	seen := make(map[heap.Cell]bool, len(roots)*4)
	order := make([]heap.Cell, 0, len(roots)*4)
	queue := make([]heap.Cell, 0, len(roots))

	push := func(c heap.Cell) {
		if c == nil || seen[c] {
			return
		}
		seen[c] = true
		order = append(order, c)
		queue = append(queue, c)
	}
	for _, r := range roots {
		push(r)
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		typ := c.Header().Type()
		if typ == nil || typ.Trace == nil {
			continue
		}
		typ.Trace(c, push)
	}
	return order
}
