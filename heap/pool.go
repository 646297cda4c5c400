package heap

// Pool manages every block belonging to one size class: an active block
// cells are popped from, a list of non-full blocks to fall back to when
// the active block empties, and the complete block list sweep walks.
type Pool struct {
	Name          string
	cellsPerBlock int
	factory       func() Cell

	active  *block
	nonFull []*block
	all     []*block

	cellSize uint32
}

// NewPool creates an (initially empty) pool for one size class. factory
// must return a freshly zero-valued Cell of the pool's concrete type
// with its Header populated via NewHeader.
func NewPool(name string, cellsPerBlock int, cellSize uint32, factory func() Cell) *Pool {
	return &Pool{Name: name, cellsPerBlock: cellsPerBlock, cellSize: cellSize, factory: factory}
}

// Allocate returns a fresh cell from this size class, acquiring a new
// block if neither the active block nor any non-full block has room.
func (p *Pool) Allocate() Cell {
	if p.active == nil || p.active.full() {
		p.rotateActive()
	}
	return p.active.allocate()
}

func (p *Pool) rotateActive() {
	if n := len(p.nonFull); n > 0 {
		p.active = p.nonFull[n-1]
		p.nonFull = p.nonFull[:n-1]
		return
	}
	b := newBlock(p.cellsPerBlock, p.factory)
	p.all = append(p.all, b)
	p.active = b
}

// Blocks returns every block ever acquired by this pool, for sweep
// traversal.
func (p *Pool) Blocks() []*block { return p.all }

// sweepBlock walks one block, finalizing and freeing unmarked cells and
// resetting survivors' mark bits. Returns the number of cells freed and
// the number still live.
func sweepBlock(b *block, onFinalize func(Cell)) (freed, live int) {
	for i, c := range b.cells {
		h := c.Header()
		if !h.alive {
			continue
		}
		switch h.Mark() {
		case Unmarked:
			if onFinalize != nil && h.typ != nil && h.typ.Finalize != nil {
				onFinalize(c)
			}
			b.release(i)
			freed++
		default: // Marked or Pinned: survives, reset for next cycle
			h.setMark(Unmarked)
			live++
		}
	}
	// A block that gained free cells and isn't the active block belongs
	// back on the non-full list so future allocations can reuse it.
	return freed, live
}

// Sweep reclaims every unmarked cell across all blocks in the pool and
// rebuilds the non-full list. Returns total freed and live cell counts.
func (p *Pool) Sweep() (freed, live int) {
	p.nonFull = p.nonFull[:0]
	for _, b := range p.all {
		f, l := sweepBlock(b, func(c Cell) { c.Header().typ.Finalize(c) })
		freed += f
		live += l
		if b != p.active && !b.full() {
			p.nonFull = append(p.nonFull, b)
		}
	}
	return freed, live
}

// LiveBytes reports the byte accounting for cells that survived the
// most recent sweep (or are newly allocated since, counted optimistically
// as live until proven otherwise by the next cycle).
func (p *Pool) LiveBytes() uint64 {
	var live int
	for _, b := range p.all {
		live += b.liveCount
	}
	return uint64(live) * uint64(p.cellSize)
}
