package heap

// LargeObjectSpace holds cells whose declared size exceeds the engine's
// large-object threshold (EngineParams.LargeObjectThreshold). Each such
// cell gets its own ordinary Go allocation rather than living inside a
// size-class block: threading a per-object allocation onto a shared
// free list would buy nothing, since by definition there is no sibling
// cell of the same size to reuse the slot.
type LargeObjectSpace struct {
	objects map[Cell]struct{}
}

// NewLargeObjectSpace constructs an empty large-object space.
func NewLargeObjectSpace() *LargeObjectSpace {
	return &LargeObjectSpace{objects: make(map[Cell]struct{})}
}

// Track registers c, freshly allocated by the caller, as live.
func (s *LargeObjectSpace) Track(c Cell) {
	c.Header().alive = true
	s.objects[c] = struct{}{}
}

// Sweep finalizes and drops every unmarked object, resetting survivors'
// mark bits for the next cycle. Returns the number freed and the number
// still live.
func (s *LargeObjectSpace) Sweep(onFinalize func(Cell)) (freed, live int) {
	for c := range s.objects {
		h := c.Header()
		if !h.alive {
			delete(s.objects, c)
			continue
		}
		switch h.Mark() {
		case Unmarked:
			if onFinalize != nil && h.typ != nil && h.typ.Finalize != nil {
				onFinalize(c)
			}
			h.alive = false
			delete(s.objects, c)
			freed++
		default:
			h.setMark(Unmarked)
			live++
		}
	}
	return freed, live
}

// LiveBytes sums the declared size of every tracked object.
func (s *LargeObjectSpace) LiveBytes() uint64 {
	var total uint64
	for c := range s.objects {
		total += uint64(c.Header().Size())
	}
	return total
}

// Len reports how many large objects are currently tracked.
func (s *LargeObjectSpace) Len() int { return len(s.objects) }
