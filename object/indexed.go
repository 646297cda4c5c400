package object

import "github.com/lumenjs/core/value"

// sparseDensityThreshold is the occupied/length ratio below which
// indexed storage migrates from a dense vector to a sparse map (spec
// §4.4: "default: density >= 25%").
const sparseDensityThreshold = 0.25

// indexedStorage holds an object's integer-keyed properties, starting
// dense and migrating to sparse once growth would drop occupancy below
// the threshold.
type indexedStorage struct {
	dense    []value.Value
	sparse   map[uint32]value.Value
	length   uint32
	isSparse bool
}

func (s *indexedStorage) Get(idx uint32) (value.Value, bool) {
	if s.isSparse {
		v, ok := s.sparse[idx]
		return v, ok
	}
	if idx >= uint32(len(s.dense)) {
		return value.Value(0), false
	}
	v := s.dense[idx]
	if v.IsEmpty() {
		return value.Value(0), false
	}
	return v, true
}

func (s *indexedStorage) Set(idx uint32, v value.Value) {
	if s.isSparse {
		s.sparse[idx] = v
		if idx+1 > s.length {
			s.length = idx + 1
		}
		return
	}
	newLen := idx + 1
	if newLen <= uint32(len(s.dense)) {
		s.dense[idx] = v
		if newLen > s.length {
			s.length = newLen
		}
		return
	}
	occupied := s.occupiedCount() + 1
	if float64(occupied)/float64(newLen) < sparseDensityThreshold {
		s.migrateToSparse()
		s.sparse[idx] = v
		s.length = newLen
		return
	}
	grown := make([]value.Value, newLen)
	copy(grown, s.dense)
	for i := len(s.dense); i < int(newLen); i++ {
		grown[i] = value.Empty()
	}
	grown[idx] = v
	s.dense = grown
	s.length = newLen
}

func (s *indexedStorage) Delete(idx uint32) {
	if s.isSparse {
		delete(s.sparse, idx)
		return
	}
	if idx < uint32(len(s.dense)) {
		s.dense[idx] = value.Empty()
	}
}

// Length reports the array length, maintained coherently with the
// backing storage as spec §4.4 requires.
func (s *indexedStorage) Length() uint32 { return s.length }

func (s *indexedStorage) occupiedCount() int {
	n := 0
	for _, v := range s.dense {
		if !v.IsEmpty() {
			n++
		}
	}
	return n
}

func (s *indexedStorage) migrateToSparse() {
	s.sparse = make(map[uint32]value.Value, len(s.dense))
	for i, v := range s.dense {
		if !v.IsEmpty() {
			s.sparse[uint32(i)] = v
		}
	}
	s.dense = nil
	s.isSparse = true
}

// trace offers every stored value to fn, used by the Object type
// descriptor to find outgoing cell references.
func (s *indexedStorage) trace(fn func(value.Value)) {
	if s.isSparse {
		for _, v := range s.sparse {
			fn(v)
		}
		return
	}
	for _, v := range s.dense {
		fn(v)
	}
}

// forEach offers every occupied (index, value) pair to fn, in ascending
// index order for dense storage (sparse storage has no stable order to
// offer beyond Go's map iteration, which callers that need determinism
// — a snapshot writer, say — must sort themselves).
func (s *indexedStorage) forEach(fn func(idx uint32, v value.Value)) {
	if s.isSparse {
		for idx, v := range s.sparse {
			fn(idx, v)
		}
		return
	}
	for i, v := range s.dense {
		if !v.IsEmpty() {
			fn(uint32(i), v)
		}
	}
}
