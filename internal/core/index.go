package core

// StridedIter walks a strided iteration space in C order, yielding the byte
// offset of each element. It advances an odometer instead of dividing the
// flat index on every step, which keeps host kernels cheap for high ranks.
type StridedIter struct {
	shape   Shape
	strides []int
	idx     []int
	offset  int
	done    bool
}

// NewStridedIter returns an iterator over shape/strides starting at base.
// The iterator is exhausted immediately for empty shapes.
func NewStridedIter(shape Shape, strides []int, base int) *StridedIter {
	it := &StridedIter{
		shape:   shape,
		strides: strides,
		idx:     make([]int, len(shape)),
		offset:  base,
	}
	if shape.NumElements() == 0 {
		it.done = true
	}
	return it
}

// Next returns the byte offset of the next element, or ok=false when the
// space is exhausted.
func (it *StridedIter) Next() (offset int, ok bool) {
	if it.done {
		return 0, false
	}
	offset = it.offset

	for d := len(it.shape) - 1; ; d-- {
		if d < 0 {
			it.done = true
			break
		}
		it.idx[d]++
		it.offset += it.strides[d]
		if it.idx[d] < it.shape[d] {
			break
		}
		it.idx[d] = 0
		it.offset -= it.strides[d] * it.shape[d]
	}
	return offset, true
}

// ByteOffset returns the byte offset of flat C-order index i within the
// given shape and byte strides.
func ByteOffset(i int, shape Shape, strides []int) int {
	offset := 0
	for d := len(shape) - 1; d >= 0; d-- {
		if shape[d] == 0 {
			return 0
		}
		offset += (i % shape[d]) * strides[d]
		i /= shape[d]
	}
	return offset
}
