package core

import "fmt"

// Shape represents the per-axis extents of an array.
type Shape []int

// Order selects a memory layout for contiguous strides.
type Order byte

// Supported memory orders. AnyOrder defers to the source array's own
// layout, preferring ColMajor only when the source is exclusively
// F-contiguous.
const (
	RowMajor Order = 'C' // last axis fastest
	ColMajor Order = 'F' // first axis fastest
	AnyOrder Order = 'A'
)

// NumElements returns the total number of elements described by the shape.
// A rank-0 shape describes a single scalar element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that every extent is non-negative. Zero extents are legal
// and describe empty arrays.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ContiguousStrides returns the canonical byte strides for a dense layout of
// the shape. In RowMajor order the last axis has stride itemsize and each
// preceding stride is the following stride times the following extent; in
// ColMajor order the scan runs the other way.
func ContiguousStrides(s Shape, itemsize int, order Order) []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}
	switch order {
	case ColMajor:
		strides[0] = itemsize
		for i := 1; i < len(s); i++ {
			strides[i] = strides[i-1] * max(s[i-1], 1)
		}
	default:
		strides[len(s)-1] = itemsize
		for i := len(s) - 2; i >= 0; i-- {
			strides[i] = strides[i+1] * max(s[i+1], 1)
		}
	}
	return strides
}

// BroadcastShapes aligns two shapes from the trailing axis inward following
// the usual broadcasting rules: axes are compatible when equal or when either
// is 1; missing leading axes are treated as 1. Returns the broadcast shape
// and whether either operand needs stretching.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := false

	for i := 0; i < maxLen; i++ {
		aDim, bDim := 1, 1
		if j := len(a) - 1 - i; j >= 0 {
			aDim = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			bDim = b[j]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, &ShapeError{Op: "broadcast", A: a.Clone(), B: b.Clone()}
		}
	}

	return result, needsBroadcast, nil
}

// BroadcastStrides returns the strides that view (from, strides) as shape to.
// Stretched size-1 axes and prepended axes get a stride of 0, so repeated
// reads alias the single source element without copying.
func BroadcastStrides(from Shape, strides []int, to Shape) ([]int, error) {
	if len(to) < len(from) {
		return nil, &ShapeError{Op: "broadcast", A: from.Clone(), B: to.Clone()}
	}
	out := make([]int, len(to))
	for i := 0; i < len(from); i++ {
		src := len(from) - 1 - i
		dst := len(to) - 1 - i
		switch {
		case from[src] == to[dst]:
			out[dst] = strides[src]
		case from[src] == 1:
			out[dst] = 0
		default:
			return nil, &ShapeError{Op: "broadcast", A: from.Clone(), B: to.Clone()}
		}
	}
	return out, nil
}

// ReshapeStrides determines whether newShape is satisfiable from
// (shape, strides) by stride recomputation alone, without copying. Axes may
// be merged when their strides are dense relative to each other and split
// into contiguous sub-axes. Returns the new strides and true on success;
// callers must materialize a contiguous copy first when it reports false.
func ReshapeStrides(shape Shape, strides []int, newShape Shape, itemsize int) ([]int, bool) {
	if shape.NumElements() != newShape.NumElements() {
		return nil, false
	}
	if shape.NumElements() == 0 {
		return ContiguousStrides(newShape, itemsize, RowMajor), true
	}

	// Drop extent-1 axes of the source; they carry no layout information.
	var oldDims, oldStrides []int
	for i, d := range shape {
		if d != 1 {
			oldDims = append(oldDims, d)
			oldStrides = append(oldStrides, strides[i])
		}
	}
	if len(oldDims) == 0 {
		oldDims = []int{1}
		oldStrides = []int{itemsize}
	}

	newStrides := make([]int, len(newShape))
	oi, ni := 0, 0
	for ni < len(newShape) && oi < len(oldDims) {
		// Grow a run of old axes and a run of new axes until their element
		// counts match.
		op, np := oldDims[oi], newShape[ni]
		oe, ne := oi+1, ni+1
		for op != np {
			if op < np {
				op *= oldDims[oe]
				oe++
			} else {
				np *= newShape[ne]
				ne++
			}
		}

		// The old run must be internally dense for the merge to be legal.
		for k := oi; k < oe-1; k++ {
			if oldStrides[k] != oldStrides[k+1]*oldDims[k+1] {
				return nil, false
			}
		}

		// Split the run over the new axes, last axis fastest.
		newStrides[ne-1] = oldStrides[oe-1]
		for k := ne - 1; k > ni; k-- {
			newStrides[k-1] = newStrides[k] * newShape[k]
		}
		oi, ni = oe, ne
	}

	// Remaining new axes must all be extent 1.
	for ; ni < len(newShape); ni++ {
		if newShape[ni] != 1 {
			return nil, false
		}
		newStrides[ni] = itemsize
	}
	return newStrides, true
}
