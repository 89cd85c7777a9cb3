package ndarray

import (
	"fmt"
	"math"

	"github.com/norda-ml/norda/internal/core"
)

// View operations. All of these construct new arrays that alias the
// receiver's memory block; none of them copy device memory. Reshape is the
// one exception: when the requested shape is not satisfiable by stride
// recomputation it falls back to materializing a contiguous copy.

// Reshape returns an array with the requested shape. At most one extent may
// be -1, inferred from the remaining extents. The result is a view whenever
// the layout permits pure stride recomputation, otherwise a C-ordered copy.
func (a *Array) Reshape(newShape core.Shape) (*Array, error) {
	newShape, err := a.inferShape(newShape)
	if err != nil {
		return nil, err
	}
	if newShape.NumElements() != a.size {
		return nil, &core.ShapeError{Op: "reshape", A: a.shape.Clone(), B: newShape}
	}

	if strides, ok := core.ReshapeStrides(a.shape, a.strides, newShape, a.dtype.Size()); ok {
		return a.view(newShape, strides, 0), nil
	}

	c, err := a.Copy(core.RowMajor)
	if err != nil {
		return nil, err
	}
	out := c.view(newShape, core.ContiguousStrides(newShape, a.dtype.Size(), core.RowMajor), 0)
	c.Release() // the view keeps the block alive
	return out, nil
}

// inferShape resolves a single -1 extent from the array size.
func (a *Array) inferShape(s core.Shape) (core.Shape, error) {
	out := s.Clone()
	infer := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("reshape: can only infer one dimension, got %v", s)
			}
			infer = i
		case d < 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d", d)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || a.size%known != 0 {
			return nil, &core.ShapeError{Op: "reshape", A: a.shape.Clone(), B: s}
		}
		out[infer] = a.size / known
	}
	return out, nil
}

// Ravel returns a flattened view when possible, otherwise a flattened copy.
func (a *Array) Ravel() (*Array, error) {
	return a.Reshape(core.Shape{a.size})
}

// Transpose returns a view with axes permuted. With no arguments the axis
// order is reversed.
func (a *Array) Transpose(axes ...int) (*Array, error) {
	n := len(a.shape)
	if len(axes) == 0 {
		axes = make([]int, n)
		for i := range axes {
			axes[i] = n - 1 - i
		}
	}
	if len(axes) != n {
		return nil, fmt.Errorf("transpose: got %d axes for rank %d", len(axes), n)
	}
	seen := make([]bool, n)
	shape := make(core.Shape, n)
	strides := make([]int, n)
	for i, ax := range axes {
		ax, err := a.normAxis(ax)
		if err != nil {
			return nil, err
		}
		if seen[ax] {
			return nil, &core.AxisError{Axis: ax, NDim: n, Duplicate: true}
		}
		seen[ax] = true
		shape[i] = a.shape[ax]
		strides[i] = a.strides[ax]
	}
	return a.view(shape, strides, 0), nil
}

// T is shorthand for a full axis reversal.
func (a *Array) T() *Array {
	v, err := a.Transpose()
	if err != nil {
		panic(err) // unreachable: the default permutation is always valid
	}
	return v
}

// Range selects [Start, Stop) with the given Step along one axis. Step 0 is
// treated as 1. Negative Start and Stop count from the end of the axis; the
// bounds are clamped the way slicing conventionally clamps. A negative Step
// walks the axis in reverse, producing a negative-stride view.
type Range struct {
	Start, Stop, Step int
}

// All selects an entire axis.
var All = Range{Start: 0, Stop: math.MaxInt, Step: 1}

// resolve returns the first index, element count, and step for an axis of
// extent m.
func (r Range) resolve(m int) (start, count, step int, err error) {
	step = r.Step
	if step == 0 {
		step = 1
	}

	start, stop := r.Start, r.Stop
	if start < 0 {
		start += m
	}
	if stop < 0 && stop != math.MinInt {
		stop += m
	}

	if step > 0 {
		start = min(max(start, 0), m)
		stop = min(max(stop, 0), m)
		if stop > start {
			count = (stop - start + step - 1) / step
		}
	} else {
		start = min(max(start, 0), m-1)
		stop = max(stop, -1)
		if stop == math.MaxInt {
			stop = -1
		}
		if start > stop {
			count = (start - stop - step - 1) / -step
		}
		if m == 0 {
			start, count = 0, 0
		}
	}
	return start, count, step, nil
}

// Slice returns a strided view selecting ranges along the leading axes.
// Unspecified trailing axes are taken whole.
func (a *Array) Slice(ranges ...Range) (*Array, error) {
	if len(ranges) > len(a.shape) {
		return nil, fmt.Errorf("slice: %d ranges for rank %d", len(ranges), len(a.shape))
	}
	shape := a.shape.Clone()
	strides := append([]int(nil), a.strides...)
	offset := 0
	for i, r := range ranges {
		start, count, step, err := r.resolve(a.shape[i])
		if err != nil {
			return nil, err
		}
		offset += start * a.strides[i]
		shape[i] = count
		strides[i] = a.strides[i] * step
	}
	return a.view(shape, strides, offset), nil
}

// Flip returns a reversed view along one axis.
func (a *Array) Flip(axis int) (*Array, error) {
	axis, err := a.normAxis(axis)
	if err != nil {
		return nil, err
	}
	ranges := make([]Range, axis+1)
	for i := range ranges {
		ranges[i] = All
	}
	ranges[axis] = Range{Start: a.shape[axis] - 1, Stop: math.MinInt, Step: -1}
	return a.Slice(ranges...)
}

// BroadcastTo returns a read-only-by-convention view stretched to shape.
// Stretched axes get a stride of 0, so their elements alias.
func (a *Array) BroadcastTo(shape core.Shape) (*Array, error) {
	strides, err := core.BroadcastStrides(a.shape, a.strides, shape)
	if err != nil {
		return nil, err
	}
	return a.view(shape.Clone(), strides, 0), nil
}

// Squeeze removes extent-1 axes. With arguments only the named axes are
// removed; naming an axis whose extent is not 1 is an error.
func (a *Array) Squeeze(axes ...int) (*Array, error) {
	drop := make([]bool, len(a.shape))
	if len(axes) == 0 {
		for i, d := range a.shape {
			drop[i] = d == 1
		}
	} else {
		for _, ax := range axes {
			ax, err := a.normAxis(ax)
			if err != nil {
				return nil, err
			}
			if a.shape[ax] != 1 {
				return nil, fmt.Errorf("squeeze: axis %d has extent %d", ax, a.shape[ax])
			}
			drop[ax] = true
		}
	}
	shape := make(core.Shape, 0, len(a.shape))
	strides := make([]int, 0, len(a.strides))
	for i := range a.shape {
		if !drop[i] {
			shape = append(shape, a.shape[i])
			strides = append(strides, a.strides[i])
		}
	}
	return a.view(shape, strides, 0), nil
}

// ExpandDims inserts an extent-1 axis before position axis (axis may equal
// the rank to append).
func (a *Array) ExpandDims(axis int) (*Array, error) {
	n := len(a.shape)
	if axis < -(n + 1) || axis > n {
		return nil, &core.AxisError{Axis: axis, NDim: n + 1}
	}
	if axis < 0 {
		axis += n + 1
	}
	shape := make(core.Shape, 0, n+1)
	strides := make([]int, 0, n+1)
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, a.shape[axis:]...)
	strides = append(strides, a.strides[:axis]...)
	strides = append(strides, 0)
	strides = append(strides, a.strides[axis:]...)
	return a.view(shape, strides, 0), nil
}

// Diagonal returns a view of the diagonal of axes (axis1, axis2), offset by
// k (positive k selects above the main diagonal). The diagonal becomes the
// last axis of the result; its stride is the sum of the two source strides.
func (a *Array) Diagonal(k, axis1, axis2 int) (*Array, error) {
	axis1, err := a.normAxis(axis1)
	if err != nil {
		return nil, err
	}
	axis2, err = a.normAxis(axis2)
	if err != nil {
		return nil, err
	}
	if axis1 == axis2 {
		return nil, &core.AxisError{Axis: axis2, NDim: len(a.shape), Duplicate: true}
	}

	n1, n2 := a.shape[axis1], a.shape[axis2]
	offset := 0
	var diag int
	if k >= 0 {
		diag = max(min(n1, n2-k), 0)
		offset = k * a.strides[axis2]
	} else {
		diag = max(min(n1+k, n2), 0)
		offset = -k * a.strides[axis1]
	}

	shape := make(core.Shape, 0, len(a.shape)-1)
	strides := make([]int, 0, len(a.strides)-1)
	for i := range a.shape {
		if i != axis1 && i != axis2 {
			shape = append(shape, a.shape[i])
			strides = append(strides, a.strides[i])
		}
	}
	shape = append(shape, diag)
	strides = append(strides, a.strides[axis1]+a.strides[axis2])
	return a.view(shape, strides, offset), nil
}
