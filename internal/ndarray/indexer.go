package ndarray

import "github.com/norda-ml/norda/internal/core"

// Indexer describes a flat iteration space to a kernel launch: the total
// element count and the logical shape it factors into. It owns nothing and
// is recomputed per operation.
type Indexer struct {
	Size  int
	Shape core.Shape
}

// NewIndexer builds the iteration descriptor for shape.
func NewIndexer(shape core.Shape) Indexer {
	return Indexer{Size: shape.NumElements(), Shape: shape}
}

// ReducedView collapses adjacent axes whose strides are dense relative to
// each other, shrinking the descriptor a kernel has to walk. The traversal
// order of element offsets is unchanged, so this is invisible to kernels
// beyond the smaller metadata. Extent-1 axes are dropped outright.
func ReducedView(shape core.Shape, strides []int) (core.Shape, []int) {
	outShape := make(core.Shape, 0, len(shape))
	outStrides := make([]int, 0, len(strides))

	for i := 0; i < len(shape); i++ {
		if shape[i] == 1 {
			continue
		}
		if n := len(outShape); n > 0 && outStrides[n-1] == strides[i]*shape[i] {
			// Previous axis steps exactly one row of this axis: merge.
			outShape[n-1] *= shape[i]
			outStrides[n-1] = strides[i]
			continue
		}
		outShape = append(outShape, shape[i])
		outStrides = append(outStrides, strides[i])
	}

	if len(outShape) == 0 {
		// Scalar or all-degenerate: keep a single unit axis so kernels have
		// something to iterate.
		outShape = append(outShape, 1)
		outStrides = append(outStrides, 0)
	}
	return outShape, outStrides
}
