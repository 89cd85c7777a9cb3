package core

// Flags holds the cached contiguity state of an array. The flags are derived
// from (shape, strides, itemsize) and must be recomputed after every
// structural mutation; they are never computed lazily on read.
type Flags struct {
	CContiguous bool
	FContiguous bool
}

// ComputeFlags rederives both contiguity flags.
//
// The C scan runs from the last axis to the first, checking that each axis's
// stride equals itemsize times the running product of extents already
// scanned. Axes of extent 0 or 1 satisfy the check without consuming the
// running product, so degenerate dimensions never break contiguity. The F
// scan is symmetric, first axis to last.
func ComputeFlags(shape Shape, strides []int, itemsize int) Flags {
	return Flags{
		CContiguous: contiguous(shape, strides, itemsize, len(shape)-1, -1),
		FContiguous: contiguous(shape, strides, itemsize, 0, 1),
	}
}

func contiguous(shape Shape, strides []int, itemsize int, start, step int) bool {
	expected := itemsize
	for i := start; i >= 0 && i < len(shape); i += step {
		if shape[i] == 0 {
			return true // empty arrays are contiguous in every order
		}
		if shape[i] == 1 {
			continue
		}
		if strides[i] != expected {
			return false
		}
		expected *= shape[i]
	}
	return true
}
