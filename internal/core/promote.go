package core

// Type promotion rules consumed by the reduction engine. These are pure
// functions over the dtype table; the engine never inspects dtypes directly.

// AccumulationDType returns the dtype reductions accumulate in for an input
// of dtype dt. Narrow integer inputs widen to Int64 and 16-bit floats widen
// to Float32 to bound overflow and rounding error.
func AccumulationDType(dt DataType) DataType {
	switch dt {
	case Float16, BFloat16:
		return Float32
	case Uint8, Int32, Bool:
		return Int64
	default:
		return dt
	}
}

// CommonDType returns the smallest dtype both a and b convert to without
// loss of range.
func CommonDType(a, b DataType) DataType {
	if a == b {
		return a
	}
	if rank(a) < rank(b) {
		a, b = b, a
	}
	// Mixing any float with any integer promotes to the float.
	if a.IsFloat() && !b.IsFloat() {
		return a
	}
	return a
}

// rank orders dtypes by promotion precedence.
func rank(dt DataType) int {
	switch dt {
	case Bool:
		return 0
	case Uint8:
		return 1
	case Int32:
		return 2
	case Int64:
		return 3
	case Float16:
		return 4
	case BFloat16:
		return 5
	case Float32:
		return 6
	case Float64:
		return 7
	default:
		return -1
	}
}

// CastValue converts v to the value it would hold after a cast to dt,
// widened back to float64. Integer dtypes truncate, Bool collapses to 0/1.
func CastValue(v float64, dt DataType) float64 {
	switch dt {
	case Int32:
		return float64(int32(v))
	case Int64:
		return float64(int64(v))
	case Uint8:
		return float64(uint8(v))
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	case Float32, Float16, BFloat16:
		return float64(float32(v))
	default:
		return v
	}
}
