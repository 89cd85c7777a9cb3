// Package core provides the shape, stride, and dtype arithmetic underlying
// the norda array engine.
package core

import (
	"encoding/binary"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DataType represents runtime type information for array elements.
type DataType int

// Supported element types.
const (
	Float16 DataType = iota
	BFloat16
	Float32
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float16, BFloat16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the data type is a floating-point type.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// DecodeElement reads one element of dtype dt from b and widens it to float64.
// Bool decodes to 0 or 1. The float64 round trip is exact for every dtype
// except 64-bit integers with magnitude above 2^53; integer-exact paths use
// DecodeInt instead.
func DecodeElement(b []byte, dt DataType) float64 {
	switch dt {
	case Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
	case BFloat16:
		return float64(bfloat16.DecodeFloat32(b[:2])[0])
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Uint8:
		return float64(b[0])
	case Bool:
		if b[0] != 0 {
			return 1
		}
		return 0
	default:
		panic("unknown data type")
	}
}

// EncodeElement narrows v to dtype dt and writes one element into b.
// Bool stores 1 for any non-zero v.
func EncodeElement(b []byte, dt DataType, v float64) {
	switch dt {
	case Float16:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case BFloat16:
		copy(b[:2], bfloat16.EncodeFloat32([]float32{float32(v)}))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case Uint8:
		b[0] = uint8(v)
	case Bool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	default:
		panic("unknown data type")
	}
}

// IsInteger reports whether the data type is an integer type. Bool counts
// as a one-bit integer here.
func (dt DataType) IsInteger() bool {
	switch dt {
	case Int32, Int64, Uint8, Bool:
		return true
	}
	return false
}

// DecodeInt reads one integer element of dtype dt from b without a float64
// round trip, so Int64 values above 2^53 stay exact. Only the integer
// dtypes are valid.
func DecodeInt(b []byte, dt DataType) int64 {
	switch dt {
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	case Uint8, Bool:
		return int64(b[0])
	default:
		panic("not an integer data type")
	}
}

// EncodeInt writes one integer element into b, the integer counterpart of
// EncodeElement. Bool stores 1 for any non-zero v.
func EncodeInt(b []byte, dt DataType, v int64) {
	switch dt {
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	case Uint8:
		b[0] = uint8(v)
	case Bool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	default:
		panic("not an integer data type")
	}
}
