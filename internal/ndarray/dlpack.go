package ndarray

import (
	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

// DLPack-compatible dtype codes.
const (
	DLInt    = 0
	DLUInt   = 1
	DLFloat  = 2
	DLBFloat = 4
	DLBool   = 6
)

// Exported describes a tensor for zero-copy consumption by foreign
// runtimes. Strides are in elements, the offset in bytes from the start of
// the block.
type Exported struct {
	Block   *device.Block
	Device  string
	Offset  int
	Shape   []int
	Strides []int
	Code    int
	Bits    int
	release func()
}

// Release returns the reference the export holds on the underlying block.
// The consumer must call it exactly once when it is done with the memory.
func (e *Exported) Release() {
	if e.release != nil {
		e.release()
		e.release = nil
	}
}

func dlCode(dt core.DataType) (code, bits int) {
	switch dt {
	case core.BFloat16:
		return DLBFloat, 16
	case core.Float16, core.Float32, core.Float64:
		return DLFloat, dt.Size() * 8
	case core.Int32, core.Int64:
		return DLInt, dt.Size() * 8
	case core.Uint8:
		return DLUInt, 8
	case core.Bool:
		return DLBool, 8
	}
	return DLInt, dt.Size() * 8
}

// Export pins the array's buffer and returns a descriptor over it. The
// array remains valid independently; the descriptor owns one extra
// reference released through Exported.Release.
func (a *Array) Export() *Exported {
	blk := a.block
	blk.Retain()
	itemsize := a.Itemsize()
	strides := make([]int, len(a.strides))
	for i, s := range a.strides {
		strides[i] = s / itemsize
	}
	code, bits := dlCode(a.dtype)
	return &Exported{
		Block:   blk,
		Device:  a.eng.dev.Name(),
		Offset:  a.offset,
		Shape:   a.shape.Clone(),
		Strides: strides,
		Code:    code,
		Bits:    bits,
		release: blk.Release,
	}
}
