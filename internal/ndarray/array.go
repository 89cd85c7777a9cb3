// Package ndarray implements the device-backed N-dimensional array core:
// memory ownership and views, layout bookkeeping, reductions, sorting, and
// kernel dispatch. Shape and stride arithmetic lives in internal/core;
// device capabilities in internal/device.
package ndarray

import (
	"context"
	"fmt"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
	"github.com/norda-ml/norda/internal/kernelcache"
)

// Engine binds a device to a kernel cache and owns the policy knobs shared
// by every array that it creates.
type Engine struct {
	dev   device.Device
	cache *kernelcache.Cache

	// blockingTransfers makes Get/Set with a nil stream synchronize before
	// returning. This is an explicit configuration choice, not inferred
	// from call context.
	blockingTransfers bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCacheDir enables on-disk persistence of compiled kernels.
func WithCacheDir(dir string) EngineOption {
	return func(e *Engine) { e.cache = kernelcache.New(e.dev, dir) }
}

// WithAsyncTransfers makes host transfers with a nil stream enqueue without
// synchronizing; completion becomes the caller's responsibility.
func WithAsyncTransfers() EngineOption {
	return func(e *Engine) { e.blockingTransfers = false }
}

// NewEngine creates an engine over dev. Transfers block by default.
func NewEngine(dev device.Device, opts ...EngineOption) *Engine {
	e := &Engine{
		dev:               dev,
		blockingTransfers: true,
	}
	e.cache = kernelcache.New(dev, "")
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Device returns the engine's device.
func (e *Engine) Device() device.Device { return e.dev }

// launch compiles (or fetches) the named kernel and enqueues one execution
// over n elements on the default stream.
func (e *Engine) launch(entry string, n int, args ...device.Arg) error {
	return e.launchOn(nil, entry, n, args...)
}

// launchOn enqueues on the given stream; nil means the default stream.
// Operations working against a caller-supplied stream must keep every
// dependent kernel on that same stream to preserve enqueue ordering.
func (e *Engine) launchOn(s device.Stream, entry string, n int, args ...device.Arg) error {
	kern, err := e.cache.Function(context.Background(), kernelSource(entry), device.CompileOptions{
		Entry: entry,
		Arch:  e.dev.Name(),
	})
	if err != nil {
		return err
	}
	if s == nil {
		s = e.dev.DefaultStream()
	}
	return kern.Launch(s, n, args...)
}

// Array is a dense N-dimensional array on a device.
//
// An array with a nil base exclusively owns its memory block; a view shares
// the block with its base, which always points at the true owner (base
// chains are flattened at construction). Shape and strides are only ever
// replaced wholesale through setLayout, which recomputes the cached
// contiguity flags in the same step.
type Array struct {
	eng    *Engine
	block  *device.Block
	offset int // bytes from the block base
	dtype  core.DataType
	base   *Array

	shape   core.Shape
	strides []int
	size    int
	flags   core.Flags
}

// New allocates an owning array of the given shape and dtype. Contents are
// undefined; use Zeros or Full for initialized arrays.
func (e *Engine) New(shape core.Shape, dtype core.DataType) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	shape = shape.Clone()
	nbytes := shape.NumElements() * dtype.Size()
	block, err := e.dev.Allocate(nbytes)
	if err != nil {
		return nil, fmt.Errorf("allocating %v %s array: %w", shape, dtype, err)
	}
	a := &Array{eng: e, block: block, dtype: dtype}
	a.setLayout(shape, core.ContiguousStrides(shape, dtype.Size(), core.RowMajor))
	return a, nil
}

// Zeros allocates an array and fills it with zero.
func (e *Engine) Zeros(shape core.Shape, dtype core.DataType) (*Array, error) {
	return e.Full(shape, dtype, 0)
}

// Full allocates an array and fills it with value.
func (e *Engine) Full(shape core.Shape, dtype core.DataType, value float64) (*Array, error) {
	a, err := e.New(shape, dtype)
	if err != nil {
		return nil, err
	}
	if err := e.launch("fill", a.size, a.arg(), device.Scalar{Value: value}); err != nil {
		a.Release()
		return nil, err
	}
	return a, nil
}

// Arange allocates a 1-D array [start, start+step, ...) of n elements.
func (e *Engine) Arange(start, step float64, n int, dtype core.DataType) (*Array, error) {
	a, err := e.New(core.Shape{n}, dtype)
	if err != nil {
		return nil, err
	}
	if err := e.launch("arange", n, a.arg(), device.Scalar{Value: start}, device.Scalar{Value: step}); err != nil {
		a.Release()
		return nil, err
	}
	return a, nil
}

// FromFloat64s allocates an array of the given shape and uploads the host
// values, narrowing to dtype.
func (e *Engine) FromFloat64s(values []float64, shape core.Shape, dtype core.DataType) (*Array, error) {
	if len(values) != shape.NumElements() {
		return nil, &core.ShapeError{Op: "from-slice", A: core.Shape{len(values)}, B: shape.Clone()}
	}
	a, err := e.New(shape, dtype)
	if err != nil {
		return nil, err
	}
	if err := a.SetFloat64s(values, nil); err != nil {
		a.Release()
		return nil, err
	}
	return a, nil
}

// setLayout replaces shape and strides wholesale and rederives size and the
// contiguity flags in the same operation. All structural mutation funnels
// through here; fields are never edited piecemeal.
func (a *Array) setLayout(shape core.Shape, strides []int) {
	if len(shape) != len(strides) {
		panic("ndarray: shape and strides length mismatch")
	}
	a.shape = shape
	a.strides = strides
	a.size = shape.NumElements()
	a.flags = core.ComputeFlags(shape, strides, a.dtype.Size())
}

// view creates an array sharing this array's block under a new layout.
// The view retains the owning block and points its base at the true owner,
// never at an intermediate view.
func (a *Array) view(shape core.Shape, strides []int, offsetDelta int) *Array {
	owner := a
	if a.base != nil {
		owner = a.base
	}
	a.block.Retain()
	v := &Array{
		eng:    a.eng,
		block:  a.block,
		offset: a.offset + offsetDelta,
		dtype:  a.dtype,
		base:   owner,
	}
	v.setLayout(shape, strides)
	return v
}

// Release drops this array's reference to its memory block. The block is
// returned to the allocator once no array or view references it.
func (a *Array) Release() {
	if a.block != nil {
		a.block.Release()
		a.block = nil
	}
}

// Shape returns the array's shape. Callers must not mutate it.
func (a *Array) Shape() core.Shape { return a.shape }

// Strides returns the array's byte strides. Callers must not mutate them.
func (a *Array) Strides() []int { return a.strides }

// Size returns the total element count, always product(shape).
func (a *Array) Size() int { return a.size }

// NDim returns the rank.
func (a *Array) NDim() int { return len(a.shape) }

// DType returns the element type.
func (a *Array) DType() core.DataType { return a.dtype }

// Itemsize returns the element width in bytes.
func (a *Array) Itemsize() int { return a.dtype.Size() }

// Flags returns the cached contiguity flags.
func (a *Array) Flags() core.Flags { return a.flags }

// Base returns the owning array when this array is a view, or nil when it
// owns its block.
func (a *Array) Base() *Array { return a.base }

// Block returns the underlying device memory block.
func (a *Array) Block() *device.Block { return a.block }

// Offset returns the byte offset of the first element within the block.
func (a *Array) Offset() int { return a.offset }

// arg produces the kernel-facing descriptor for strided access.
func (a *Array) arg() device.TensorArg {
	return device.TensorArg{
		Block:   a.block,
		Offset:  a.offset,
		Shape:   a.shape,
		Strides: a.strides,
		DType:   a.dtype,
	}
}

// reducedArg is arg with contiguous adjacent axes collapsed; a pure
// descriptor optimization with identical traversal order.
func (a *Array) reducedArg() device.TensorArg {
	shape, strides := ReducedView(a.shape, a.strides)
	return device.TensorArg{
		Block:   a.block,
		Offset:  a.offset,
		Shape:   shape,
		Strides: strides,
		DType:   a.dtype,
	}
}

// normAxis normalizes a possibly negative axis and validates its range.
func (a *Array) normAxis(axis int) (int, error) {
	n := len(a.shape)
	if axis < -n || axis >= n {
		return 0, &core.AxisError{Axis: axis, NDim: n}
	}
	if axis < 0 {
		axis += n
	}
	return axis, nil
}
