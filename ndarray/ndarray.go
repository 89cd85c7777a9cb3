// Copyright 2026 Norda ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ndarray provides the public API for N-dimensional arrays.
//
// Arrays are dense, strided views over reference-counted device memory.
// Shape manipulation (reshape, transpose, slicing, broadcast) produces
// views without copying whenever the layout permits; reductions, sorting
// and copies dispatch kernels through a per-engine compilation cache.
//
// Example:
//
//	dev := host.New()
//	eng := ndarray.NewEngine(dev)
//	a, _ := eng.Arange(0, 1, 12, ndarray.Float64)
//	m, _ := a.Reshape(ndarray.Shape{3, 4})
//	s, _ := m.Sum(ndarray.Axis(1), ndarray.ReduceOptions{})
package ndarray

import (
	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
	"github.com/norda-ml/norda/internal/ndarray"
)

// DataType identifies the element type of an array.
type DataType = core.DataType

// Element type constants.
const (
	Float16  DataType = core.Float16
	BFloat16 DataType = core.BFloat16
	Float32  DataType = core.Float32
	Float64  DataType = core.Float64
	Int32    DataType = core.Int32
	Int64    DataType = core.Int64
	Uint8    DataType = core.Uint8
	Bool     DataType = core.Bool
)

// Shape represents array dimensions, outermost first.
type Shape = core.Shape

// Order selects a memory layout for materializing operations.
type Order = core.Order

// Memory order constants. RowMajor is C layout, ColMajor is Fortran
// layout, AnyOrder preserves the source layout when possible.
const (
	RowMajor Order = core.RowMajor
	ColMajor Order = core.ColMajor
	AnyOrder Order = core.AnyOrder
)

// Errors surfaced by layout and reduction operations.
var (
	ErrOutOfMemory  = core.ErrOutOfMemory
	ErrInvalidOrder = core.ErrInvalidOrder
	ErrInvalidValue = core.ErrInvalidValue
)

// ShapeError reports incompatible shapes.
type ShapeError = core.ShapeError

// AxisError reports an out-of-range or duplicated axis.
type AxisError = core.AxisError

// CompileError reports a kernel compilation failure.
type CompileError = core.CompileError

// Device is implemented by compute backends; see the device/host and
// device/webgpu packages.
type Device = device.Device

// Stream orders asynchronous device execution.
type Stream = device.Stream

// Engine creates arrays on a device and dispatches kernels over them.
type Engine = ndarray.Engine

// Array is a strided N-dimensional view over device memory.
type Array = ndarray.Array

// Exported is a foreign-runtime interchange descriptor; see Array.Export.
type Exported = ndarray.Exported

// Axes selects reduction axes: AxisAll, a single Axis, or an AxisSet.
type Axes = ndarray.Axes

// ReduceOptions carry the optional output target, accumulator type and
// keepdims flag of a reduction.
type ReduceOptions = ndarray.ReduceOptions

// TransferOptions parameterize host transfers.
type TransferOptions = ndarray.TransferOptions

// Range selects [Start, Stop) with the given Step along one axis.
type Range = ndarray.Range

// All selects an entire axis in Array.Slice.
var All = ndarray.All

// AxisAll reduces over every axis.
func AxisAll() Axes { return ndarray.AxisAll() }

// Axis reduces over a single axis; negative values count from the end.
func Axis(i int) Axes { return ndarray.Axis(i) }

// AxisSet reduces over several axes at once.
func AxisSet(axes ...int) Axes { return ndarray.AxisSet(axes...) }

// NewEngine creates an engine over dev.
//
// Example:
//
//	dev := host.New()
//	eng := ndarray.NewEngine(dev, ndarray.WithCacheDir("/tmp/kernels"))
func NewEngine(dev Device, opts ...ndarray.EngineOption) *Engine {
	return ndarray.NewEngine(dev, opts...)
}

// WithCacheDir persists compiled kernels under dir across processes.
func WithCacheDir(dir string) ndarray.EngineOption { return ndarray.WithCacheDir(dir) }

// WithAsyncTransfers makes Get and Set enqueue on the stream without
// synchronizing; callers synchronize the stream before touching the host
// buffer.
func WithAsyncTransfers() ndarray.EngineOption { return ndarray.WithAsyncTransfers() }
