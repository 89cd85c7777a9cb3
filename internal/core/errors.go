package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra state.
var (
	// ErrOutOfMemory is returned when the device allocator cannot satisfy a request.
	ErrOutOfMemory = errors.New("out of device memory")

	// ErrInvalidOrder is returned when a requested memory order cannot be
	// produced without an unrequested copy.
	ErrInvalidOrder = errors.New("invalid memory order")

	// ErrInvalidValue is returned for invalid numeric parameters, such as a
	// non-positive reduction divisor.
	ErrInvalidValue = errors.New("invalid value")
)

// ShapeError reports incompatible shapes in reshape, broadcast or assignment.
type ShapeError struct {
	Op   string
	A, B Shape
}

func (e *ShapeError) Error() string {
	if e.B == nil {
		return fmt.Sprintf("%s: incompatible shape %v", e.Op, e.A)
	}
	return fmt.Sprintf("%s: shapes %v and %v are not compatible", e.Op, e.A, e.B)
}

// AxisError reports an axis index that is out of range or duplicated.
type AxisError struct {
	Axis      int
	NDim      int
	Duplicate bool
}

func (e *AxisError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("duplicate axis %d", e.Axis)
	}
	return fmt.Sprintf("axis %d is out of bounds for array of dimension %d", e.Axis, e.NDim)
}

// CompileError reports a failure from the external kernel compiler.
// It is surfaced synchronously and never retried.
type CompileError struct {
	Entry string
	Log   string
	Err   error
}

func (e *CompileError) Error() string {
	if e.Log != "" {
		return fmt.Sprintf("kernel %q failed to compile: %s", e.Entry, e.Log)
	}
	return fmt.Sprintf("kernel %q failed to compile: %v", e.Entry, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
