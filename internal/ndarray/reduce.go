package ndarray

import (
	"fmt"
	"math"
	"sort"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

// Axes selects which axes a reduction collapses: all of them, a single
// axis, or an ordered set. The zero value selects all axes.
type Axes struct {
	all  bool
	list []int
}

// AxisAll reduces over every axis.
func AxisAll() Axes { return Axes{all: true} }

// Axis reduces over one axis. Negative indices count from the end.
func Axis(i int) Axes { return Axes{list: []int{i}} }

// AxisSet reduces over an ordered set of axes. An empty set reduces over
// no axes: the result keeps the input's shape and values. The list stays
// non-nil so normalize can tell the empty set apart from the zero value.
func AxisSet(axes ...int) Axes { return Axes{list: append(make([]int, 0, len(axes)), axes...)} }

// normalize resolves negative indices against ndim, rejects out-of-range
// and duplicate axes, and returns the reduced axes in ascending order.
func (ax Axes) normalize(ndim int) ([]int, error) {
	if ax.all || ax.list == nil {
		out := make([]int, ndim)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	seen := make(map[int]bool, len(ax.list))
	out := make([]int, 0, len(ax.list))
	for _, a := range ax.list {
		if a < -ndim || a >= ndim {
			return nil, &core.AxisError{Axis: a, NDim: ndim}
		}
		if a < 0 {
			a += ndim
		}
		if seen[a] {
			return nil, &core.AxisError{Axis: a, NDim: ndim, Duplicate: true}
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Ints(out)
	return out, nil
}

// ReduceOptions carry the optional reduction parameters.
type ReduceOptions struct {
	KeepDims bool

	// Out, when non-nil, receives the result instead of a fresh allocation.
	// Its dtype and shape must match what the reduction would produce.
	Out *Array

	// DType overrides the accumulation/result dtype when HasDType is set.
	DType    core.DataType
	HasDType bool
}

func (o ReduceOptions) dtype(def core.DataType) core.DataType {
	if o.HasDType {
		return o.DType
	}
	return def
}

// reduce is the shared axis machinery: it permutes the input so the kept
// axes lead and the reduced axes trail, allocates or validates the output,
// and issues exactly one kernel launch.
func (a *Array) reduce(entry string, axes Axes, opts ReduceOptions, outDType core.DataType, isArg bool, initial float64, requireNonEmpty bool) (*Array, error) {
	axs, err := axes.normalize(a.NDim())
	if err != nil {
		return nil, err
	}

	reduced := make([]bool, a.NDim())
	redCount := 1
	for _, ax := range axs {
		reduced[ax] = true
		redCount *= a.shape[ax]
	}
	if requireNonEmpty && redCount == 0 {
		return nil, fmt.Errorf("%s: zero-size reduction: %w", entry, core.ErrInvalidValue)
	}

	kept := make([]int, 0, a.NDim()-len(axs))
	keptShape := make(core.Shape, 0, a.NDim()-len(axs))
	for i := range a.shape {
		if !reduced[i] {
			kept = append(kept, i)
			keptShape = append(keptShape, a.shape[i])
		}
	}

	perm := append(append([]int(nil), kept...), axs...)
	src, err := a.Transpose(perm...)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	out, fresh, err := a.reduceTarget(opts, keptShape, axs, outDType)
	if err != nil {
		return nil, err
	}

	idx := NewIndexer(keptShape)
	err = a.eng.launch(entry, idx.Size,
		out.arg(), src.arg(),
		device.Ints{Values: []int{len(kept)}},
		device.Scalar{Value: b2f(isArg)},
		device.Scalar{Value: initial},
	)
	if err != nil {
		if fresh {
			out.Release()
		}
		return nil, err
	}

	return a.finishReduce(out, fresh, opts.KeepDims, axs)
}

// reduceTarget resolves the output array: the caller's Out (seen through a
// view with the reduced unit axes squeezed away when Out was shaped with
// keepdims) or a fresh allocation. fresh reports whether the returned array
// is an intermediate the reduction machinery owns.
func (a *Array) reduceTarget(opts ReduceOptions, keptShape core.Shape, axs []int, dtype core.DataType) (out *Array, fresh bool, err error) {
	if opts.Out == nil {
		out, err = a.eng.New(keptShape, dtype)
		return out, true, err
	}

	o := opts.Out
	if o.dtype != dtype {
		return nil, false, fmt.Errorf("out dtype %s, want %s: %w", o.dtype, dtype, core.ErrInvalidValue)
	}
	if o.shape.Equal(keptShape) {
		return o, false, nil
	}
	// A keepdims-shaped Out must reduce to the kept shape once the unit
	// axes at the reduced positions are squeezed away.
	if len(o.shape) == a.NDim() {
		ok := true
		for _, ax := range axs {
			if o.shape[ax] != 1 {
				ok = false
				break
			}
		}
		if ok {
			v, err := o.Squeeze(axs...)
			if err == nil && v.shape.Equal(keptShape) {
				return v, true, nil
			}
			if err == nil {
				v.Release()
			}
		}
	}
	return nil, false, &core.ShapeError{Op: "reduce out", A: o.shape.Clone(), B: keptShape.Clone()}
}

// finishReduce applies keepdims and settles ownership of the result.
func (a *Array) finishReduce(out *Array, fresh bool, keepDims bool, axs []int) (*Array, error) {
	if !keepDims {
		return out, nil
	}
	full := make(core.Shape, a.NDim())
	reduced := make(map[int]bool, len(axs))
	for _, ax := range axs {
		reduced[ax] = true
	}
	for i := range full {
		if reduced[i] {
			full[i] = 1
		} else {
			full[i] = a.shape[i]
		}
	}
	v, err := out.Reshape(full)
	if fresh {
		out.Release()
	}
	return v, err
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Sum reduces by addition, accumulating in the promotion service's widened
// dtype unless overridden.
func (a *Array) Sum(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.reduce("reduce_sum", axes, opts, opts.dtype(core.AccumulationDType(a.dtype)), false, 0, false)
}

// Prod reduces by multiplication.
func (a *Array) Prod(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.reduce("reduce_prod", axes, opts, opts.dtype(core.AccumulationDType(a.dtype)), false, 1, false)
}

// Min reduces to the minimum. Fails on a zero-size reduction space.
func (a *Array) Min(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.reduce("reduce_min", axes, opts, opts.dtype(a.dtype), false, math.Inf(1), true)
}

// Max reduces to the maximum. Fails on a zero-size reduction space.
func (a *Array) Max(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.reduce("reduce_max", axes, opts, opts.dtype(a.dtype), false, math.Inf(-1), true)
}

// Any reduces to 1 when any element is non-zero. One kernel launch; no
// device-side short circuit.
func (a *Array) Any(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.reduce("reduce_any", axes, opts, opts.dtype(core.Bool), false, 0, false)
}

// All reduces to 1 when every element is non-zero.
func (a *Array) All(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.reduce("reduce_all", axes, opts, opts.dtype(core.Bool), false, 1, false)
}

// ArgMax returns the index of the maximum along one axis (or the flat index
// over the whole array). Ties resolve to the first occurrence.
func (a *Array) ArgMax(axes Axes, opts ReduceOptions) (*Array, error) {
	if err := requireSingleOrAll(axes); err != nil {
		return nil, err
	}
	return a.reduce("reduce_argmax", axes, opts, opts.dtype(core.Int64), true, 0, true)
}

// ArgMin is ArgMax's minimum counterpart.
func (a *Array) ArgMin(axes Axes, opts ReduceOptions) (*Array, error) {
	if err := requireSingleOrAll(axes); err != nil {
		return nil, err
	}
	return a.reduce("reduce_argmin", axes, opts, opts.dtype(core.Int64), true, 0, true)
}

func requireSingleOrAll(axes Axes) error {
	if axes.all || axes.list == nil || len(axes.list) == 1 {
		return nil
	}
	return fmt.Errorf("arg reduction accepts a single axis or all axes: %w", core.ErrInvalidValue)
}

// meanDType picks the result dtype of the moment reductions: floats keep
// their dtype, everything else widens to float64.
func (a *Array) meanDType(opts ReduceOptions) core.DataType {
	if opts.HasDType {
		return opts.DType
	}
	if a.dtype.IsFloat() {
		return a.dtype
	}
	return core.Float64
}

// Mean is the sum divided by the reduced element count.
func (a *Array) Mean(axes Axes, opts ReduceOptions) (*Array, error) {
	dt := a.meanDType(opts)
	count, err := a.reducedCount(axes)
	if err != nil {
		return nil, err
	}
	sumOpts := opts
	sumOpts.DType, sumOpts.HasDType = dt, true
	out, err := a.Sum(axes, sumOpts)
	if err != nil {
		return nil, err
	}
	if err := a.eng.launch("scale", out.size, out.arg(), device.Scalar{Value: 1 / float64(count)}); err != nil {
		if opts.Out == nil {
			out.Release()
		}
		return nil, err
	}
	return out, nil
}

// Var computes the variance with Bessel's correction: the divisor is
// count-ddof, and a non-positive divisor is an error.
func (a *Array) Var(axes Axes, ddof int, opts ReduceOptions) (*Array, error) {
	return a.moment(axes, ddof, opts, false)
}

// Std is the square root of Var.
func (a *Array) Std(axes Axes, ddof int, opts ReduceOptions) (*Array, error) {
	return a.moment(axes, ddof, opts, true)
}

func (a *Array) moment(axes Axes, ddof int, opts ReduceOptions, takeSqrt bool) (*Array, error) {
	count, err := a.reducedCount(axes)
	if err != nil {
		return nil, err
	}
	if count-ddof <= 0 {
		return nil, fmt.Errorf("variance divisor %d-%d is not positive: %w", count, ddof, core.ErrInvalidValue)
	}

	inner := ReduceOptions{DType: core.Float64, HasDType: true}
	sum, err := a.Sum(axes, inner)
	if err != nil {
		return nil, err
	}
	defer sum.Release()
	sumsq, err := a.reduce("reduce_sumsq", axes, inner, core.Float64, false, 0, false)
	if err != nil {
		return nil, err
	}
	defer sumsq.Release()

	axs, _ := axes.normalize(a.NDim())
	outOpts := opts
	outOpts.KeepDims = false
	out, fresh, err := a.reduceTarget(outOpts, sum.shape, axs, a.meanDType(opts))
	if err != nil {
		return nil, err
	}
	err = a.eng.launch("finalize_moment", out.size,
		out.arg(), sum.arg(), sumsq.arg(),
		device.Scalar{Value: float64(count)},
		device.Scalar{Value: float64(ddof)},
		device.Scalar{Value: b2f(takeSqrt)},
	)
	if err != nil {
		if fresh {
			out.Release()
		}
		return nil, err
	}
	return a.finishReduce(out, fresh, opts.KeepDims, axs)
}

// reducedCount returns the number of elements each output value summarizes.
func (a *Array) reducedCount(axes Axes) (int, error) {
	axs, err := axes.normalize(a.NDim())
	if err != nil {
		return 0, err
	}
	n := 1
	for _, ax := range axs {
		n *= a.shape[ax]
	}
	return n, nil
}

// Trace sums the diagonal of axes (axis1, axis2) offset by k. It is a
// diagonal view followed by a sum over the trailing axis.
func (a *Array) Trace(k, axis1, axis2 int, opts ReduceOptions) (*Array, error) {
	d, err := a.Diagonal(k, axis1, axis2)
	if err != nil {
		return nil, err
	}
	defer d.Release()
	return d.Sum(Axis(-1), opts)
}

// CumSum computes the running sum along one axis; with AxisAll the array is
// flattened first and the result is 1-D. The axis extent is preserved.
func (a *Array) CumSum(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.scan("scan_sum", axes, opts)
}

// CumProd is CumSum's multiplicative counterpart.
func (a *Array) CumProd(axes Axes, opts ReduceOptions) (*Array, error) {
	return a.scan("scan_prod", axes, opts)
}

func (a *Array) scan(entry string, axes Axes, opts ReduceOptions) (*Array, error) {
	dt := opts.dtype(core.AccumulationDType(a.dtype))

	var src *Array
	var err error
	if axes.all || axes.list == nil {
		src, err = a.Ravel()
	} else {
		if len(axes.list) != 1 {
			return nil, fmt.Errorf("cumulative reduction requires a single axis: %w", core.ErrInvalidValue)
		}
		var ax int
		ax, err = a.normAxis(axes.list[0])
		if err != nil {
			return nil, err
		}
		src, err = a.moveAxisLast(ax)
	}
	if err != nil {
		return nil, err
	}
	defer src.Release()

	out, err := a.eng.New(src.shape, dt)
	if err != nil {
		return nil, err
	}
	if err := a.eng.launch(entry, out.size, out.arg(), src.arg()); err != nil {
		out.Release()
		return nil, err
	}

	if axes.all || axes.list == nil {
		return out, nil
	}
	// Undo the axis move so the result shape matches the input exactly.
	return a.unmoveAxis(out, axes.list[0])
}

// moveAxisLast returns a view with the given axis moved to the end,
// preserving the relative order of the others.
func (a *Array) moveAxisLast(axis int) (*Array, error) {
	perm := make([]int, 0, a.NDim())
	for i := 0; i < a.NDim(); i++ {
		if i != axis {
			perm = append(perm, i)
		}
	}
	perm = append(perm, axis)
	return a.Transpose(perm...)
}
