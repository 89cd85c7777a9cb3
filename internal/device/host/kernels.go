package host

import (
	"math"
	"sort"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
	"github.com/norda-ml/norda/internal/parallel"
)

// kernelFunc is the host-side kernel calling convention: a flat iteration
// size plus the launch arguments.
type kernelFunc func(n int, args []device.Arg) error

// kernels is the builtin table the host "compiler" resolves entry points
// against. Each entry matches a kernel source the array engine emits.
var kernels = map[string]kernelFunc{
	"strided_copy":    stridedCopy,
	"fill":            fill,
	"arange":          arange,
	"scale":           scale,
	"reduce_sum":      sumKernel,
	"reduce_sumsq":    makeReduce(reduceSumSq),
	"reduce_prod":     makeReduce(reduceProd),
	"reduce_min":      makeReduce(reduceMin),
	"reduce_max":      makeReduce(reduceMax),
	"reduce_any":      makeReduce(reduceAny),
	"reduce_all":      makeReduce(reduceAll),
	"reduce_argmax":   makeReduce(reduceArgMax),
	"reduce_argmin":   makeReduce(reduceArgMin),
	"finalize_moment": finalizeMoment,
	"scan_sum":        makeScan(false),
	"scan_prod":       makeScan(true),
	"sort":            sortKernel,
	"argsort":         argsortKernel,
	"partition":       partitionKernel,
	"argpartition":    argpartitionKernel,
}

// load and store move elements through float64, which is exact for every
// dtype except 64-bit integers with magnitude above 2^53. Paths where that
// matters (sumKernel, stridedCopy's same-dtype branch) use the raw integer
// codecs instead.
func load(t device.TensorArg, off int) float64 {
	return core.DecodeElement(t.Block.Data()[t.Offset+off:], t.DType)
}

func store(t device.TensorArg, off int, v float64) {
	core.EncodeElement(t.Block.Data()[t.Offset+off:], t.DType, v)
}

// stridedCopy gathers src into dst element by element, converting dtype when
// the two differ. Both sides are walked in C order of their own shapes, so
// it serves contiguous materialization, transposed copies, and casts alike.
func stridedCopy(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	src := args[1].(device.TensorArg)

	dit := core.NewStridedIter(dst.Shape, dst.Strides, 0)
	sit := core.NewStridedIter(src.Shape, src.Strides, 0)
	if dst.DType == src.DType {
		// Same dtype: move raw bytes so wide integers stay exact.
		w := dst.Itemsize()
		db, sb := dst.Block.Data(), src.Block.Data()
		for {
			do, ok := dit.Next()
			if !ok {
				return nil
			}
			so, _ := sit.Next()
			copy(db[dst.Offset+do:dst.Offset+do+w], sb[src.Offset+so:src.Offset+so+w])
		}
	}
	for {
		do, ok := dit.Next()
		if !ok {
			return nil
		}
		so, _ := sit.Next()
		store(dst, do, load(src, so))
	}
}

func fill(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	v := args[1].(device.Scalar).Value
	it := core.NewStridedIter(dst.Shape, dst.Strides, 0)
	for {
		off, ok := it.Next()
		if !ok {
			return nil
		}
		store(dst, off, v)
	}
}

func arange(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	start := args[1].(device.Scalar).Value
	step := args[2].(device.Scalar).Value
	it := core.NewStridedIter(dst.Shape, dst.Strides, 0)
	for i := 0; ; i++ {
		off, ok := it.Next()
		if !ok {
			return nil
		}
		store(dst, off, start+float64(i)*step)
	}
}

// reducer folds the values of one reduced subspace into an accumulator.
// i is the flat C-order index within the reduced subspace.
type reducer func(acc float64, accIdx int, v float64, i int) (float64, int)

func reduceSum(acc float64, ai int, v float64, _ int) (float64, int)   { return acc + v, ai }
func reduceProd(acc float64, ai int, v float64, _ int) (float64, int)  { return acc * v, ai }
func reduceSumSq(acc float64, ai int, v float64, _ int) (float64, int) { return acc + v*v, ai }

// scale multiplies every element of dst in place; the divide step of mean.
func scale(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	f := args[1].(device.Scalar).Value
	it := core.NewStridedIter(dst.Shape, dst.Strides, 0)
	for {
		off, ok := it.Next()
		if !ok {
			return nil
		}
		store(dst, off, load(dst, off)*f)
	}
}

// finalizeMoment combines per-group sum and sum-of-squares into variance
// (or standard deviation when sqrtFlag is set) with Bessel's correction:
// (sumsq - sum*sum/n) / (n - ddof).
func finalizeMoment(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	sum := args[1].(device.TensorArg)
	sumsq := args[2].(device.TensorArg)
	count := args[3].(device.Scalar).Value
	ddof := args[4].(device.Scalar).Value
	takeSqrt := args[5].(device.Scalar).Value != 0

	dit := core.NewStridedIter(dst.Shape, dst.Strides, 0)
	sit := core.NewStridedIter(sum.Shape, sum.Strides, 0)
	qit := core.NewStridedIter(sumsq.Shape, sumsq.Strides, 0)
	for {
		dOff, ok := dit.Next()
		if !ok {
			return nil
		}
		sOff, _ := sit.Next()
		qOff, _ := qit.Next()
		s := load(sum, sOff)
		q := load(sumsq, qOff)
		v := (q - s*s/count) / (count - ddof)
		if v < 0 {
			v = 0 // clamp the cancellation residue of the shortcut formula
		}
		if takeSqrt {
			v = math.Sqrt(v)
		}
		store(dst, dOff, v)
	}
}

func reduceMin(acc float64, ai int, v float64, i int) (float64, int) {
	if i == 0 || v < acc {
		return v, ai
	}
	return acc, ai
}

func reduceMax(acc float64, ai int, v float64, i int) (float64, int) {
	if i == 0 || v > acc {
		return v, ai
	}
	return acc, ai
}

func reduceAny(acc float64, ai int, v float64, _ int) (float64, int) {
	if v != 0 {
		return 1, ai
	}
	return acc, ai
}

func reduceAll(acc float64, ai int, v float64, i int) (float64, int) {
	if i == 0 {
		acc = 1
	}
	if v == 0 {
		return 0, ai
	}
	return acc, ai
}

// Arg variants keep the running best value in acc and its first (lowest
// flat) index in accIdx; the engine stores accIdx into the output.
func reduceArgMax(acc float64, ai int, v float64, i int) (float64, int) {
	if i == 0 || v > acc {
		return v, i
	}
	return acc, ai
}

func reduceArgMin(acc float64, ai int, v float64, i int) (float64, int) {
	if i == 0 || v < acc {
		return v, i
	}
	return acc, ai
}

// sumKernel handles reduce_sum. Integer inputs with an integer destination
// accumulate in int64 so 64-bit sums stay exact; everything else takes the
// generic float64 fold.
func sumKernel(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	src := args[1].(device.TensorArg)
	if !dst.DType.IsInteger() || !src.DType.IsInteger() {
		return makeReduce(reduceSum)(n, args)
	}
	nkept := args[2].(device.Ints).Values[0]

	sb, db := src.Block.Data(), dst.Block.Data()
	out := core.NewStridedIter(dst.Shape, dst.Strides, 0)
	kept := core.NewStridedIter(src.Shape[:nkept], src.Strides[:nkept], 0)
	for {
		dOff, ok := out.Next()
		if !ok {
			return nil
		}
		base, _ := kept.Next()

		var acc int64
		red := core.NewStridedIter(src.Shape[nkept:], src.Strides[nkept:], base)
		for {
			sOff, more := red.Next()
			if !more {
				break
			}
			acc += core.DecodeInt(sb[src.Offset+sOff:], src.DType)
		}
		core.EncodeInt(db[dst.Offset+dOff:], dst.DType, acc)
	}
}

// makeReduce builds a reduction kernel. Launch ABI: dst tensor, src tensor
// permuted so the kept axes lead and the reduced axes trail, and the number
// of kept axes. One launch covers the whole output; there is no short
// circuit even for any/all.
func makeReduce(fold reducer) kernelFunc {
	return func(n int, args []device.Arg) error {
		dst := args[0].(device.TensorArg)
		src := args[1].(device.TensorArg)
		nkept := args[2].(device.Ints).Values[0]
		isArg := args[3].(device.Scalar).Value != 0
		initial := args[4].(device.Scalar).Value

		keptShape := src.Shape[:nkept]
		keptStrides := src.Strides[:nkept]
		redShape := src.Shape[nkept:]
		redStrides := src.Strides[nkept:]

		out := core.NewStridedIter(dst.Shape, dst.Strides, 0)
		kept := core.NewStridedIter(keptShape, keptStrides, 0)
		for {
			dOff, ok := out.Next()
			if !ok {
				return nil
			}
			base, _ := kept.Next()

			acc, accIdx := initial, 0
			red := core.NewStridedIter(redShape, redStrides, base)
			for i := 0; ; i++ {
				sOff, more := red.Next()
				if !more {
					break
				}
				acc, accIdx = fold(acc, accIdx, load(src, sOff), i)
			}
			if isArg {
				store(dst, dOff, float64(accIdx))
			} else {
				store(dst, dOff, acc)
			}
		}
	}
}

// makeScan builds a cumulative kernel over the last axis of src. dst and src
// share a shape; both arrive permuted so the scanned axis trails.
func makeScan(isProd bool) kernelFunc {
	return func(n int, args []device.Arg) error {
		dst := args[0].(device.TensorArg)
		src := args[1].(device.TensorArg)

		r := len(src.Shape)
		m, sStep := 0, 0
		dStep := 0
		if r > 0 {
			m, sStep, dStep = src.Shape[r-1], src.Strides[r-1], dst.Strides[r-1]
		} else {
			m = 1
		}

		outerS := core.NewStridedIter(src.Shape[:max(r-1, 0)], src.Strides[:max(r-1, 0)], 0)
		outerD := core.NewStridedIter(dst.Shape[:max(r-1, 0)], dst.Strides[:max(r-1, 0)], 0)
		for {
			sBase, ok := outerS.Next()
			if !ok {
				return nil
			}
			dBase, _ := outerD.Next()

			acc := 0.0
			if isProd {
				acc = 1.0
			}
			for i := 0; i < m; i++ {
				v := load(src, sBase+i*sStep)
				if isProd {
					acc *= v
				} else {
					acc += v
				}
				store(dst, dBase+i*dStep, acc)
			}
		}
	}
}

// laneCfg spreads independent lanes over the CPU. Each lane touches a
// disjoint byte range, so the kernels below parallelize per lane.
var laneCfg = parallel.DefaultConfig()

// laneBases materializes the base offsets of the 1-D lane batch formed by
// all axes but the last, in flat C order, with the lane length and stride.
func laneBases(t device.TensorArg) (bases []int, m, step int) {
	r := len(t.Shape)
	if r == 0 {
		return []int{0}, 1, 0
	}
	m, step = t.Shape[r-1], t.Strides[r-1]
	outerShape, outerStrides := t.Shape[:r-1], t.Strides[:r-1]
	bases = make([]int, outerShape.NumElements())
	for i := range bases {
		bases[i] = core.ByteOffset(i, outerShape, outerStrides)
	}
	return bases, m, step
}

func sortKernel(n int, args []device.Arg) error {
	data := args[0].(device.TensorArg)
	bases, m, step := laneBases(data)
	parallel.For(len(bases), func(l int) {
		base := bases[l]
		buf := make([]float64, m)
		for i := range buf {
			buf[i] = load(data, base+i*step)
		}
		sort.Float64s(buf)
		for i, v := range buf {
			store(data, base+i*step, v)
		}
	}, laneCfg)
	return nil
}

func argsortKernel(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	src := args[1].(device.TensorArg)

	sBases, m, sStep := laneBases(src)
	dBases, _, dStep := laneBases(dst)
	parallel.For(len(sBases), func(l int) {
		base, dBase := sBases[l], dBases[l]
		buf := make([]float64, m)
		idx := make([]int, m)
		for i := range buf {
			buf[i] = load(src, base+i*sStep)
			idx[i] = i
		}
		// Stable: equal keys keep their original relative order.
		sort.SliceStable(idx, func(a, b int) bool { return buf[idx[a]] < buf[idx[b]] })
		for i, j := range idx {
			store(dst, dBase+i*dStep, float64(j))
		}
	}, laneCfg)
	return nil
}

// selectKth places buf[k] (and idx[k], when idx is non-nil) in its sorted
// position within buf[lo:hi] by iterative quickselect, with all smaller
// elements before it and all larger after.
func selectKth(buf []float64, idx []int, lo, hi, k int) {
	for hi-lo > 1 {
		// Median-of-three pivot.
		mid := lo + (hi-lo)/2
		if buf[mid] < buf[lo] {
			swap(buf, idx, lo, mid)
		}
		if buf[hi-1] < buf[lo] {
			swap(buf, idx, lo, hi-1)
		}
		if buf[hi-1] < buf[mid] {
			swap(buf, idx, mid, hi-1)
		}
		pivot := buf[mid]

		i, j := lo, hi-1
		for i <= j {
			for buf[i] < pivot {
				i++
			}
			for buf[j] > pivot {
				j--
			}
			if i <= j {
				swap(buf, idx, i, j)
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j + 1
		case k >= i:
			lo = i
		default:
			return
		}
	}
}

func swap(buf []float64, idx []int, a, b int) {
	buf[a], buf[b] = buf[b], buf[a]
	if idx != nil {
		idx[a], idx[b] = idx[b], idx[a]
	}
}

// partitionKernel rearranges each lane so every requested kth element lands
// in its sorted position. kth indices arrive normalized and ascending; each
// placement narrows the lower bound for the next.
func partitionKernel(n int, args []device.Arg) error {
	data := args[0].(device.TensorArg)
	kth := args[1].(device.Ints).Values
	bases, m, step := laneBases(data)
	parallel.For(len(bases), func(l int) {
		base := bases[l]
		buf := make([]float64, m)
		for i := range buf {
			buf[i] = load(data, base+i*step)
		}
		lo := 0
		for _, k := range kth {
			selectKth(buf, nil, lo, m, k)
			lo = k + 1
		}
		for i, v := range buf {
			store(data, base+i*step, v)
		}
	}, laneCfg)
	return nil
}

func argpartitionKernel(n int, args []device.Arg) error {
	dst := args[0].(device.TensorArg)
	src := args[1].(device.TensorArg)
	kth := args[2].(device.Ints).Values

	sBases, m, sStep := laneBases(src)
	dBases, _, dStep := laneBases(dst)
	parallel.For(len(sBases), func(l int) {
		base, dBase := sBases[l], dBases[l]
		buf := make([]float64, m)
		idx := make([]int, m)
		for i := range buf {
			buf[i] = load(src, base+i*sStep)
			idx[i] = i
		}
		lo := 0
		for _, k := range kth {
			selectKth(buf, idx, lo, m, k)
			lo = k + 1
		}
		for i, j := range idx {
			store(dst, dBase+i*dStep, float64(j))
		}
	}, laneCfg)
	return nil
}
