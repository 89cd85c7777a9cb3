package ndarray

import (
	"fmt"
	"sort"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

// Sort/partition operations treat the array as a batch of 1-D lanes along
// one axis, independent across all other axes. Every operation is a no-op
// on a zero-length axis.

// Sort sorts the array in place, ascending, along the given axis.
func (a *Array) Sort(axis int) error {
	v, err := a.laneView(axis)
	if err != nil {
		return err
	}
	defer v.Release()
	return a.eng.launch("sort", v.size, v.arg())
}

// ArgSort returns an index array of the same shape such that gathering the
// receiver by those indices along axis yields sorted order. The sort is
// stable: equal keys preserve their original relative order.
func (a *Array) ArgSort(axis int) (*Array, error) {
	v, err := a.laneView(axis)
	if err != nil {
		return nil, err
	}
	defer v.Release()

	out, err := a.eng.New(v.shape, core.Int64)
	if err != nil {
		return nil, err
	}
	if err := a.eng.launch("argsort", v.size, out.arg(), v.arg()); err != nil {
		out.Release()
		return nil, err
	}
	return a.unmoveAxis(out, axis)
}

// Partition rearranges the array in place along axis so that, for every
// requested kth, the element at that position is in its sorted place with
// all smaller-or-equal elements before it and greater-or-equal after.
// Each kth in a set is independently guaranteed.
func (a *Array) Partition(kth []int, axis int) error {
	v, err := a.laneView(axis)
	if err != nil {
		return err
	}
	defer v.Release()
	ks, err := normalizeKth(kth, v.laneLen())
	if err != nil {
		return err
	}
	if v.laneLen() == 0 {
		return nil
	}
	return a.eng.launch("partition", v.size, v.arg(), device.Ints{Values: ks})
}

// ArgPartition mirrors ArgSort's index-array contract for Partition.
func (a *Array) ArgPartition(kth []int, axis int) (*Array, error) {
	v, err := a.laneView(axis)
	if err != nil {
		return nil, err
	}
	defer v.Release()
	ks, err := normalizeKth(kth, v.laneLen())
	if err != nil {
		return nil, err
	}

	out, err := a.eng.New(v.shape, core.Int64)
	if err != nil {
		return nil, err
	}
	if v.laneLen() > 0 {
		if err := a.eng.launch("argpartition", v.size, out.arg(), v.arg(), device.Ints{Values: ks}); err != nil {
			out.Release()
			return nil, err
		}
	}
	return a.unmoveAxis(out, axis)
}

// laneView validates the axis and returns a view with it moved last, the
// layout the lane kernels expect.
func (a *Array) laneView(axis int) (*Array, error) {
	axis, err := a.normAxis(axis)
	if err != nil {
		return nil, err
	}
	return a.moveAxisLast(axis)
}

// laneLen is the extent of the lane axis of a laneView.
func (a *Array) laneLen() int {
	if len(a.shape) == 0 {
		return 1
	}
	return a.shape[len(a.shape)-1]
}

// unmoveAxis undoes moveAxisLast on a freshly produced result, returning a
// view whose shape matches the original array.
func (a *Array) unmoveAxis(out *Array, axis int) (*Array, error) {
	axis, err := a.normAxis(axis)
	if err != nil {
		out.Release()
		return nil, err
	}
	inv := make([]int, a.NDim())
	j := 0
	for i := 0; i < a.NDim(); i++ {
		if i == axis {
			inv[i] = a.NDim() - 1
			continue
		}
		inv[i] = j
		j++
	}
	v, err := out.Transpose(inv...)
	out.Release()
	return v, err
}

// normalizeKth resolves negative kth indices against the lane length,
// validates range, dedupes, and sorts ascending so each placement narrows
// the next one's search interval.
func normalizeKth(kth []int, m int) ([]int, error) {
	if len(kth) == 0 {
		return nil, fmt.Errorf("partition: no kth given: %w", core.ErrInvalidValue)
	}
	if m == 0 {
		return nil, nil // zero-length lanes: nothing to place
	}
	seen := make(map[int]bool, len(kth))
	out := make([]int, 0, len(kth))
	for _, k := range kth {
		if k < -m || k >= m {
			return nil, fmt.Errorf("kth %d out of bounds for axis of length %d: %w", k, m, core.ErrInvalidValue)
		}
		if k < 0 {
			k += m
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out, nil
}
