package ndarray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/norda-ml/norda/internal/core"
)

func TestNewIndexer(t *testing.T) {
	ix := NewIndexer(core.Shape{2, 3, 4})
	assert.Equal(t, 24, ix.Size)
	assert.Equal(t, core.Shape{2, 3, 4}, ix.Shape)

	assert.Equal(t, 1, NewIndexer(core.Shape{}).Size)
	assert.Equal(t, 0, NewIndexer(core.Shape{2, 0}).Size)
}

func TestReducedViewMergesContiguous(t *testing.T) {
	// A dense C-order block collapses to a single axis.
	sh, st := ReducedView(core.Shape{2, 3, 4}, []int{96, 32, 8})
	assert.Equal(t, core.Shape{24}, sh)
	assert.Equal(t, []int{8}, st)
}

func TestReducedViewKeepsGaps(t *testing.T) {
	// A sliced outer axis leaves a gap between rows, so the split survives.
	sh, st := ReducedView(core.Shape{2, 4}, []int{64, 8})
	assert.Equal(t, core.Shape{2, 4}, sh)
	assert.Equal(t, []int{64, 8}, st)
}

func TestReducedViewPartialMerge(t *testing.T) {
	// Inner two axes are mutually dense, outer one is not.
	sh, st := ReducedView(core.Shape{2, 3, 4}, []int{200, 32, 8})
	assert.Equal(t, core.Shape{2, 12}, sh)
	assert.Equal(t, []int{200, 8}, st)
}

func TestReducedViewDropsUnitAxes(t *testing.T) {
	sh, st := ReducedView(core.Shape{1, 5, 1}, []int{0, 8, 0})
	assert.Equal(t, core.Shape{5}, sh)
	assert.Equal(t, []int{8}, st)
}

func TestReducedViewScalarFallback(t *testing.T) {
	sh, st := ReducedView(core.Shape{}, nil)
	assert.Equal(t, core.Shape{1}, sh)
	assert.Equal(t, []int{0}, st)

	sh, st = ReducedView(core.Shape{1, 1}, []int{8, 8})
	assert.Equal(t, core.Shape{1}, sh)
	assert.Equal(t, []int{0}, st)
}

func TestReducedViewBroadcastStrides(t *testing.T) {
	// A zero-stride broadcast axis never merges into a real one.
	sh, st := ReducedView(core.Shape{3, 4}, []int{0, 8})
	assert.Equal(t, core.Shape{3, 4}, sh)
	assert.Equal(t, []int{0, 8}, st)
}
