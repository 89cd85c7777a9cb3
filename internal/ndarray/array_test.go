package ndarray

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device/host"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(host.New())
}

func fromVals(t *testing.T, e *Engine, vals []float64, shape core.Shape, dt core.DataType) *Array {
	t.Helper()
	a, err := e.FromFloat64s(vals, shape, dt)
	require.NoError(t, err)
	return a
}

func vals(t *testing.T, a *Array) []float64 {
	t.Helper()
	v, err := a.GetFloat64s()
	require.NoError(t, err)
	return v
}

func TestZerosAndFull(t *testing.T) {
	e := newTestEngine(t)

	z, err := e.Zeros(core.Shape{2, 3}, core.Float32)
	require.NoError(t, err)
	defer z.Release()
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, vals(t, z))
	assert.True(t, z.Flags().CContiguous)

	f, err := e.Full(core.Shape{4}, core.Int32, 7)
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, []float64{7, 7, 7, 7}, vals(t, f))
}

func TestArange(t *testing.T) {
	e := newTestEngine(t)
	a, err := e.Arange(1, 0.5, 5, core.Float64)
	require.NoError(t, err)
	defer a.Release()
	assert.Equal(t, []float64{1, 1.5, 2, 2.5, 3}, vals(t, a))
}

func TestFromFloat64sShapeMismatch(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.FromFloat64s([]float64{1, 2, 3}, core.Shape{2, 2}, core.Float64)
	var se *core.ShapeError
	require.ErrorAs(t, err, &se)
}

func TestNewRejectsNegativeExtent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.New(core.Shape{2, -1}, core.Float64)
	require.Error(t, err)
}

func TestZeroExtentArray(t *testing.T) {
	e := newTestEngine(t)
	a, err := e.Zeros(core.Shape{2, 0, 3}, core.Float64)
	require.NoError(t, err)
	defer a.Release()
	assert.Equal(t, 0, a.Size())
	assert.True(t, a.Flags().CContiguous)
	assert.True(t, a.Flags().FContiguous)
	assert.Empty(t, vals(t, a))
}

func TestAllocationFailure(t *testing.T) {
	e := NewEngine(host.NewWithLimit(64))
	_, err := e.Zeros(core.Shape{1024}, core.Float64)
	require.ErrorIs(t, err, core.ErrOutOfMemory)
}

func TestViewKeepsBlockAlive(t *testing.T) {
	e := newTestEngine(t)
	a := fromVals(t, e, []float64{1, 2, 3, 4}, core.Shape{2, 2}, core.Float64)

	v := a.T()
	blk := a.Block()
	a.Release()

	require.True(t, blk.Live())
	assert.Equal(t, []float64{1, 3, 2, 4}, vals(t, v))

	v.Release()
	assert.False(t, blk.Live())
}

func TestViewBasePointsAtOwner(t *testing.T) {
	e := newTestEngine(t)
	a := fromVals(t, e, []float64{1, 2, 3, 4, 5, 6}, core.Shape{2, 3}, core.Float64)
	defer a.Release()

	v1 := a.T()
	defer v1.Release()
	v2, err := v1.Slice(Range{Start: 0, Stop: 2, Step: 1})
	require.NoError(t, err)
	defer v2.Release()

	// A view of a view still points at the owning array, never at the
	// intermediate view.
	assert.Nil(t, a.Base())
	assert.Same(t, a, v1.Base())
	assert.Same(t, a, v2.Base())
}

func TestKernelCachePersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(host.New(), WithCacheDir(dir))

	a, err := e.Full(core.Shape{3}, core.Float64, 1)
	require.NoError(t, err)
	defer a.Release()

	entries, err := readDirNames(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "compiled kernel artifacts should land in the cache dir")
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func TestErrorsNotRetried(t *testing.T) {
	e := newTestEngine(t)
	a := fromVals(t, e, []float64{1, 2}, core.Shape{2}, core.Float64)
	defer a.Release()

	// An unknown axis must fail identically on repeated calls.
	for i := 0; i < 2; i++ {
		_, err := a.Sum(Axis(5), ReduceOptions{})
		var ae *core.AxisError
		require.True(t, errors.As(err, &ae))
	}
}
