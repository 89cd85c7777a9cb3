package ndarray

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
	"github.com/norda-ml/norda/internal/device/host"
)

// recordingDevice wraps a real device and records which stream each upload
// and kernel launch was enqueued on.
type recordingDevice struct {
	device.Device

	mu       sync.Mutex
	uploads  []device.Stream
	launches map[string][]device.Stream
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{Device: host.New(), launches: make(map[string][]device.Stream)}
}

func (d *recordingDevice) Upload(b *device.Block, offset int, src []byte, s device.Stream) error {
	d.mu.Lock()
	d.uploads = append(d.uploads, s)
	d.mu.Unlock()
	return d.Device.Upload(b, offset, src, s)
}

func (d *recordingDevice) Compile(ctx context.Context, source string, opts device.CompileOptions) (device.Module, error) {
	mod, err := d.Device.Compile(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	return &recordingModule{Module: mod, dev: d, entry: opts.Entry}, nil
}

type recordingModule struct {
	device.Module
	dev   *recordingDevice
	entry string
}

func (m *recordingModule) Function(entry string) (device.Kernel, error) {
	kern, err := m.Module.Function(entry)
	if err != nil {
		return nil, err
	}
	return &recordingKernel{Kernel: kern, dev: m.dev, entry: entry}, nil
}

type recordingKernel struct {
	device.Kernel
	dev   *recordingDevice
	entry string
}

func (k *recordingKernel) Launch(s device.Stream, n int, args ...device.Arg) error {
	k.dev.mu.Lock()
	k.dev.launches[k.entry] = append(k.dev.launches[k.entry], s)
	k.dev.mu.Unlock()
	return k.Kernel.Launch(s, n, args...)
}

func TestSetScatterRidesCallerStream(t *testing.T) {
	dev := newRecordingDevice()
	e := NewEngine(dev)

	a, err := e.Zeros(core.Shape{2, 3}, core.Float64)
	require.NoError(t, err)
	defer a.Release()
	tr := a.T()
	defer tr.Release()

	s := dev.NewStream()
	require.NoError(t, tr.SetFloat64s([]float64{1, 2, 3, 4, 5, 6}, s))
	require.NoError(t, s.Synchronize())

	// The non-contiguous destination took the staging path: one upload and
	// one scatter, both ordered on the caller's stream.
	require.NotEmpty(t, dev.uploads)
	scatters := dev.launches["strided_copy"]
	require.Len(t, scatters, 1)
	assert.Same(t, s, dev.uploads[len(dev.uploads)-1])
	assert.Same(t, s, scatters[0])

	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6}, vals(t, a))
}

func TestSetContiguousUsesCallerStream(t *testing.T) {
	dev := newRecordingDevice()
	e := NewEngine(dev)

	a, err := e.Zeros(core.Shape{4}, core.Float64)
	require.NoError(t, err)
	defer a.Release()

	s := dev.NewStream()
	require.NoError(t, a.SetFloat64s([]float64{1, 2, 3, 4}, s))
	require.NoError(t, s.Synchronize())

	require.NotEmpty(t, dev.uploads)
	assert.Same(t, s, dev.uploads[len(dev.uploads)-1])
	assert.Empty(t, dev.launches["strided_copy"])
}
