// Package webgpu implements the device interfaces on a GPU through
// go-webgpu (github.com/go-webgpu/webgpu), a zero-CGO WebGPU binding.
// Tensors must be float32; kernels are WGSL compute shaders compiled per
// entry point into cached pipelines.
package webgpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

const workgroupSize = 256

// Shader uniform ABI bounds. Every kernel binds its tensor buffers at
// 0..k-1 in argument order and one params uniform at k; params carries the
// flat count, three int slots, four scalar slots, and a fixed-rank layout
// per tensor.
const (
	maxTensors = 4
	maxRank    = 8
	layoutSize = 16 + 4*maxRank + 4*maxRank
	paramsSize = 32 + maxTensors*layoutSize
)

// Device executes kernels on a WebGPU adapter.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	// fence is a 4-byte scratch buffer; copying it into a mapped staging
	// buffer gives Synchronize a completion point on the in-order queue.
	fence *wgpu.Buffer

	def *stream
}

// New initializes the default adapter. Returns an error when no WebGPU
// runtime or adapter is available.
func New() (d *Device, err error) {
	// The native library loads lazily and panics when absent.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	info := adapter.GetInfo()

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	slog.Debug("webgpu adapter acquired", "name", info.Name, "vendor", info.VendorName)

	fence, err := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  4,
	})
	if err != nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: fence buffer: %w", err)
	}

	d = &Device{
		instance: instance,
		adapter:  adapter,
		dev:      dev,
		queue:    queue,
		info:     info,
		fence:    fence,
	}
	d.def = &stream{d: d}
	return d, nil
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

func (d *Device) Name() string {
	return fmt.Sprintf("WebGPU (%s %s)", d.info.Name, d.info.VendorName)
}

// Close releases the adapter and all GPU objects. Blocks allocated from the
// device must be released first.
func (d *Device) Close() {
	if d.fence != nil {
		d.fence.Release()
		d.fence = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.dev != nil {
		d.dev.Release()
		d.dev = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// align4 rounds a byte count up to the 4-byte granularity buffer copies
// and f32 storage bindings require.
func align4(n int) int { return (n + 3) &^ 3 }

func (d *Device) Allocate(nbytes int) (*device.Block, error) {
	size := align4(nbytes)
	if size == 0 {
		size = 4
	}
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(size),
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: allocating %d bytes: %w", nbytes, core.ErrOutOfMemory)
	}
	return device.NewBlock(size, nil, buf, buf.Release), nil
}

// Compile builds a compute pipeline for the entry point in the WGSL source.
// Shader and pipeline creation panic inside the native binding on invalid
// input, surfaced here as a CompileError.
func (d *Device) Compile(ctx context.Context, source string, opts device.CompileOptions) (mod device.Module, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			mod = nil
			err = &core.CompileError{Entry: opts.Entry, Log: fmt.Sprint(r)}
		}
	}()

	shader := d.dev.CreateShaderModuleWGSL(source)
	pipeline := d.dev.CreateComputePipelineSimple(nil, shader, opts.Entry)
	return &module{d: d, entry: opts.Entry, shader: shader, pipeline: pipeline}, nil
}

// LoadBinary is unsupported: WebGPU has no portable serialized pipeline
// format, so the on-disk cache layer stays cold for this backend.
func (d *Device) LoadBinary(bin []byte) (device.Module, error) {
	return nil, fmt.Errorf("webgpu: serialized modules are not supported")
}

func (d *Device) DefaultStream() device.Stream { return d.def }

// NewStream returns a stream batching its own command buffers over the
// shared queue. Work on distinct streams is only ordered relative to each
// other at flush points.
func (d *Device) NewStream() device.Stream { return &stream{d: d} }

func (d *Device) Upload(b *device.Block, offset int, src []byte, s device.Stream) error {
	buf, err := blockBuffer(b)
	if err != nil {
		return err
	}
	if offset%4 != 0 {
		return fmt.Errorf("webgpu: upload offset %d is not 4-byte aligned", offset)
	}
	size := align4(len(src))
	staging, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             uint64(size),
		MappedAtCreation: wgpu.True,
	})
	if err != nil {
		return fmt.Errorf("webgpu: staging buffer: %w", err)
	}
	defer staging.Release()

	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, uint64(size))), size)
	copy(mapped, src)
	staging.Unmap()

	encoder, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("webgpu: command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(staging, 0, buf, uint64(offset), uint64(size))
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("webgpu: encoding upload: %w", err)
	}
	st, err := d.resolveStream(s)
	if err != nil {
		return err
	}
	st.enqueue(cmd)
	return nil
}

func (d *Device) Download(b *device.Block, offset int, dst []byte, s device.Stream) error {
	buf, err := blockBuffer(b)
	if err != nil {
		return err
	}
	if offset%4 != 0 {
		return fmt.Errorf("webgpu: download offset %d is not 4-byte aligned", offset)
	}
	size := align4(len(dst))

	staging, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  uint64(size),
	})
	if err != nil {
		return fmt.Errorf("webgpu: staging buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("webgpu: command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(buf, uint64(offset), staging, 0, uint64(size))
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("webgpu: encoding download: %w", err)
	}
	st, err := d.resolveStream(s)
	if err != nil {
		return err
	}
	st.enqueue(cmd)
	// Readback needs every prior command on this stream executed.
	st.flush()

	if err := staging.MapAsync(d.dev, wgpu.MapModeRead, 0, uint64(size)); err != nil {
		return fmt.Errorf("webgpu: mapping staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, uint64(size))), size)
	copy(dst, mapped)
	staging.Unmap()
	return nil
}

func blockBuffer(b *device.Block) (*wgpu.Buffer, error) {
	buf, ok := b.Handle().(*wgpu.Buffer)
	if !ok {
		return nil, fmt.Errorf("webgpu: block %s was not allocated on this device", b.ID())
	}
	return buf, nil
}

// stream batches recorded command buffers and submits them to the shared
// queue on flush. Work becomes visible to readback only after a flush;
// Download flushes its own stream before mapping.
type stream struct {
	d *Device

	mu      sync.Mutex
	pending []*wgpu.CommandBuffer
}

func (s *stream) enqueue(cmd *wgpu.CommandBuffer) {
	s.mu.Lock()
	s.pending = append(s.pending, cmd)
	s.mu.Unlock()
}

// flush submits every pending command buffer in enqueue order.
func (s *stream) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(pending) > 0 {
		s.d.queue.Submit(pending...)
	}
}

func (s *stream) Synchronize() error {
	s.flush()
	return s.d.waitIdle()
}

// waitIdle blocks until everything submitted so far has executed. The
// binding has no queue-done callback; the queue executes in submission
// order, so a blocking map of a staged fence copy completing implies all
// earlier work completed.
func (d *Device) waitIdle() error {
	staging, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  4,
	})
	if err != nil {
		return fmt.Errorf("webgpu: fence staging buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("webgpu: command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(d.fence, 0, staging, 0, 4)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("webgpu: encoding fence copy: %w", err)
	}
	d.queue.Submit(cmd)

	if err := staging.MapAsync(d.dev, wgpu.MapModeRead, 0, 4); err != nil {
		return fmt.Errorf("webgpu: waiting for queue: %w", err)
	}
	staging.Unmap()
	return nil
}

// resolveStream maps a nil stream onto the device default and rejects
// streams from another device.
func (d *Device) resolveStream(s device.Stream) (*stream, error) {
	if s == nil {
		return d.def, nil
	}
	st, ok := s.(*stream)
	if !ok || st.d != d {
		return nil, fmt.Errorf("webgpu: stream does not belong to this device")
	}
	return st, nil
}

type module struct {
	d        *Device
	entry    string
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

func (m *module) Function(entry string) (device.Kernel, error) {
	if entry != m.entry {
		return nil, fmt.Errorf("webgpu: module compiled for entry %q, not %q", m.entry, entry)
	}
	return &kernel{m: m}, nil
}

func (m *module) Binary() []byte { return nil }

type kernel struct {
	m *module
}

func (k *kernel) Launch(s device.Stream, n int, args ...device.Arg) error {
	if n <= 0 {
		return nil
	}
	d := k.m.d
	tensors, params, err := marshalArgs(n, args)
	if err != nil {
		return fmt.Errorf("webgpu: kernel %q: %w", k.m.entry, err)
	}

	uniform, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             uint64(len(params)),
		MappedAtCreation: wgpu.True,
	})
	if err != nil {
		return fmt.Errorf("webgpu: params buffer: %w", err)
	}
	defer uniform.Release()
	mapped := unsafe.Slice((*byte)(uniform.GetMappedRange(0, uint64(len(params)))), len(params))
	copy(mapped, params)
	uniform.Unmap()

	entries := make([]wgpu.BindGroupEntry, 0, len(tensors)+1)
	for i, t := range tensors {
		buf, err := blockBuffer(t.Block)
		if err != nil {
			return err
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf,
			Offset:  0,
			Size:    uint64(t.Block.Size()),
		})
	}
	entries = append(entries, wgpu.BindGroupEntry{
		Binding: uint32(len(tensors)),
		Buffer:  uniform,
		Offset:  0,
		Size:    uint64(len(params)),
	})

	layout := k.m.pipeline.GetBindGroupLayout(0)
	bind, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("webgpu: bind group: %w", err)
	}
	defer bind.Release()

	encoder, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("webgpu: command encoder: %w", err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(k.m.pipeline)
	pass.SetBindGroup(0, bind, nil)
	pass.DispatchWorkgroups(uint32((n+workgroupSize-1)/workgroupSize), 1, 1)
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("webgpu: encoding dispatch: %w", err)
	}
	st, err := d.resolveStream(s)
	if err != nil {
		return err
	}
	st.enqueue(cmd)
	return nil
}

// marshalArgs validates launch arguments against the shader ABI and packs
// the params uniform.
func marshalArgs(n int, args []device.Arg) ([]device.TensorArg, []byte, error) {
	var tensors []device.TensorArg
	var scalars []float64
	var ints []int
	for _, a := range args {
		switch v := a.(type) {
		case device.TensorArg:
			tensors = append(tensors, v)
		case device.Scalar:
			scalars = append(scalars, v.Value)
		case device.Ints:
			ints = append(ints, v.Values...)
		default:
			return nil, nil, fmt.Errorf("unsupported argument type %T", a)
		}
	}
	if len(tensors) > maxTensors {
		return nil, nil, fmt.Errorf("%d tensor arguments exceed the shader limit of %d", len(tensors), maxTensors)
	}
	if len(scalars) > 4 {
		return nil, nil, fmt.Errorf("%d scalar arguments exceed the shader limit of 4", len(scalars))
	}
	if len(ints) > 3 {
		return nil, nil, fmt.Errorf("%d int arguments exceed the shader limit of 3", len(ints))
	}

	params := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(params[0:4], uint32(n))
	for i, v := range ints {
		binary.LittleEndian.PutUint32(params[4+4*i:], uint32(int32(v)))
	}
	for i, v := range scalars {
		binary.LittleEndian.PutUint32(params[16+4*i:], math.Float32bits(float32(v)))
	}
	for i, t := range tensors {
		if t.DType != core.Float32 {
			return nil, nil, fmt.Errorf("only float32 is supported, got %s", t.DType)
		}
		if len(t.Shape) > maxRank {
			return nil, nil, fmt.Errorf("rank %d exceeds the shader limit of %d", len(t.Shape), maxRank)
		}
		if t.Offset%4 != 0 {
			return nil, nil, fmt.Errorf("tensor offset %d is not element aligned", t.Offset)
		}
		base := 32 + i*layoutSize
		binary.LittleEndian.PutUint32(params[base:], uint32(len(t.Shape)))
		binary.LittleEndian.PutUint32(params[base+4:], uint32(int32(t.Offset/4)))
		for d, extent := range t.Shape {
			binary.LittleEndian.PutUint32(params[base+16+4*d:], uint32(extent))
		}
		for d, stride := range t.Strides {
			if stride%4 != 0 {
				return nil, nil, fmt.Errorf("stride %d is not element aligned", stride)
			}
			binary.LittleEndian.PutUint32(params[base+16+4*maxRank+4*d:], uint32(int32(stride/4)))
		}
	}
	return tensors, params, nil
}
