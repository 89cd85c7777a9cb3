// Package host implements the device interfaces on ordinary host memory.
// It is the reference backend: every kernel is a straightforward Go loop
// over strided storage, used by tests and as a fallback when no GPU is
// available.
package host

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

const binaryPrefix = "norda-host\x00"

// Device is a host-memory implementation of device.Device.
type Device struct {
	limit int64 // 0 = unlimited
	used  atomic.Int64
	def   *stream
}

// New creates a host device with no memory limit.
func New() *Device {
	return &Device{def: &stream{}}
}

// NewWithLimit creates a host device that refuses allocations once the total
// of live blocks would exceed limit bytes. Useful for exercising the
// out-of-memory path.
func NewWithLimit(limit int) *Device {
	return &Device{limit: int64(limit), def: &stream{}}
}

// Name returns the backend name.
func (d *Device) Name() string { return "host" }

// Allocate reserves a host-memory block. Contents are zeroed.
func (d *Device) Allocate(nbytes int) (*device.Block, error) {
	if nbytes < 0 {
		return nil, fmt.Errorf("host: negative allocation size %d", nbytes)
	}
	if d.limit > 0 && d.used.Add(int64(nbytes)) > d.limit {
		d.used.Add(int64(-nbytes))
		return nil, fmt.Errorf("host: allocating %d bytes: %w", nbytes, core.ErrOutOfMemory)
	}
	data := make([]byte, nbytes)
	blk := device.NewBlock(nbytes, data, nil, func() {
		d.used.Add(int64(-nbytes))
	})
	return blk, nil
}

// Compile resolves the entry point named in opts against the builtin kernel
// table. The source body is opaque to the host backend; only the entry name
// matters.
func (d *Device) Compile(_ context.Context, source string, opts device.CompileOptions) (device.Module, error) {
	if opts.Entry == "" {
		return nil, &core.CompileError{Entry: opts.Entry, Log: "missing entry point"}
	}
	if _, ok := kernels[opts.Entry]; !ok {
		return nil, &core.CompileError{Entry: opts.Entry, Log: fmt.Sprintf("no builtin kernel %q", opts.Entry)}
	}
	_ = source
	return &module{entry: opts.Entry}, nil
}

// LoadBinary reconstructs a module persisted by module.Binary.
func (d *Device) LoadBinary(bin []byte) (device.Module, error) {
	if !bytes.HasPrefix(bin, []byte(binaryPrefix)) {
		return nil, fmt.Errorf("host: unrecognized module binary")
	}
	entry := string(bin[len(binaryPrefix):])
	if _, ok := kernels[entry]; !ok {
		return nil, fmt.Errorf("host: stale module binary for unknown kernel %q", entry)
	}
	return &module{entry: entry}, nil
}

// DefaultStream returns the device's default stream.
func (d *Device) DefaultStream() device.Stream { return d.def }

// NewStream creates an independent stream. Host execution is synchronous, so
// streams only provide the ordering contract, not overlap.
func (d *Device) NewStream() device.Stream { return &stream{} }

// Upload copies host bytes into a block.
func (d *Device) Upload(b *device.Block, offset int, src []byte, _ device.Stream) error {
	if offset+len(src) > b.Size() {
		return fmt.Errorf("host: upload of %d bytes at offset %d exceeds block size %d", len(src), offset, b.Size())
	}
	copy(b.Data()[offset:], src)
	return nil
}

// Download copies block bytes out to host memory.
func (d *Device) Download(b *device.Block, offset int, dst []byte, _ device.Stream) error {
	if offset+len(dst) > b.Size() {
		return fmt.Errorf("host: download of %d bytes at offset %d exceeds block size %d", len(dst), offset, b.Size())
	}
	copy(dst, b.Data()[offset:])
	return nil
}

// stream is the host execution stream. Kernels run inline at enqueue time,
// so enqueue order and execution order coincide trivially.
type stream struct{}

func (s *stream) Synchronize() error { return nil }

// module is a "compiled" host kernel container.
type module struct {
	entry string
}

func (m *module) Function(entry string) (device.Kernel, error) {
	fn, ok := kernels[entry]
	if !ok {
		return nil, fmt.Errorf("host: module has no function %q", entry)
	}
	return kernel{fn: fn}, nil
}

func (m *module) Binary() []byte {
	return append([]byte(binaryPrefix), m.entry...)
}

// kernel adapts a builtin Go function to device.Kernel.
type kernel struct {
	fn kernelFunc
}

func (k kernel) Launch(_ device.Stream, n int, args ...device.Arg) error {
	return k.fn(n, args)
}
