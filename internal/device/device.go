// Package device defines the capability interfaces the array engine needs
// from an accelerator: an allocator for device memory blocks, streams for
// ordered asynchronous execution, and an opaque compile-to-kernel service.
// Concrete implementations live in device/host and device/webgpu.
package device

import (
	"context"

	"github.com/norda-ml/norda/internal/core"
)

// Device is implemented by every accelerator backend.
type Device interface {
	// Name identifies the backend, e.g. "host" or "WebGPU".
	Name() string

	// Allocate reserves a device memory block of nbytes. Contents are
	// undefined. Returns core.ErrOutOfMemory (possibly wrapped) when the
	// underlying allocator cannot satisfy the request.
	Allocate(nbytes int) (*Block, error)

	// Compile translates kernel source into a loadable module. Callers
	// normally go through kernelcache rather than calling this directly.
	Compile(ctx context.Context, source string, opts CompileOptions) (Module, error)

	// LoadBinary reconstructs a module from a previously persisted artifact
	// produced by Module.Binary. Returns an error when the backend does not
	// support serialized modules.
	LoadBinary(bin []byte) (Module, error)

	// DefaultStream returns the stream used when an operation is given none.
	DefaultStream() Stream

	// NewStream creates an independent execution stream. Work on distinct
	// streams is unordered with respect to each other.
	NewStream() Stream

	// Upload copies len(src) bytes of host memory into b at offset, ordered
	// on s. A nil stream means the default stream, synchronized on return.
	Upload(b *Block, offset int, src []byte, s Stream) error

	// Download copies len(dst) bytes out of b at offset into host memory,
	// ordered on s. A nil stream means the default stream, synchronized on
	// return.
	Download(b *Block, offset int, dst []byte, s Stream) error
}

// Stream orders device execution: work enqueued on one stream runs in
// enqueue order; streams are mutually unordered unless synchronized.
type Stream interface {
	// Synchronize blocks until all work enqueued so far has completed.
	Synchronize() error
}

// CompileOptions parameterize a kernel compilation. Entry names the function
// inside the source to load; Options and Arch participate in cache keying.
type CompileOptions struct {
	Entry   string
	Options []string
	Arch    string
}

// Module is a compiled, loadable kernel container.
type Module interface {
	// Function resolves an entry point to a launchable kernel.
	Function(entry string) (Kernel, error)

	// Binary returns a serializable artifact for on-disk caching, or nil
	// when the backend cannot serialize compiled modules.
	Binary() []byte
}

// Kernel is a device-callable function. Launch enqueues one execution over a
// flat iteration space of n elements on stream s. Implementations map n onto
// their own execution grid.
type Kernel interface {
	Launch(s Stream, n int, args ...Arg) error
}

// Arg is a kernel launch argument: a TensorArg, a Scalar, or an Ints value.
type Arg any

// TensorArg describes strided device memory to a kernel: base block plus
// byte offset, logical shape, and byte strides. Kernels consume it for both
// contiguous and arbitrarily strided access without separate code paths.
type TensorArg struct {
	Block   *Block
	Offset  int
	Shape   core.Shape
	Strides []int
	DType   core.DataType
}

// Itemsize returns the element width in bytes.
func (a TensorArg) Itemsize() int { return a.DType.Size() }

// Scalar passes a numeric parameter to a kernel.
type Scalar struct {
	Value float64
}

// Ints passes an integer list parameter (axis sets, partition indices).
type Ints struct {
	Values []int
}
