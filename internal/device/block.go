package device

import (
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// Block is a reference-counted device memory allocation. Arrays and views
// retain the block for their entire lifetime; the allocation is returned to
// the device only when the last holder releases it. The count starts at 1
// for the allocating owner.
type Block struct {
	id   string
	size int
	refs atomic.Int32

	// Host-visible storage for host-resident blocks; nil on device-resident
	// blocks, which carry a backend handle instead.
	data   []byte
	handle any

	free func()
}

// NewBlock wraps an allocation in a reference-counted block. Exactly one of
// data/handle is set depending on where the memory lives; free is invoked
// once when the final reference is released.
func NewBlock(size int, data []byte, handle any, free func()) *Block {
	b := &Block{
		id:     uuid.NewString(),
		size:   size,
		data:   data,
		handle: handle,
		free:   free,
	}
	b.refs.Store(1)
	return b
}

// ID returns the block's unique identifier, used for log correlation.
func (b *Block) ID() string { return b.id }

// Size returns the allocated extent in bytes.
func (b *Block) Size() int { return b.size }

// Data returns host-visible storage, or nil for device-resident blocks.
func (b *Block) Data() []byte { return b.data }

// Handle returns the backend-specific allocation handle, if any.
func (b *Block) Handle() any { return b.handle }

// Retain adds a reference. Every view over the block holds one.
func (b *Block) Retain() { b.refs.Add(1) }

// Release drops a reference and frees the allocation when the count reaches
// zero. Releasing more times than retained is a programming error.
func (b *Block) Release() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic("device: block released more times than retained")
	}
	if n == 0 {
		slog.Debug("releasing device block", "block", b.id, "bytes", b.size)
		if b.free != nil {
			b.free()
		}
		b.data = nil
		b.handle = nil
	}
}

// Live reports whether the block still holds at least one reference.
func (b *Block) Live() bool { return b.refs.Load() > 0 }
