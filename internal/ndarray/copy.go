package ndarray

import (
	"fmt"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

// Copy materializes a new owning array with a dense layout in the requested
// order, gathering elements through the source's strides. The result has an
// independent lifetime from the receiver.
func (a *Array) Copy(order core.Order) (*Array, error) {
	order, err := a.resolveOrder(order)
	if err != nil {
		return nil, err
	}
	out, err := a.eng.New(a.shape, a.dtype)
	if err != nil {
		return nil, err
	}
	if order == core.ColMajor {
		out.setLayout(out.shape, core.ContiguousStrides(out.shape, a.dtype.Size(), core.ColMajor))
	}
	// Each side may collapse independently: a reduced view yields the same
	// offset sequence, so the element pairing is unchanged.
	if err := a.eng.launch("strided_copy", a.size, out.reducedArg(), a.reducedArg()); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// AsType returns the array converted to dtype. When dtype already matches
// and no copy is forced, the result is a view sharing the receiver's block.
func (a *Array) AsType(dtype core.DataType, forceCopy bool) (*Array, error) {
	if dtype == a.dtype && !forceCopy {
		return a.view(a.shape.Clone(), append([]int(nil), a.strides...), 0), nil
	}
	out, err := a.eng.New(a.shape, dtype)
	if err != nil {
		return nil, err
	}
	if err := a.eng.launch("strided_copy", a.size, out.arg(), a.arg()); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// TransferOptions parameterize host transfers.
//
// A nil Stream uses the device's default stream; whether that blocks until
// completion is the engine's explicit blocking-transfers policy. With a
// caller-supplied stream, awaiting completion before reading the result is
// the caller's responsibility.
type TransferOptions struct {
	Order  core.Order    // zero value means RowMajor
	Stream device.Stream //
	NoCopy bool          // fail instead of taking an implicit copy path
}

// resolveOrder maps AnyOrder onto the array's own layout and rejects
// unknown order values.
func (a *Array) resolveOrder(order core.Order) (core.Order, error) {
	switch order {
	case 0, core.RowMajor:
		return core.RowMajor, nil
	case core.ColMajor:
		return core.ColMajor, nil
	case core.AnyOrder:
		if a.flags.FContiguous && !a.flags.CContiguous {
			return core.ColMajor, nil
		}
		return core.RowMajor, nil
	default:
		return 0, fmt.Errorf("order %q: %w", order, core.ErrInvalidOrder)
	}
}

// contiguousIn reports whether the array is already dense in the order.
func (a *Array) contiguousIn(order core.Order) bool {
	if order == core.ColMajor {
		return a.flags.FContiguous
	}
	return a.flags.CContiguous
}

// Get transfers the array's contents to a host buffer laid out in the
// requested order. A non-contiguous source takes a device-side copy first;
// with NoCopy set that path fails with ErrInvalidOrder instead.
func (a *Array) Get(opts TransferOptions) ([]byte, error) {
	order, err := a.resolveOrder(opts.Order)
	if err != nil {
		return nil, err
	}

	src := a
	if !a.contiguousIn(order) {
		if opts.NoCopy {
			return nil, fmt.Errorf("get: layout requires a copy for order %q: %w", order, core.ErrInvalidOrder)
		}
		c, err := a.Copy(order)
		if err != nil {
			return nil, err
		}
		defer c.Release()
		src = c
		// The copy ran on the default stream; a caller-supplied stream
		// below would not order after it on its own.
		if err := a.eng.dev.DefaultStream().Synchronize(); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, src.size*src.dtype.Size())
	stream := opts.Stream
	if stream == nil {
		stream = a.eng.dev.DefaultStream()
		defer func() {
			if a.eng.blockingTransfers {
				stream.Synchronize() //nolint:errcheck // best-effort drain after a successful copy
			}
		}()
	}
	if err := a.eng.dev.Download(src.block, src.offset, buf, stream); err != nil {
		return nil, err
	}
	return buf, nil
}

// Set uploads a dense C-ordered host buffer into the array, scattering
// through its strides when the destination is not C-contiguous.
func (a *Array) Set(buf []byte, opts TransferOptions) error {
	if len(buf) != a.size*a.dtype.Size() {
		return &core.ShapeError{Op: "set", A: core.Shape{len(buf) / max(a.dtype.Size(), 1)}, B: a.shape.Clone()}
	}
	stream := opts.Stream
	sync := false
	if stream == nil {
		stream = a.eng.dev.DefaultStream()
		sync = a.eng.blockingTransfers
	}

	if a.contiguousIn(core.RowMajor) {
		if err := a.eng.dev.Upload(a.block, a.offset, buf, stream); err != nil {
			return err
		}
	} else {
		staging, err := a.eng.New(a.shape, a.dtype)
		if err != nil {
			return err
		}
		defer staging.Release()
		if err := a.eng.dev.Upload(staging.block, staging.offset, buf, stream); err != nil {
			return err
		}
		// The scatter must trail the staging upload, so it rides the same
		// stream rather than the default one.
		if err := a.eng.launchOn(stream, "strided_copy", a.size, a.arg(), staging.arg()); err != nil {
			return err
		}
	}
	if sync {
		return stream.Synchronize()
	}
	return nil
}

// GetFloat64s downloads the array in C order, widening every element to
// float64. Convenience for callers and tests.
func (a *Array) GetFloat64s() ([]float64, error) {
	buf, err := a.Get(TransferOptions{})
	if err != nil {
		return nil, err
	}
	w := a.dtype.Size()
	out := make([]float64, a.size)
	for i := range out {
		out[i] = core.DecodeElement(buf[i*w:], a.dtype)
	}
	return out, nil
}

// SetFloat64s uploads values in C order, narrowing to the array's dtype.
func (a *Array) SetFloat64s(values []float64, s device.Stream) error {
	if len(values) != a.size {
		return &core.ShapeError{Op: "set", A: core.Shape{len(values)}, B: a.shape.Clone()}
	}
	w := a.dtype.Size()
	buf := make([]byte, a.size*w)
	for i, v := range values {
		core.EncodeElement(buf[i*w:], a.dtype, v)
	}
	return a.Set(buf, TransferOptions{Stream: s})
}
