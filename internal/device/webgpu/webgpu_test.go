package webgpu

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

// doubleSrc mirrors the uniform ABI Launch marshals: tensor buffers at the
// leading bindings, the params block after them.
const doubleSrc = `
struct Layout {
    rank: u32,
    off: i32,
    pad0: u32,
    pad1: u32,
    shape: array<vec4<u32>, 2>,
    strides: array<vec4<i32>, 2>,
}

struct Params {
    n: u32,
    i0: i32,
    i1: i32,
    i2: i32,
    s0: f32,
    s1: f32,
    s2: f32,
    s3: f32,
    t: array<Layout, 4>,
}

@group(0) @binding(0) var<storage, read_write> data: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn double(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= params.n) {
        return;
    }
    data[i] = data[i] * 2.0;
}
`

func TestDispatchSynchronizeReadback(t *testing.T) {
	if !IsAvailable() {
		t.Skip("no WebGPU adapter available")
	}
	d, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Close()

	blk, err := d.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	defer blk.Release()

	src := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		binary.LittleEndian.PutUint32(src[i*4:], math.Float32bits(v))
	}
	if err := d.Upload(blk, 0, src, nil); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	mod, err := d.Compile(context.Background(), doubleSrc, device.CompileOptions{Entry: "double"})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	kern, err := mod.Function("double")
	if err != nil {
		t.Fatalf("Function failed: %v", err)
	}
	arg := device.TensorArg{Block: blk, Shape: core.Shape{4}, Strides: []int{4}, DType: core.Float32}
	if err := kern.Launch(nil, 4, arg); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	// Returning from Synchronize means the upload and dispatch above have
	// executed, not merely been submitted.
	if err := d.DefaultStream().Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}

	dst := make([]byte, 16)
	if err := d.Download(blk, 0, dst, nil); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	for i, want := range []float32{2, 4, 6, 8} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:]))
		if got != want {
			t.Errorf("element %d = %v, want %v", i, got, want)
		}
	}
}
