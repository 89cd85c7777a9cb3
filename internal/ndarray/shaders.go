package ndarray

import "fmt"

// WGSL sources for the engine's kernels, keyed by entry point. The host
// device resolves entries against its builtin table and ignores the bodies;
// the WebGPU device compiles them through the kernel cache.
//
// Every shader shares one uniform ABI so the device can marshal launch
// arguments without per-kernel knowledge: tensor buffers bind at 0..k-1 in
// argument order, the params uniform binds at k. Params carries the flat
// iteration count, the first integer and scalar arguments, and a Layout per
// tensor (rank, element offset, extents, element strides).

const wgslPrelude = `
struct Layout {
    rank: u32,
    off: i32,
    _pad0: u32,
    _pad1: u32,
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

fn dim_of(l: Layout, d: u32) -> u32 {
    return l.shape[d / 4u][d % 4u];
}

fn stride_of(l: Layout, d: u32) -> i32 {
    return l.strides[d / 4u][d % 4u];
}

// offset_in decodes a flat C-order index against the dims [lo, hi) of a
// layout and accumulates the strided element offset.
fn offset_in(l: Layout, flat: u32, lo: u32, hi: u32) -> i32 {
    var i = flat;
    var off = 0i;
    var d = hi;
    loop {
        if (d == lo) { break; }
        d = d - 1u;
        let extent = dim_of(l, d);
        off = off + i32(i % extent) * stride_of(l, d);
        i = i / extent;
    }
    return off;
}

fn offset_of(l: Layout, flat: u32) -> i32 {
    return l.off + offset_in(l, flat, 0u, l.rank);
}
`

const copyShader = wgslPrelude + `
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn strided_copy(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < params.n) {
        dst[u32(offset_of(params.t[0], i))] = src[u32(offset_of(params.t[1], i))];
    }
}
`

const fillShader = wgslPrelude + `
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn fill(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < params.n) {
        dst[u32(offset_of(params.t[0], i))] = params.s0;
    }
}
`

const arangeShader = wgslPrelude + `
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn arange(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < params.n) {
        dst[u32(offset_of(params.t[0], i))] = params.s0 + f32(i) * params.s1;
    }
}
`

const scaleShader = wgslPrelude + `
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn scale(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < params.n) {
        let off = u32(offset_of(params.t[0], i));
        dst[off] = dst[off] * params.s0;
    }
}
`

const momentShader = wgslPrelude + `
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<storage, read> sums: array<f32>;
@group(0) @binding(2) var<storage, read> sumsq: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn finalize_moment(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= params.n) {
        return;
    }
    let s = sums[u32(offset_of(params.t[1], i))];
    let q = sumsq[u32(offset_of(params.t[2], i))];
    let count = params.s0;
    var m = (q - s * s / count) / (count - params.s1);
    m = max(m, 0.0);
    if (params.s2 != 0.0) {
        m = sqrt(m);
    }
    dst[u32(offset_of(params.t[0], i))] = m;
}
`

// reduceShader instantiates the shared reduction skeleton: one invocation
// per output element, folding the trailing axes of the kept-axes-first
// permuted source. i0 carries the kept-axis count and s1 the fold's
// starting value.
func reduceShader(entry, fold string) string {
	return wgslPrelude + fmt.Sprintf(`
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn %s(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= params.n) {
        return;
    }
    let l = params.t[1];
    let nkept = u32(params.i0);
    var red_size = 1u;
    for (var d = nkept; d < l.rank; d = d + 1u) {
        red_size = red_size * dim_of(l, d);
    }
    let base = l.off + offset_in(l, i, 0u, nkept);
    var acc = params.s1;
    for (var j = 0u; j < red_size; j = j + 1u) {
        let v = src[u32(base + offset_in(l, j, nkept, l.rank))];
        %s
    }
    dst[u32(offset_of(params.t[0], i))] = acc;
}
`, entry, fold)
}

// scanShader: one invocation per lane, accumulating along the trailing axis
// from the fold's identity value.
func scanShader(entry, init, fold string) string {
	return wgslPrelude + fmt.Sprintf(`
@group(0) @binding(0) var<storage, read_write> dst: array<f32>;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn %s(@builtin(global_invocation_id) gid: vec3<u32>) {
    let lane = gid.x;
    let dl = params.t[0];
    let sl = params.t[1];
    let lane_len = dim_of(sl, sl.rank - 1u);
    if (lane >= params.n / max(lane_len, 1u)) {
        return;
    }
    let dstep = stride_of(dl, dl.rank - 1u);
    let sstep = stride_of(sl, sl.rank - 1u);
    let dbase = dl.off + offset_in(dl, lane, 0u, dl.rank - 1u);
    let sbase = sl.off + offset_in(sl, lane, 0u, sl.rank - 1u);
    var acc = %s;
    for (var j = 0u; j < lane_len; j = j + 1u) {
        let v = src[u32(sbase + i32(j) * sstep)];
        %s
        dst[u32(dbase + i32(j) * dstep)] = acc;
    }
}
`, entry, init, fold)
}

// sortShader orders each lane in place with a stable insertion sort; lanes
// are short relative to the batch in the workloads this engine targets.
const sortShader = wgslPrelude + `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn sort(@builtin(global_invocation_id) gid: vec3<u32>) {
    let lane = gid.x;
    let l = params.t[0];
    let lane_len = dim_of(l, l.rank - 1u);
    if (lane >= params.n / max(lane_len, 1u)) {
        return;
    }
    let step = stride_of(l, l.rank - 1u);
    let base = l.off + offset_in(l, lane, 0u, l.rank - 1u);
    for (var j = 1u; j < lane_len; j = j + 1u) {
        let key = data[u32(base + i32(j) * step)];
        var k = j;
        loop {
            if (k == 0u) { break; }
            let prev = data[u32(base + i32(k - 1u) * step)];
            if (prev <= key) { break; }
            data[u32(base + i32(k) * step)] = prev;
            k = k - 1u;
        }
        data[u32(base + i32(k) * step)] = key;
    }
}
`

var kernelSources = map[string]string{
	"strided_copy":    copyShader,
	"fill":            fillShader,
	"arange":          arangeShader,
	"scale":           scaleShader,
	"finalize_moment": momentShader,

	"reduce_sum":   reduceShader("reduce_sum", "acc = acc + v;"),
	"reduce_sumsq": reduceShader("reduce_sumsq", "acc = acc + v * v;"),
	"reduce_prod":  reduceShader("reduce_prod", "acc = acc * v;"),
	"reduce_min":   reduceShader("reduce_min", "acc = min(acc, v);"),
	"reduce_max":   reduceShader("reduce_max", "acc = max(acc, v);"),
	"reduce_any":   reduceShader("reduce_any", "acc = max(acc, select(0.0, 1.0, v != 0.0));"),
	"reduce_all":   reduceShader("reduce_all", "acc = min(acc, select(0.0, 1.0, v != 0.0));"),

	"scan_sum":  scanShader("scan_sum", "0.0", "acc = acc + v;"),
	"scan_prod": scanShader("scan_prod", "1.0", "acc = acc * v;"),

	"sort": sortShader,
}

// kernelSource returns the device source for an entry point. Entries with
// no WGSL rendition (index-producing and partition kernels need integer
// outputs the f32 shader ABI does not carry) resolve only on the host
// device; other backends surface the compile failure to the caller.
func kernelSource(entry string) string {
	if src, ok := kernelSources[entry]; ok {
		return src
	}
	return "// host-only kernel: " + entry
}
