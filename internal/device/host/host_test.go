package host

import (
	"context"
	"errors"
	"testing"

	"github.com/norda-ml/norda/internal/core"
	"github.com/norda-ml/norda/internal/device"
)

func TestAllocateZeroed(t *testing.T) {
	d := New()
	blk, err := d.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer blk.Release()

	for i, v := range blk.Data() {
		if v != 0 {
			t.Fatalf("byte %d = %d, want 0", i, v)
		}
	}
}

func TestAllocateLimit(t *testing.T) {
	d := NewWithLimit(100)

	a, err := d.Allocate(60)
	if err != nil {
		t.Fatalf("first allocation: %v", err)
	}

	if _, err := d.Allocate(60); !errors.Is(err, core.ErrOutOfMemory) {
		t.Fatalf("over-limit allocation error = %v, want ErrOutOfMemory", err)
	}

	// Releasing returns the budget.
	a.Release()
	b, err := d.Allocate(60)
	if err != nil {
		t.Fatalf("allocation after release: %v", err)
	}
	b.Release()
}

func TestCompileUnknownEntry(t *testing.T) {
	d := New()
	_, err := d.Compile(context.Background(), "", device.CompileOptions{Entry: "no_such_kernel"})
	var ce *core.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *core.CompileError", err)
	}
}

func TestModuleBinaryRoundTrip(t *testing.T) {
	d := New()
	mod, err := d.Compile(context.Background(), "", device.CompileOptions{Entry: "fill"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	bin := mod.Binary()
	if bin == nil {
		t.Fatal("host modules should serialize")
	}
	loaded, err := d.LoadBinary(bin)
	if err != nil {
		t.Fatalf("LoadBinary: %v", err)
	}
	if _, err := loaded.Function("fill"); err != nil {
		t.Fatalf("Function on reloaded module: %v", err)
	}

	if _, err := d.LoadBinary([]byte("garbage")); err == nil {
		t.Error("LoadBinary should reject foreign artifacts")
	}
}

func TestUploadDownload(t *testing.T) {
	d := New()
	blk, err := d.Allocate(8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer blk.Release()

	src := []byte{1, 2, 3, 4}
	if err := d.Upload(blk, 2, src, nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	dst := make([]byte, 4)
	if err := d.Download(blk, 2, dst, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], src[i])
		}
	}

	if err := d.Upload(blk, 6, src, nil); err == nil {
		t.Error("out-of-bounds upload should fail")
	}
	if err := d.Download(blk, 6, dst, nil); err == nil {
		t.Error("out-of-bounds download should fail")
	}
}
