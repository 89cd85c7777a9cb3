package kernelcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/norda-ml/norda/internal/device"
)

// fakeDevice counts compilations and optionally delays them, so tests can
// observe cache hits and collapsed concurrent compiles.
type fakeDevice struct {
	compiles atomic.Int32
	loads    atomic.Int32
	delay    time.Duration
	noBinary bool
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Allocate(nbytes int) (*device.Block, error) {
	return device.NewBlock(nbytes, make([]byte, nbytes), nil, nil), nil
}

func (d *fakeDevice) Compile(_ context.Context, source string, opts device.CompileOptions) (device.Module, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.compiles.Add(1)
	return &fakeModule{entry: opts.Entry, noBinary: d.noBinary}, nil
}

func (d *fakeDevice) LoadBinary(bin []byte) (device.Module, error) {
	d.loads.Add(1)
	return &fakeModule{entry: string(bin)}, nil
}

func (d *fakeDevice) DefaultStream() device.Stream { return fakeStream{} }
func (d *fakeDevice) NewStream() device.Stream     { return fakeStream{} }

func (d *fakeDevice) Upload(*device.Block, int, []byte, device.Stream) error   { return nil }
func (d *fakeDevice) Download(*device.Block, int, []byte, device.Stream) error { return nil }

type fakeStream struct{}

func (fakeStream) Synchronize() error { return nil }

type fakeModule struct {
	entry    string
	noBinary bool
}

func (m *fakeModule) Function(entry string) (device.Kernel, error) {
	if entry != m.entry {
		return nil, fmt.Errorf("no function %q", entry)
	}
	return fakeKernel{}, nil
}

func (m *fakeModule) Binary() []byte {
	if m.noBinary {
		return nil
	}
	return []byte(m.entry)
}

type fakeKernel struct{}

func (fakeKernel) Launch(device.Stream, int, ...device.Arg) error { return nil }

func TestCompileMemoized(t *testing.T) {
	dev := &fakeDevice{noBinary: true}
	c := New(dev, "")
	opts := device.CompileOptions{Entry: "main"}

	for i := 0; i < 3; i++ {
		if _, err := c.Compile(context.Background(), "src", opts); err != nil {
			t.Fatalf("Compile %d: %v", i, err)
		}
	}
	if n := dev.compiles.Load(); n != 1 {
		t.Errorf("compiler invoked %d times, want 1", n)
	}
}

func TestDistinctKeysCompileSeparately(t *testing.T) {
	dev := &fakeDevice{noBinary: true}
	c := New(dev, "")

	c.Compile(context.Background(), "src", device.CompileOptions{Entry: "a"})
	c.Compile(context.Background(), "src", device.CompileOptions{Entry: "b"})
	c.Compile(context.Background(), "other", device.CompileOptions{Entry: "a"})
	c.Compile(context.Background(), "src", device.CompileOptions{Entry: "a", Arch: "sm_90"})

	if n := dev.compiles.Load(); n != 4 {
		t.Errorf("compiler invoked %d times, want 4", n)
	}
}

func TestConcurrentCompilesCollapse(t *testing.T) {
	dev := &fakeDevice{noBinary: true, delay: 20 * time.Millisecond}
	c := New(dev, "")
	opts := device.CompileOptions{Entry: "main"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Compile(context.Background(), "src", opts); err != nil {
				t.Errorf("Compile: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := dev.compiles.Load(); n != 1 {
		t.Errorf("compiler invoked %d times, want 1", n)
	}
}

func TestDiskPersistence(t *testing.T) {
	dir := t.TempDir()
	dev := &fakeDevice{}

	c1 := New(dev, dir)
	if _, err := c1.Compile(context.Background(), "src", device.CompileOptions{Entry: "main"}); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if n := dev.compiles.Load(); n != 1 {
		t.Fatalf("compiler invoked %d times, want 1", n)
	}

	// A fresh cache over the same directory loads the artifact instead of
	// compiling again.
	c2 := New(dev, dir)
	if _, err := c2.Compile(context.Background(), "src", device.CompileOptions{Entry: "main"}); err != nil {
		t.Fatalf("Compile from disk: %v", err)
	}
	if n := dev.compiles.Load(); n != 1 {
		t.Errorf("compiler invoked %d times after disk hit, want 1", n)
	}
	if n := dev.loads.Load(); n != 1 {
		t.Errorf("LoadBinary invoked %d times, want 1", n)
	}
}

func TestFunctionResolvesEntry(t *testing.T) {
	dev := &fakeDevice{noBinary: true}
	c := New(dev, "")

	if _, err := c.Function(context.Background(), "src", device.CompileOptions{Entry: "main"}); err != nil {
		t.Fatalf("Function: %v", err)
	}
}
