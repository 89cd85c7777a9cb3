package device

import "testing"

func TestBlockFreeOnLastRelease(t *testing.T) {
	freed := 0
	b := NewBlock(64, make([]byte, 64), nil, func() { freed++ })

	b.Retain()
	b.Release()
	if freed != 0 {
		t.Fatal("block freed while a reference was still held")
	}
	if !b.Live() {
		t.Fatal("Live() = false with one reference outstanding")
	}

	b.Release()
	if freed != 1 {
		t.Fatalf("free ran %d times, want 1", freed)
	}
	if b.Live() {
		t.Error("Live() = true after final release")
	}
	if b.Data() != nil {
		t.Error("Data() should be nil after the final release")
	}
}

func TestBlockOverReleasePanics(t *testing.T) {
	b := NewBlock(8, make([]byte, 8), nil, nil)
	b.Release()

	defer func() {
		if recover() == nil {
			t.Error("releasing past zero should panic")
		}
	}()
	b.Release()
}

func TestBlockIDsDistinct(t *testing.T) {
	a := NewBlock(1, nil, nil, nil)
	b := NewBlock(1, nil, nil, nil)
	if a.ID() == b.ID() {
		t.Error("two blocks share an ID")
	}
}
