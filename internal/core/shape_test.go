package core

import (
	"reflect"
	"testing"
)

func TestNumElements(t *testing.T) {
	if n := (Shape{2, 3, 4}).NumElements(); n != 24 {
		t.Errorf("NumElements = %d, want 24", n)
	}
	if n := (Shape{}).NumElements(); n != 1 {
		t.Errorf("scalar NumElements = %d, want 1", n)
	}
	if n := (Shape{3, 0, 5}).NumElements(); n != 0 {
		t.Errorf("empty NumElements = %d, want 0", n)
	}
}

func TestValidateRejectsNegative(t *testing.T) {
	if err := (Shape{2, -1}).Validate(); err == nil {
		t.Error("Validate should reject negative extents")
	}
	if err := (Shape{2, 0, 3}).Validate(); err != nil {
		t.Errorf("Validate rejected zero extent: %v", err)
	}
}

func TestContiguousStridesRowMajor(t *testing.T) {
	got := ContiguousStrides(Shape{2, 3, 4}, 8, RowMajor)
	want := []int{96, 32, 8}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("strides = %v, want %v", got, want)
	}
}

func TestContiguousStridesColMajor(t *testing.T) {
	got := ContiguousStrides(Shape{2, 3, 4}, 8, ColMajor)
	want := []int{8, 16, 48}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("strides = %v, want %v", got, want)
	}
}

func TestContiguousStridesZeroExtent(t *testing.T) {
	// Zero extents contribute a factor of 1 so surrounding strides stay sane.
	got := ContiguousStrides(Shape{2, 0, 3}, 4, RowMajor)
	want := []int{12, 12, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("strides = %v, want %v", got, want)
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b    Shape
		want    Shape
		stretch bool
	}{
		{Shape{2, 3}, Shape{2, 3}, Shape{2, 3}, false},
		{Shape{2, 1}, Shape{2, 3}, Shape{2, 3}, true},
		{Shape{3}, Shape{2, 3}, Shape{2, 3}, true},
		{Shape{}, Shape{4, 5}, Shape{4, 5}, true},
		{Shape{5, 1, 4}, Shape{3, 1}, Shape{5, 3, 4}, true},
	}
	for _, tt := range tests {
		got, stretch, err := BroadcastShapes(tt.a, tt.b)
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v) error: %v", tt.a, tt.b, err)
			continue
		}
		if !got.Equal(tt.want) || stretch != tt.stretch {
			t.Errorf("BroadcastShapes(%v, %v) = %v, %v; want %v, %v",
				tt.a, tt.b, got, stretch, tt.want, tt.stretch)
		}
	}
}

func TestBroadcastShapesIncompatible(t *testing.T) {
	_, _, err := BroadcastShapes(Shape{2, 3}, Shape{2, 4})
	if err == nil {
		t.Fatal("expected an error for incompatible shapes")
	}
	if _, ok := err.(*ShapeError); !ok {
		t.Errorf("error type = %T, want *ShapeError", err)
	}
}

func TestBroadcastStrides(t *testing.T) {
	strides, err := BroadcastStrides(Shape{3, 1}, []int{8, 8}, Shape{2, 3, 4})
	if err != nil {
		t.Fatalf("BroadcastStrides: %v", err)
	}
	want := []int{0, 8, 0}
	if !reflect.DeepEqual(strides, want) {
		t.Errorf("strides = %v, want %v", strides, want)
	}
}

func TestReshapeStridesContiguous(t *testing.T) {
	shape := Shape{4, 6}
	strides := ContiguousStrides(shape, 4, RowMajor)
	got, ok := ReshapeStrides(shape, strides, Shape{2, 3, 4}, 4)
	if !ok {
		t.Fatal("contiguous reshape should not require a copy")
	}
	want := []int{48, 16, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("strides = %v, want %v", got, want)
	}
}

func TestReshapeStridesTransposedNeedsCopy(t *testing.T) {
	// [3,4] transposed to [4,3]: strides {4, 12}. Flattening it interleaves
	// the axes, so no stride assignment can express it.
	_, ok := ReshapeStrides(Shape{4, 3}, []int{4, 12}, Shape{12}, 4)
	if ok {
		t.Error("reshape of a transposed layout should require a copy")
	}
}

func TestReshapeStridesUnitAxisInsertion(t *testing.T) {
	// Inserting extent-1 axes never needs a copy, even on non-contiguous
	// sources whose remaining axes are untouched.
	got, ok := ReshapeStrides(Shape{4, 3}, []int{4, 12}, Shape{4, 1, 3, 1}, 4)
	if !ok {
		t.Fatal("unit axis insertion should not require a copy")
	}
	if got[0] != 4 || got[2] != 12 {
		t.Errorf("carried strides = %v, want stride 4 at axis 0 and 12 at axis 2", got)
	}
}

func TestReshapeStridesElementCountMismatch(t *testing.T) {
	if _, ok := ReshapeStrides(Shape{2, 3}, []int{12, 4}, Shape{7}, 4); ok {
		t.Error("reshape with a different element count must fail")
	}
}

func TestComputeFlags(t *testing.T) {
	itemsize := 4
	tests := []struct {
		name    string
		shape   Shape
		strides []int
		c, f    bool
	}{
		{"c-contiguous", Shape{2, 3}, []int{12, 4}, true, false},
		{"f-contiguous", Shape{2, 3}, []int{4, 8}, false, true},
		{"1d-both", Shape{5}, []int{4}, true, true},
		{"transposed", Shape{3, 2}, []int{4, 12}, false, true},
		{"strided-neither", Shape{2, 3}, []int{24, 8}, false, false},
		{"empty-both", Shape{2, 0, 3}, []int{100, 7, 3}, true, true},
		{"unit-axes-ignored", Shape{1, 2, 1, 3}, []int{999, 12, 55, 4}, true, false},
	}
	for _, tt := range tests {
		got := ComputeFlags(tt.shape, tt.strides, itemsize)
		if got.CContiguous != tt.c || got.FContiguous != tt.f {
			t.Errorf("%s: flags = %+v, want C=%v F=%v", tt.name, got, tt.c, tt.f)
		}
	}
}

func TestStridedIterOrder(t *testing.T) {
	// F-ordered storage of a [2,3] array walked in C order.
	it := NewStridedIter(Shape{2, 3}, []int{4, 8}, 100)
	var got []int
	for {
		off, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, off)
	}
	want := []int{100, 108, 116, 104, 112, 120}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("offsets = %v, want %v", got, want)
	}
}

func TestStridedIterEmpty(t *testing.T) {
	it := NewStridedIter(Shape{0, 3}, []int{12, 4}, 0)
	if _, ok := it.Next(); ok {
		t.Error("iterator over an empty shape should be exhausted")
	}
}

func TestByteOffset(t *testing.T) {
	shape := Shape{2, 3}
	strides := []int{4, 8} // F layout
	for i := 0; i < 6; i++ {
		want := (i / 3 % 2) * 4
		want += (i % 3) * 8
		if got := ByteOffset(i, shape, strides); got != want {
			t.Errorf("ByteOffset(%d) = %d, want %d", i, got, want)
		}
	}
}
