package dsa

import (
	"reflect"
	"testing"
)

func TestRingPushAndItems(t *testing.T) {
	r := NewRing[int](3)

	if r.Len() != 0 || r.Cap() != 3 {
		t.Fatalf("fresh ring: Len=%d Cap=%d", r.Len(), r.Cap())
	}

	r.Push(1)
	r.Push(2)
	if got := r.Items(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Items = %v", got)
	}

	r.Push(3)
	r.Push(4) // evicts 1
	if got := r.Items(); !reflect.DeepEqual(got, []int{2, 3, 4}) {
		t.Errorf("Items after eviction = %v", got)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
}

func TestRingLast(t *testing.T) {
	r := NewRing[string](5)
	for _, s := range []string{"a", "b", "c", "d"} {
		r.Push(s)
	}

	if got := r.Last(2); !reflect.DeepEqual(got, []string{"c", "d"}) {
		t.Errorf("Last(2) = %v", got)
	}
	if got := r.Last(10); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("Last(10) = %v", got)
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing[int](2)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}
	if got := r.Items(); !reflect.DeepEqual(got, []int{6, 7}) {
		t.Errorf("Items after wrap = %v", got)
	}
}

func TestRingMinCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	if got := r.Items(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("capacity floor: Items = %v", got)
	}
}
