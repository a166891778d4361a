package game

import (
	"reflect"
	"testing"
)

func TestModBuckets_AddMergesSameAttacker(t *testing.T) {
	s := NewModBuckets()
	s.Add(10, 3, 1, 2)
	s.Add(10, 3, 2, 4)
	s.Add(10, 3, 1, 5)

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	bucket := s.PopThrough(10)
	want := []PlanetDelta{{Possession: 1, Ships: 7}, {Possession: 2, Ships: 4}}
	if got := bucket.Deltas(3); !reflect.DeepEqual(got, want) {
		t.Errorf("Deltas() = %+v, want %+v", got, want)
	}
}

func TestModBuckets_PopThroughOrder(t *testing.T) {
	s := NewModBuckets()
	for _, tick := range []Tick{40, 15, 30, 15, 5} {
		s.Add(tick, 0, 1, 1)
	}

	if next, ok := s.NextTick(); !ok || next != 5 {
		t.Errorf("NextTick() = %d, %v; want 5, true", next, ok)
	}
	if s.PopThrough(4) != nil {
		t.Error("PopThrough(4) returned a bucket due later")
	}

	var got []Tick
	for bucket := s.PopThrough(30); bucket != nil; bucket = s.PopThrough(30) {
		got = append(got, bucket.Tick)
	}
	if want := []Tick{5, 15, 30}; !reflect.DeepEqual(got, want) {
		t.Errorf("popped ticks = %v, want %v", got, want)
	}
	if s.Len() != 1 || s.Pending() != 1 {
		t.Errorf("remaining buckets=%d ships=%d, want 1 and 1", s.Len(), s.Pending())
	}
}

func TestModBucket_PlanetsAscending(t *testing.T) {
	s := NewModBuckets()
	for _, planet := range []int{7, 2, 9, 0} {
		s.Add(1, planet, 1, 1)
	}

	bucket := s.PopThrough(1)
	if got, want := bucket.Planets(), []int{0, 2, 7, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("Planets() = %v, want %v", got, want)
	}
}

func TestModBuckets_Pending(t *testing.T) {
	s := NewModBuckets()
	if s.Pending() != 0 {
		t.Errorf("Pending() on empty store = %d", s.Pending())
	}
	s.Add(3, 0, 1, 4)
	s.Add(8, 1, 2, 6)
	if s.Pending() != 10 {
		t.Errorf("Pending() = %d, want 10", s.Pending())
	}
}
