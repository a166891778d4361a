package game

import (
	"container/heap"
	"sort"
)

// PlanetDelta is an attacker's pending contribution to a planet.
type PlanetDelta struct {
	Possession int `json:"possession"`
	Ships      int `json:"ships"`
}

// ModBucket holds every arrival due at one tick.
type ModBucket struct {
	Tick   Tick
	deltas map[int][]PlanetDelta
}

func newModBucket(tick Tick) *ModBucket {
	return &ModBucket{Tick: tick, deltas: make(map[int][]PlanetDelta)}
}

func (b *ModBucket) add(planet, possession, ships int) {
	deltas := b.deltas[planet]
	for i := range deltas {
		if deltas[i].Possession == possession {
			deltas[i].Ships += ships
			return
		}
	}
	b.deltas[planet] = append(deltas, PlanetDelta{Possession: possession, Ships: ships})
}

// Planets returns the planets touched by the bucket in ascending index
// order, which is also the order they are resolved in.
func (b *ModBucket) Planets() []int {
	planets := make([]int, 0, len(b.deltas))
	for planet := range b.deltas {
		planets = append(planets, planet)
	}
	sort.Ints(planets)
	return planets
}

// Deltas returns the deltas for one planet in first-arrival order.
func (b *ModBucket) Deltas(planet int) []PlanetDelta {
	return b.deltas[planet]
}

func (b *ModBucket) ships() int {
	total := 0
	for _, deltas := range b.deltas {
		for _, d := range deltas {
			total += d.Ships
		}
	}
	return total
}

// ModBuckets is the pending arrival store, keyed by absolute tick.
type ModBuckets struct {
	buckets map[Tick]*ModBucket
	ticks   tickHeap
}

func NewModBuckets() *ModBuckets {
	return &ModBuckets{buckets: make(map[Tick]*ModBucket)}
}

// Add schedules ships for a planet at a tick, merging with an existing
// delta for the same attacker.
func (s *ModBuckets) Add(tick Tick, planet, possession, ships int) {
	bucket, ok := s.buckets[tick]
	if !ok {
		bucket = newModBucket(tick)
		s.buckets[tick] = bucket
		heap.Push(&s.ticks, tick)
	}
	bucket.add(planet, possession, ships)
}

// PopThrough removes and returns the earliest bucket due at or before
// tick, or nil.
func (s *ModBuckets) PopThrough(tick Tick) *ModBucket {
	if len(s.ticks) == 0 || s.ticks[0] > tick {
		return nil
	}
	next := heap.Pop(&s.ticks).(Tick)
	bucket := s.buckets[next]
	delete(s.buckets, next)
	return bucket
}

// NextTick reports the earliest pending tick.
func (s *ModBuckets) NextTick() (Tick, bool) {
	if len(s.ticks) == 0 {
		return 0, false
	}
	return s.ticks[0], true
}

func (s *ModBuckets) Len() int {
	return len(s.buckets)
}

// Pending is the number of ships still in flight.
func (s *ModBuckets) Pending() int {
	total := 0
	for _, b := range s.buckets {
		total += b.ships()
	}
	return total
}

type tickHeap []Tick

func (h tickHeap) Len() int           { return len(h) }
func (h tickHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h tickHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *tickHeap) Push(x any) {
	*h = append(*h, x.(Tick))
}

func (h *tickHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
