package game

import (
	"math"
	"math/rand/v2"
)

// placementRand returns the generator used to fan ships out over the
// source planet. It is reseeded for every move so that placement, and
// therefore every arrival tick, is reproducible.
func placementRand() *rand.Rand {
	return rand.New(rand.NewPCG(PlacementSeed, PlacementSeed))
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// travelTicks converts a distance to whole ticks, clamping overlap
// (negative distances) to zero.
func travelTicks(d float64) Tick {
	if d <= 0 {
		return 0
	}
	return Tick(math.Floor(d / ShipSpeed))
}

// StartPositions places each ship of the armada uniformly inside the
// source disk.
func (m *Move) StartPositions() [][2]float64 {
	rng := placementRand()
	positions := make([][2]float64, m.ArmadaSize)
	for i := range positions {
		r := m.From.Radius * math.Sqrt(rng.Float64())
		theta := 2 * math.Pi * rng.Float64()
		positions[i] = [2]float64{
			m.From.X + r*math.Cos(theta),
			m.From.Y + r*math.Sin(theta),
		}
	}
	return positions
}

// ArrivalTimes returns the tick at which each ship reaches the
// destination's surface, in the same order as StartPositions.
func (m *Move) ArrivalTimes() []Tick {
	positions := m.StartPositions()
	arrivals := make([]Tick, len(positions))
	for i, p := range positions {
		d := distance(p[0], p[1], m.To.X, m.To.Y) - m.To.Radius
		arrivals[i] = m.StartTime + travelTicks(d)
	}
	return arrivals
}

// FirstArrivalTime is the earliest tick any ship of the move could land.
func (m *Move) FirstArrivalTime() Tick {
	d := distance(m.From.X, m.From.Y, m.To.X, m.To.Y)
	return m.StartTime + travelTicks(d-m.From.Radius-m.To.Radius)
}

// EndTime is the latest tick any ship of the move could land; renderers
// can discard the move after it.
func (m *Move) EndTime() Tick {
	d := distance(m.From.X, m.From.Y, m.To.X, m.To.Y)
	return m.StartTime + travelTicks(d+m.From.Radius+m.To.Radius)
}
