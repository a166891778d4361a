package game

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

// DigestPrecision is the fixed-point scale planet values are rounded to
// before hashing.
const DigestPrecision = 1e6

// Digest fingerprints the galaxy: time, every planet's value and owner,
// and the number of recorded moves. Two executors that replay the same
// history produce the same digest. Values are quantised because
// production accumulates over whichever intervals the galaxy was stepped
// through. Quantisation does not remove every difference: a value whose
// float sums land on either side of a rounding boundary hashes
// differently, so a digest mismatch alone does not prove divergence. Use
// Matches to compare values within a tolerance.
func (g *Galaxy) Digest() string {
	h := blake3.New(32, nil)
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	write(uint64(g.Time))
	write(uint64(len(g.Planets)))
	for _, p := range g.Planets {
		write(uint64(p.Index))
		write(uint64(int64(math.Round(p.Value * DigestPrecision))))
		if p.Possession == nil {
			write(0)
		} else {
			write(uint64(*p.Possession))
		}
	}
	write(uint64(len(g.Moves)))

	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether other describes the same state as g: same time,
// owners and move count, with planet values within tolerance.
func (g *Galaxy) Matches(other *Galaxy, tolerance float64) bool {
	if other == nil || g.Time != other.Time || len(g.Planets) != len(other.Planets) || len(g.Moves) != len(other.Moves) {
		return false
	}
	for i, p := range g.Planets {
		q := other.Planets[i]
		if (p.Possession == nil) != (q.Possession == nil) {
			return false
		}
		if p.Possession != nil && *p.Possession != *q.Possession {
			return false
		}
		if math.Abs(p.Value-q.Value) > tolerance {
			return false
		}
	}
	return true
}
