package state

import "regent/internal/sim/fixed"

// xorshift64. The generator state lives in the snapshot so that every peer
// draws the same sequence and a replay resumes mid-stream exactly.

func (s *WorldState) nextRand() uint64 {
	x := s.RNGState
	if x == 0 {
		x = 1
	}
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.RNGState = x
	return x
}

// RandUint64 draws the next raw value.
func (s *WorldState) RandUint64() uint64 { return s.nextRand() }

// RandFixed draws a fixed-point value in [0, 1). Uses the upper bits for
// distribution, then reduces modulo the scale.
func (s *WorldState) RandFixed() fixed.Value {
	x := s.nextRand()
	return fixed.FromRaw(int64((x >> 32) % fixed.Scale))
}

// RandRange draws an integer in [0, n). n must be positive.
func (s *WorldState) RandRange(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return int64(s.nextRand() % uint64(n))
}
