package opt

import (
	"math/rand/v2"
	"time"
)

// Source is the random stream one ant draws its roulette values from.
// Float64 must return values in [0, 1).
type Source interface {
	Float64() float64
}

// SourceFactory returns the stream for a given (iteration, ant). Each call
// must return an independent Source; ants may run on separate goroutines.
type SourceFactory func(iteration, ant int) Source

// SeededSources derives one PCG stream per (iteration, ant) from seed, so a
// run is reproducible regardless of how ants are scheduled across workers.
func SeededSources(seed int64) SourceFactory {
	base := uint64(seed)
	return func(iteration, ant int) Source {
		stream := uint64(uint32(iteration))<<32 | uint64(uint32(ant))
		return rand.New(rand.NewPCG(mix64(base, stream), mix64(stream, base)))
	}
}

// FixedSource replays vals cyclically. Useful for pinning roulette outcomes.
type FixedSource struct {
	vals []float64
	pos  int
}

// NewFixedSource returns a Source cycling over vals (or always 0 when empty).
func NewFixedSource(vals ...float64) *FixedSource { return &FixedSource{vals: vals} }

func (f *FixedSource) Float64() float64 {
	if len(f.vals) == 0 {
		return 0
	}
	v := f.vals[f.pos%len(f.vals)]
	f.pos++
	return v
}

// newSeed picks a run seed when the caller did not supply one.
func newSeed() int64 {
	s := time.Now().UnixNano()
	if s == 0 {
		s = 1
	}
	return s
}

// mix64 is a SplitMix64 finalizer over a ^ b.
func mix64(a, b uint64) uint64 {
	x := a ^ (b + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
