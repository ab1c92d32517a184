package synthesis

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// Sampler makes reproducible weighted choices. The same seed, signature and
// turn always produce the same choice.
type Sampler struct {
	seed uint64
}

// NewSampler creates a sampler.
func NewSampler(seed uint64) *Sampler {
	return &Sampler{seed: seed}
}

// Seed returns the base seed.
func (s *Sampler) Seed() uint64 { return s.seed }

func (s *Sampler) digest(signature string, turn int) [blake2b.Size256]byte {
	buf := make([]byte, 16, 16+len(signature))
	binary.LittleEndian.PutUint64(buf[:8], s.seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(turn))
	buf = append(buf, signature...)
	return blake2b.Sum256(buf)
}

func (s *Sampler) rng(signature string, turn int) *rand.Rand {
	d := s.digest(signature, turn)
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(d[:8]),
		binary.LittleEndian.Uint64(d[8:16]),
	))
}

// Derive returns a stable 64-bit value for the signature and turn.
func (s *Sampler) Derive(signature string, turn int) uint64 {
	d := s.digest(signature, turn)
	return binary.LittleEndian.Uint64(d[16:24])
}

// Pick returns an index into weights chosen with probability proportional to
// its weight. Non-positive weights are never chosen unless all are; then the
// first index is returned. It returns -1 for an empty slice.
func (s *Sampler) Pick(signature string, turn int, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if !(total > 0) {
		return 0
	}

	target := s.rng(signature, turn).Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if target < w {
			return i
		}
		target -= w
	}
	return last
}
