// Package learning maintains the long-lived associative memory: the group
// coupling matrix and the registry of activation-family clusters.
package learning

import (
	"math"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/nexus"
)

// Matrix is the symmetric group-pair coupling matrix. Values lie in [0,1]
// and the diagonal is fixed at 1.
type Matrix [atoms.NumGroups][atoms.NumGroups]float64

// IdentityMatrix returns the initial matrix.
func IdentityMatrix() Matrix {
	var m Matrix
	for i := range m {
		m[i][i] = 1
	}
	return m
}

// Update moves every engaged pair towards coherence(i) * coherence(j) *
// quality by exponential moving average. Pairs that both sit in the top
// nexus get the full target, other pairs half of it.
func (m *Matrix) Update(p *atoms.Profile, nexuses []nexus.Nexus, quality, alpha float64) {
	if !(alpha > 0) {
		return
	}
	alpha = math.Min(alpha, 1)
	quality = clamp01(quality)

	coh := p.Coherences()
	var top nexus.Nexus
	if len(nexuses) > 0 {
		top = nexuses[0]
	}

	for i := 0; i < atoms.NumGroups; i++ {
		for j := i + 1; j < atoms.NumGroups; j++ {
			if coh[i] == 0 && coh[j] == 0 {
				continue
			}
			boost := 0.5
			if top.Has(atoms.GroupID(i)) && top.Has(atoms.GroupID(j)) {
				boost = 1
			}
			target := coh[i] * coh[j] * quality * boost
			v := clamp01((1-alpha)*m[i][j] + alpha*target)
			m[i][j] = v
			m[j][i] = v
		}
	}
}

// Coupling returns the learned coupling between two groups.
func (m *Matrix) Coupling(a, b atoms.GroupID) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	return m[a][b]
}

// MeanCoupling averages the coupling over every distinct pair in groups.
// Fewer than two groups yield zero.
func (m *Matrix) MeanCoupling(groups []atoms.GroupID) float64 {
	total, pairs := 0.0, 0
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			if groups[i] == groups[j] {
				continue
			}
			total += m.Coupling(groups[i], groups[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

// Symmetric reports whether m equals its transpose.
func (m *Matrix) Symmetric() bool {
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			if m[i][j] != m[j][i] {
				return false
			}
		}
	}
	return true
}

// Valid reports whether m is symmetric, finite, in range and has a unit
// diagonal.
func (m *Matrix) Valid() bool {
	for i := range m {
		if m[i][i] != 1 {
			return false
		}
		for j := range m[i] {
			v := m[i][j]
			if math.IsNaN(v) || v < 0 || v > 1 {
				return false
			}
		}
	}
	return m.Symmetric()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
