package atoms

import "math"

// Sanitize forces every score of p into [0,1]. Non-finite values become zero
// and are recorded; finite values outside the range are clamped and counted.
func Sanitize(p Profile) Profile {
	for g := range p.Primary {
		for f, v := range p.Primary[g] {
			switch {
			case math.IsNaN(v) || math.IsInf(v, 0):
				p.Primary[g][f] = 0
				p.Diag.Sanitized = append(p.Diag.Sanitized, Dimension{Group: GroupID(g), Facet: Facet(f)})
			case v < 0 || v > 1:
				p.Primary[g][f] = clamp01(v)
				p.Diag.Clamped++
			}
		}
	}

	for c, v := range p.Composite {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			p.Composite[c] = 0
			p.Diag.Sanitized = append(p.Diag.Sanitized, Dimension{Composite: true, ID: CompositeID(c)})
		case v < 0 || v > 1:
			p.Composite[c] = clamp01(v)
			p.Diag.Clamped++
		}
	}
	return p
}

// Valid reports whether every score of p is finite and inside [0,1].
func Valid(p *Profile) bool {
	for g := range p.Primary {
		for _, v := range p.Primary[g] {
			if !inUnit(v) {
				return false
			}
		}
	}
	for _, v := range p.Composite {
		if !inUnit(v) {
			return false
		}
	}
	return true
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
