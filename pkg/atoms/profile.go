package atoms

import "fmt"

// Vector holds the 7 sub-feature activations of one group.
type Vector [NumFacets]float64

// Peak returns the largest activation in the vector.
func (v Vector) Peak() float64 {
	peak := 0.0
	for _, a := range v {
		if a > peak {
			peak = a
		}
	}
	return peak
}

// Sum returns the total activation mass of the vector.
func (v Vector) Sum() float64 {
	s := 0.0
	for _, a := range v {
		s += a
	}
	return s
}

// Dimension addresses a single score inside a profile.
type Dimension struct {
	Composite bool        `json:"composite"`
	Group     GroupID     `json:"group"`
	Facet     Facet       `json:"facet"`
	ID        CompositeID `json:"id"`
}

// String renders the dimension as group.facet or composite name.
func (d Dimension) String() string {
	if d.Composite {
		return "composite." + d.ID.String()
	}
	return fmt.Sprintf("%s.%s", d.Group, d.Facet)
}

// Diagnostics records what the activation layer had to repair.
type Diagnostics struct {
	// Sanitized lists dimensions whose value was non-finite and forced to zero.
	Sanitized []Dimension `json:"sanitized,omitempty"`
	// Clamped counts finite values pulled back into [0,1].
	Clamped            int  `json:"clamped"`
	SimilarityCalls    int  `json:"similarity_calls"`
	SimilarityFailures int  `json:"similarity_failures"`
	Degraded           bool `json:"degraded"`
}

// Profile is the per-turn activation profile.
type Profile struct {
	Primary   [NumGroups]Vector      `json:"primary"`
	Composite [NumComposites]float64 `json:"composite"`
	Neutral   bool                   `json:"neutral"`
	Diag      Diagnostics            `json:"diagnostics"`
}

// NeutralProfile returns the uniform 1/7 profile used for degenerate input.
func NeutralProfile() Profile {
	var p Profile
	for g := range p.Primary {
		for f := range p.Primary[g] {
			p.Primary[g][f] = 1.0 / NumFacets
		}
	}
	p.Composite = computeComposites(&p)
	p.Neutral = true
	return p
}

// Activation returns the activation of group g on facet f.
func (p *Profile) Activation(g GroupID, f Facet) float64 {
	return p.Primary[g][f]
}

// Coherence is how strongly group g resonates: its peak sub-feature.
func (p *Profile) Coherence(g GroupID) float64 {
	return p.Primary[g].Peak()
}

// Coherences returns the coherence of every group.
func (p *Profile) Coherences() [NumGroups]float64 {
	var out [NumGroups]float64
	for g := range p.Primary {
		out[g] = p.Primary[g].Peak()
	}
	return out
}

// Mass is the summed primary activation.
func (p *Profile) Mass() float64 {
	total := 0.0
	for g := range p.Primary {
		total += p.Primary[g].Sum()
	}
	return total
}

// Flat returns the 77 primary scores in group-major order.
func (p *Profile) Flat() []float64 {
	out := make([]float64, 0, PrimaryDims)
	for g := range p.Primary {
		out = append(out, p.Primary[g][:]...)
	}
	return out
}

// FromFlat rebuilds a sanitized profile from 77 primary scores and derives
// its composites.
func FromFlat(flat []float64) (Profile, error) {
	if len(flat) != PrimaryDims {
		return Profile{}, fmt.Errorf("flat profile has %d dims, want %d", len(flat), PrimaryDims)
	}
	var p Profile
	for i, v := range flat {
		p.Primary[i/NumFacets][i%NumFacets] = v
	}
	p = Sanitize(p)
	Recompute(&p)
	return p, nil
}

// TopGroups returns up to n groups ordered by coherence, strongest first.
// Groups at or below floor are skipped.
func (p *Profile) TopGroups(n int, floor float64) []GroupID {
	coh := p.Coherences()
	out := make([]GroupID, 0, n)
	used := [NumGroups]bool{}
	for len(out) < n {
		best, bestVal := -1, floor
		for g, c := range coh {
			if !used[g] && c > bestVal {
				best, bestVal = g, c
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		out = append(out, GroupID(best))
	}
	return out
}

// Dominant returns the strongest feature of the profile. Facets are scored by
// their peak across groups. A neutral profile has no dominant feature.
func (p *Profile) Dominant() (FeatureRef, float64) {
	if p.Neutral {
		return FeatureRef{}, 0
	}
	best := FeatureRef{}
	bestVal := 0.0
	for f := 0; f < NumFacets; f++ {
		for g := 0; g < NumGroups; g++ {
			if v := p.Primary[g][f]; v > bestVal {
				best, bestVal = FacetRef(Facet(f)), v
			}
		}
	}
	for c, v := range p.Composite {
		if v > bestVal {
			best, bestVal = CompositeRef(CompositeID(c)), v
		}
	}
	return best, bestVal
}

// index is the position of (g, f) inside Flat.
func (g GroupID) index(f Facet) int {
	return int(g)*NumFacets + int(f)
}
