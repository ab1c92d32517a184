// Package nexus finds coalitions of groups that co-activate a shared feature.
package nexus

import (
	"math"
	"sort"
	"strings"

	"github.com/normanking/resonance/pkg/atoms"
)

// Nexus is a coalition of at least two groups on one shared feature.
type Nexus struct {
	Groups      []atoms.GroupID  `json:"groups"`
	Feature     atoms.FeatureRef `json:"feature"`
	Strength    float64          `json:"strength"`
	Activations []float64        `json:"activations"`
}

// Size is the number of groups in the coalition.
func (n Nexus) Size() int { return len(n.Groups) }

// Has reports whether g is part of the coalition.
func (n Nexus) Has(g atoms.GroupID) bool {
	for _, m := range n.Groups {
		if m == g {
			return true
		}
	}
	return false
}

// String renders the nexus as feature[group+group].
func (n Nexus) String() string {
	names := make([]string, len(n.Groups))
	for i, g := range n.Groups {
		names[i] = g.String()
	}
	return n.Feature.Key() + "[" + strings.Join(names, "+") + "]"
}

// Config tunes the composer.
type Config struct {
	// Threshold is the activation a group needs on a feature to join.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	// MaxNexuses caps the ranked list.
	MaxNexuses int `mapstructure:"max_nexuses" yaml:"max_nexuses"`
}

// DefaultConfig returns the default composer configuration.
func DefaultConfig() Config {
	return Config{Threshold: 0.05, MaxNexuses: 8}
}

// Composer builds ranked nexus lists.
type Composer struct {
	cfg Config
}

// NewComposer creates a composer.
func NewComposer(cfg Config) *Composer {
	if cfg.MaxNexuses <= 0 {
		cfg.MaxNexuses = DefaultConfig().MaxNexuses
	}
	if cfg.Threshold < 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &Composer{cfg: cfg}
}

// Compose returns every coalition of p, strongest first. An empty result is
// valid.
func (c *Composer) Compose(p *atoms.Profile) []Nexus {
	var out []Nexus

	for f := 0; f < atoms.NumFacets; f++ {
		var groups []atoms.GroupID
		var acts []float64
		for g := 0; g < atoms.NumGroups; g++ {
			if v := p.Primary[g][f]; v > c.cfg.Threshold {
				groups = append(groups, atoms.GroupID(g))
				acts = append(acts, v)
			}
		}
		if n, ok := build(atoms.FacetRef(atoms.Facet(f)), groups, acts); ok {
			out = append(out, n)
		}
	}

	for id := 0; id < atoms.NumComposites; id++ {
		comp := atoms.CompositeID(id)
		var groups []atoms.GroupID
		var acts []float64
		for _, g := range atoms.CompositeGroups(comp) {
			if v := atoms.CompositeContribution(p, comp, g); v > c.cfg.Threshold {
				groups = append(groups, g)
				acts = append(acts, v)
			}
		}
		if n, ok := build(atoms.CompositeRef(comp), groups, acts); ok {
			out = append(out, n)
		}
	}

	Rank(out)
	if len(out) > c.cfg.MaxNexuses {
		out = out[:c.cfg.MaxNexuses]
	}
	return out
}

func build(feature atoms.FeatureRef, groups []atoms.GroupID, acts []float64) (Nexus, bool) {
	if len(groups) < 2 {
		return Nexus{}, false
	}
	return Nexus{
		Groups:      groups,
		Feature:     feature,
		Strength:    Strength(acts),
		Activations: acts,
	}, true
}

// Strength is the mean member activation scaled by agreement, where agreement
// is one minus the population standard deviation of the activations.
func Strength(acts []float64) float64 {
	if len(acts) == 0 {
		return 0
	}
	mean := 0.0
	for _, a := range acts {
		mean += a
	}
	mean /= float64(len(acts))

	variance := 0.0
	for _, a := range acts {
		d := a - mean
		variance += d * d
	}
	variance /= float64(len(acts))
	agreement := 1 - math.Sqrt(variance)

	return clamp01(mean * clamp01(agreement))
}

// Rank sorts nexuses by strength, then coalition size, then feature key.
func Rank(list []Nexus) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if len(a.Groups) != len(b.Groups) {
			return len(a.Groups) > len(b.Groups)
		}
		return a.Feature.Key() < b.Feature.Key()
	})
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
