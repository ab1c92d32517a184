package learning

import (
	"math"
	"time"

	"github.com/normanking/resonance/pkg/atoms"
)

// Centroid is a point in the 77-dimensional primary activation space.
type Centroid [atoms.PrimaryDims]float64

// CentroidOf flattens a profile.
func CentroidOf(p *atoms.Profile) Centroid {
	var c Centroid
	copy(c[:], p.Flat())
	return c
}

// FamilyCluster groups turns with a similar activation signature.
type FamilyCluster struct {
	ID          string       `json:"id"`
	Centroid    Centroid     `json:"centroid"`
	MemberCount int          `json:"member_count"`
	Stats       ClusterStats `json:"stats"`
}

// ClusterStats aggregates the outcomes of a cluster's members.
type ClusterStats struct {
	MeanEnergy       float64            `json:"mean_energy"`
	MeanConfidence   float64            `json:"mean_confidence"`
	Strategies       map[string]int     `json:"strategies"`
	TemplateAffinity map[string]float64 `json:"template_affinity"`
	OpportuneCount   int                `json:"opportune_count"`
	CreatedAt        time.Time          `json:"created_at"`
	LastSeen         time.Time          `json:"last_seen"`
}

func (c FamilyCluster) clone() FamilyCluster {
	out := c
	out.Stats.Strategies = make(map[string]int, len(c.Stats.Strategies))
	for k, v := range c.Stats.Strategies {
		out.Stats.Strategies[k] = v
	}
	out.Stats.TemplateAffinity = make(map[string]float64, len(c.Stats.TemplateAffinity))
	for k, v := range c.Stats.TemplateAffinity {
		out.Stats.TemplateAffinity[k] = v
	}
	return out
}

// absorb folds vec into the centroid as a running mean.
func (c *FamilyCluster) absorb(vec Centroid) {
	n := float64(c.MemberCount)
	for i := range c.Centroid {
		c.Centroid[i] = (c.Centroid[i]*n + vec[i]) / (n + 1)
	}
	c.MemberCount++
}

// Tier is one step of the similarity threshold schedule. A Below of zero
// marks the open-ended last tier.
type Tier struct {
	Below     int     `mapstructure:"below" yaml:"below"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// DefaultTiers returns the three-tier schedule.
func DefaultTiers() []Tier {
	return []Tier{
		{Below: 8, Threshold: 0.92},
		{Below: 24, Threshold: 0.85},
		{Threshold: 0.75},
	}
}

// Threshold returns the merge threshold for a registry holding count
// clusters. The schedule loosens as the registry grows.
func Threshold(count int, tiers []Tier) float64 {
	for _, t := range tiers {
		if t.Below == 0 || count < t.Below {
			return t.Threshold
		}
	}
	if len(tiers) == 0 {
		return 1
	}
	return tiers[len(tiers)-1].Threshold
}

// CosineSimilarity of two centroids; zero when either has no mass.
func CosineSimilarity(a, b Centroid) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Nearest returns the index and similarity of the closest cluster, or -1
// when there are none. Ties go to the earlier cluster.
func Nearest(clusters []FamilyCluster, vec Centroid) (int, float64) {
	best, bestSim := -1, math.Inf(-1)
	for i := range clusters {
		if sim := CosineSimilarity(clusters[i].Centroid, vec); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, bestSim
}
