package learning

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/convergence"
	"github.com/normanking/resonance/pkg/nexus"
	"github.com/normanking/resonance/pkg/synthesis"
	"github.com/rs/zerolog/log"
)

// Config holds the learning rates and cluster rules.
type Config struct {
	Alpha           float64 `mapstructure:"alpha" yaml:"alpha"`
	AffinityRate    float64 `mapstructure:"affinity_rate" yaml:"affinity_rate"`
	Tiers           []Tier  `mapstructure:"tiers" yaml:"tiers"`
	MaxClusters     int     `mapstructure:"max_clusters" yaml:"max_clusters"`
	MinCycles       int     `mapstructure:"min_cycles" yaml:"min_cycles"`
	MinMass         float64 `mapstructure:"min_mass" yaml:"min_mass"`
	OverridePenalty float64 `mapstructure:"override_penalty" yaml:"override_penalty"`
}

// DefaultConfig returns the default learning configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:           0.1,
		AffinityRate:    0.2,
		Tiers:           DefaultTiers(),
		MaxClusters:     64,
		MinCycles:       2,
		MinMass:         0.5,
		OverridePenalty: 0.5,
	}
}

// Validate checks rates and the tier schedule.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha %v out of (0,1]", c.Alpha)
	}
	if c.AffinityRate <= 0 || c.AffinityRate > 1 {
		return fmt.Errorf("affinity_rate %v out of (0,1]", c.AffinityRate)
	}
	if c.MaxClusters < 1 {
		return errors.New("max_clusters must be positive")
	}
	if c.OverridePenalty < 0 || c.OverridePenalty > 1 {
		return fmt.Errorf("override_penalty %v out of [0,1]", c.OverridePenalty)
	}
	if len(c.Tiers) == 0 {
		return errors.New("at least one tier is required")
	}
	for i, t := range c.Tiers {
		if t.Threshold <= 0 || t.Threshold > 1 {
			return fmt.Errorf("tier %d threshold %v out of (0,1]", i, t.Threshold)
		}
		last := i == len(c.Tiers)-1
		if !last && t.Below <= 0 {
			return fmt.Errorf("tier %d needs a positive bound", i)
		}
		if i > 0 {
			prev := c.Tiers[i-1]
			if t.Threshold >= prev.Threshold {
				return fmt.Errorf("tier %d threshold must be below tier %d", i, i-1)
			}
			if !last && t.Below <= prev.Below {
				return fmt.Errorf("tier %d bound must exceed tier %d", i, i-1)
			}
		}
	}
	return nil
}

// Outcome is what a finished turn teaches the memory.
type Outcome struct {
	Candidate   synthesis.Candidate
	Convergence convergence.Result
	Profile     *atoms.Profile
	Nexuses     []nexus.Nexus

	// Quality is an explicit reward in [0,1]. When nil the candidate
	// confidence stands in for it.
	Quality *float64
}

// Assignment reports where a turn landed in the registry.
type Assignment struct {
	ClusterID  string  `json:"cluster_id,omitempty"`
	Created    bool    `json:"created"`
	Merged     bool    `json:"merged"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
	// Skipped names why the turn was not clustered.
	Skipped string `json:"skipped,omitempty"`
}

// Learner applies outcomes to a State.
type Learner struct {
	cfg   Config
	now   func() time.Time
	newID func() string
}

// NewLearner creates a learner. An invalid config falls back to the defaults.
func NewLearner(cfg Config) *Learner {
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid learning config, using defaults")
		cfg = DefaultConfig()
	}
	return &Learner{
		cfg:   cfg,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Config returns the learner configuration.
func (l *Learner) Config() Config { return l.cfg }

// Quality resolves the reward for an outcome. Overridden candidates are
// penalized.
func (l *Learner) Quality(o Outcome) float64 {
	q := o.Candidate.Confidence
	if o.Quality != nil {
		q = *o.Quality
	}
	if o.Candidate.Overridden {
		q *= l.cfg.OverridePenalty
	}
	return clamp01(q)
}

// Match returns the cluster a profile would merge into without changing
// anything, or nil.
func (l *Learner) Match(state *State, p *atoms.Profile) *FamilyCluster {
	if state == nil || p == nil || p.Neutral {
		return nil
	}
	idx, sim := Nearest(state.Clusters, CentroidOf(p))
	if idx < 0 || sim < Threshold(len(state.Clusters), l.cfg.Tiers) {
		return nil
	}
	return &state.Clusters[idx]
}

// Learn updates the matrix and the registry from one outcome.
func (l *Learner) Learn(state *State, o Outcome) Assignment {
	state.Turns++
	p := o.Profile
	switch {
	case p == nil:
		return Assignment{Skipped: "no profile"}
	case p.Neutral:
		return Assignment{Skipped: "neutral"}
	case p.Diag.Degraded:
		return Assignment{Skipped: "degraded"}
	}

	quality := l.Quality(o)
	state.Matrix.Update(p, o.Nexuses, quality, l.cfg.Alpha)

	vec := CentroidOf(p)
	idx, sim := Nearest(state.Clusters, vec)
	thr := Threshold(len(state.Clusters), l.cfg.Tiers)
	a := Assignment{Similarity: sim, Threshold: thr}

	switch {
	case idx >= 0 && sim >= thr:
		a.Merged = true
	case !l.mature(o):
		a.Skipped = "immature"
		return a
	case len(state.Clusters) >= l.cfg.MaxClusters && idx >= 0:
		a.Merged = true
	default:
		now := l.now()
		state.Clusters = append(state.Clusters, FamilyCluster{
			ID: l.newID(),
			Stats: ClusterStats{
				Strategies:       map[string]int{},
				TemplateAffinity: map[string]float64{},
				CreatedAt:        now,
			},
		})
		idx = len(state.Clusters) - 1
		a.Created = true
	}

	c := &state.Clusters[idx]
	l.record(c, vec, o, quality)
	a.ClusterID = c.ID

	log.Debug().
		Str("cluster", c.ID).
		Bool("created", a.Created).
		Float64("similarity", sim).
		Float64("threshold", thr).
		Int("members", c.MemberCount).
		Msg("turn clustered")
	return a
}

func (l *Learner) mature(o Outcome) bool {
	return o.Convergence.State.Cycle >= l.cfg.MinCycles && o.Profile.Mass() >= l.cfg.MinMass
}

func (l *Learner) record(c *FamilyCluster, vec Centroid, o Outcome, quality float64) {
	n := float64(c.MemberCount)
	c.absorb(vec)

	s := &c.Stats
	s.MeanEnergy = (s.MeanEnergy*n + o.Convergence.State.Energy) / (n + 1)
	s.MeanConfidence = (s.MeanConfidence*n + o.Candidate.Confidence) / (n + 1)
	if s.Strategies == nil {
		s.Strategies = map[string]int{}
	}
	s.Strategies[string(o.Candidate.Strategy)]++
	if o.Convergence.Opportune {
		s.OpportuneCount++
	}
	if id := o.Candidate.TemplateID; id != "" {
		if s.TemplateAffinity == nil {
			s.TemplateAffinity = map[string]float64{}
		}
		cur := s.TemplateAffinity[id]
		s.TemplateAffinity[id] = cur + l.cfg.AffinityRate*(quality-cur)
	}
	s.LastSeen = l.now()
}
