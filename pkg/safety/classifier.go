package safety

import (
	"errors"
	"fmt"
	"math"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/rs/zerolog/log"
)

// RegulationState is the coarse arousal reading of a turn.
type RegulationState int

const (
	Regulated RegulationState = iota
	Activated
	Dysregulated
)

// String returns the state name.
func (r RegulationState) String() string {
	switch r {
	case Regulated:
		return "regulated"
	case Activated:
		return "activated"
	case Dysregulated:
		return "dysregulated"
	default:
		return "unknown"
	}
}

// Signals are the classifier inputs.
type Signals struct {
	RelationalDistance float64         `json:"relational_distance"`
	Regulation         RegulationState `json:"regulation"`
	Urgency            float64         `json:"urgency"`
}

// Classification is the zone decision for a turn.
type Classification struct {
	Zone           Zone    `json:"zone"`
	Signals        Signals `json:"signals"`
	CrisisOverride bool    `json:"crisis_override"`
	// Held is set when de-escalation was limited by the prior zone.
	Held bool `json:"held"`
}

// Config holds the classifier thresholds.
type Config struct {
	// CrisisThreshold forces the presence zone when urgency reaches it.
	CrisisThreshold float64 `mapstructure:"crisis_threshold" yaml:"crisis_threshold"`

	NearDistance      float64 `mapstructure:"near_distance" yaml:"near_distance"`
	FarDistance       float64 `mapstructure:"far_distance" yaml:"far_distance"`
	DysregulatedSplit float64 `mapstructure:"dysregulated_split" yaml:"dysregulated_split"`

	ArousalHigh       float64 `mapstructure:"arousal_high" yaml:"arousal_high"`
	ArousalLow        float64 `mapstructure:"arousal_low" yaml:"arousal_low"`
	DistressActivated float64 `mapstructure:"distress_activated" yaml:"distress_activated"`
	SteadyRelief      float64 `mapstructure:"steady_relief" yaml:"steady_relief"`

	// MaxStepDown limits how many zones a turn may drop below the prior one.
	MaxStepDown int `mapstructure:"max_step_down" yaml:"max_step_down"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		CrisisThreshold:   0.75,
		NearDistance:      0.33,
		FarDistance:       0.66,
		DysregulatedSplit: 0.5,
		ArousalHigh:       0.6,
		ArousalLow:        0.3,
		DistressActivated: 0.5,
		SteadyRelief:      0.5,
		MaxStepDown:       1,
	}
}

// Validate checks threshold ordering.
func (c Config) Validate() error {
	switch {
	case c.CrisisThreshold <= 0 || c.CrisisThreshold > 1:
		return fmt.Errorf("crisis_threshold %v out of (0,1]", c.CrisisThreshold)
	case c.NearDistance <= 0 || c.NearDistance >= c.FarDistance || c.FarDistance > 1:
		return errors.New("distance bands must satisfy 0 < near < far <= 1")
	case c.ArousalLow <= 0 || c.ArousalLow >= c.ArousalHigh || c.ArousalHigh > 1:
		return errors.New("arousal bands must satisfy 0 < low < high <= 1")
	case c.DysregulatedSplit <= 0 || c.DysregulatedSplit > 1:
		return fmt.Errorf("dysregulated_split %v out of (0,1]", c.DysregulatedSplit)
	case c.MaxStepDown < 0 || c.MaxStepDown > int(ZonePresence-ZoneOpen):
		return fmt.Errorf("max_step_down %d out of [0,4]", c.MaxStepDown)
	}
	return nil
}

// DeriveSignals reads the classifier inputs off a profile. Distance comes
// from the relational group and the isolation composite; regulation from the
// overwhelm facets, the spiral composite and felt safety; urgency is the
// urgency composite.
func DeriveSignals(p *atoms.Profile, cfg Config) Signals {
	distance := 0.6*p.Composite[atoms.CompositeIsolation] +
		0.4*(1-p.Activation(atoms.GroupRelational, atoms.FacetConnection))

	arousal := math.Max(
		p.Activation(atoms.GroupRegulation, atoms.FacetOverwhelm),
		math.Max(p.Activation(atoms.GroupSomatic, atoms.FacetOverwhelm), p.Composite[atoms.CompositeSpiral]),
	)
	steadiness := p.Composite[atoms.CompositeSafety]

	state := Regulated
	switch {
	case arousal >= cfg.ArousalHigh && steadiness < cfg.SteadyRelief:
		state = Dysregulated
	case arousal >= cfg.ArousalLow || p.Activation(atoms.GroupAffect, atoms.FacetDistress) >= cfg.DistressActivated:
		state = Activated
	}

	return Signals{
		RelationalDistance: clamp01(distance),
		Regulation:         state,
		Urgency:            clamp01(p.Composite[atoms.CompositeUrgency]),
	}
}

// Classifier maps signals onto zones.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier. An invalid config falls back to the
// defaults.
func NewClassifier(cfg Config) *Classifier {
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid safety config, using defaults")
		cfg = DefaultConfig()
	}
	return &Classifier{cfg: cfg}
}

// Config returns the classifier thresholds.
func (c *Classifier) Config() Config { return c.cfg }

// Classify applies the crisis override, then the ordinal table.
func (c *Classifier) Classify(s Signals) Classification {
	if s.Urgency >= c.cfg.CrisisThreshold {
		log.Warn().Float64("urgency", s.Urgency).Msg("crisis override")
		return Classification{Zone: ZonePresence, Signals: s, CrisisOverride: true}
	}
	return Classification{Zone: c.table(s), Signals: s}
}

// ClassifyWithPrior classifies s but limits de-escalation relative to prior.
// Escalation is never limited. A prior outside 1..5 is ignored.
func (c *Classifier) ClassifyWithPrior(s Signals, prior Zone) Classification {
	cl := c.Classify(s)
	if !prior.Valid() || cl.CrisisOverride {
		return cl
	}
	if floor := prior - Zone(c.cfg.MaxStepDown); cl.Zone < floor {
		cl.Zone = floor
		cl.Held = true
	}
	return cl
}

func (c *Classifier) table(s Signals) Zone {
	d := s.RelationalDistance
	switch s.Regulation {
	case Dysregulated:
		if d < c.cfg.DysregulatedSplit {
			return ZoneGrounding
		}
		return ZonePresence
	case Activated:
		switch {
		case d < c.cfg.NearDistance:
			return ZoneReflective
		case d < c.cfg.FarDistance:
			return ZonePattern
		default:
			return ZoneGrounding
		}
	default:
		switch {
		case d < c.cfg.NearDistance:
			return ZoneOpen
		case d < c.cfg.FarDistance:
			return ZoneReflective
		default:
			return ZonePattern
		}
	}
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
