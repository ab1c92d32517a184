// Package convergence iterates a scalar energy metric over an activation
// profile until it stabilizes, and watches for the rare opportune moment.
package convergence

import (
	"fmt"
	"math"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/rs/zerolog/log"
)

// Weights are the coefficients of the five energy terms. They must sum to 1.
type Weights struct {
	Unsatisfied  float64 `mapstructure:"unsatisfied" yaml:"unsatisfied"`
	Delta        float64 `mapstructure:"delta" yaml:"delta"`
	Disagreement float64 `mapstructure:"disagreement" yaml:"disagreement"`
	LowResonance float64 `mapstructure:"low_resonance" yaml:"low_resonance"`
	Intensity    float64 `mapstructure:"intensity" yaml:"intensity"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Unsatisfied + w.Delta + w.Disagreement + w.LowResonance + w.Intensity
}

// MomentConfig bounds the opportune-moment signal.
type MomentConfig struct {
	EnergyLow      float64 `mapstructure:"energy_low" yaml:"energy_low"`
	EnergyHigh     float64 `mapstructure:"energy_high" yaml:"energy_high"`
	MaxDelta       float64 `mapstructure:"max_delta" yaml:"max_delta"`
	CoherenceFloor float64 `mapstructure:"coherence_floor" yaml:"coherence_floor"`
}

// Config holds the convergence constants.
type Config struct {
	Weights Weights `mapstructure:"weights" yaml:"weights"`

	// MaxCycles bounds the loop. Default: 5
	MaxCycles int `mapstructure:"max_cycles" yaml:"max_cycles"`

	// ConvergeDelta is the per-cycle energy drop below which the loop stops.
	ConvergeDelta float64 `mapstructure:"converge_delta" yaml:"converge_delta"`

	// SatisfactionRate is how far each group's satisfaction moves toward its
	// coherence per cycle.
	SatisfactionRate float64 `mapstructure:"satisfaction_rate" yaml:"satisfaction_rate"`

	// IntensityDamping multiplies the intensity term once per cycle.
	IntensityDamping float64 `mapstructure:"intensity_damping" yaml:"intensity_damping"`

	// EngagementFloor is the coherence a group needs to take part.
	EngagementFloor float64 `mapstructure:"engagement_floor" yaml:"engagement_floor"`

	Moment MomentConfig `mapstructure:"moment" yaml:"moment"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Unsatisfied:  0.35,
			Delta:        0.05,
			Disagreement: 0.15,
			LowResonance: 0.30,
			Intensity:    0.15,
		},
		MaxCycles:        5,
		ConvergeDelta:    0.01,
		SatisfactionRate: 0.6,
		IntensityDamping: 0.5,
		EngagementFloor:  0.2,
		Moment: MomentConfig{
			EnergyLow:      0.25,
			EnergyHigh:     0.35,
			MaxDelta:       0.04,
			CoherenceFloor: 0.55,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if math.Abs(c.Weights.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("energy weights sum to %.4f, want 1.0", c.Weights.Sum())
	}
	if c.MaxCycles < 1 {
		return fmt.Errorf("max_cycles must be at least 1")
	}
	if c.SatisfactionRate <= 0 || c.SatisfactionRate > 1 {
		return fmt.Errorf("satisfaction_rate must be in (0,1]")
	}
	if c.Moment.EnergyLow > c.Moment.EnergyHigh {
		return fmt.Errorf("moment window is inverted")
	}
	return nil
}

// State is the per-turn convergence state.
type State struct {
	Energy       float64   `json:"energy"`
	Satisfaction float64   `json:"satisfaction"`
	Cycle        int       `json:"cycle"`
	History      []float64 `json:"history"`
	LastDelta    float64   `json:"last_delta"`

	groupSat [atoms.NumGroups]float64
}

// NewState returns the unsatisfied starting state.
func NewState() State {
	return State{Energy: 1.0, History: []float64{1.0}}
}

// StopReason explains why the loop ended.
type StopReason string

const (
	StopStable     StopReason = "stable"
	StopCycleLimit StopReason = "cycle_limit"
)

// Result is the outcome of a full convergence run. Converged is true when
// the energy stabilized before the cycle bound.
type Result struct {
	State          State      `json:"state"`
	Converged      bool       `json:"converged"`
	Reason         StopReason `json:"reason"`
	Opportune      bool       `json:"opportune"`
	OpportuneCycle int        `json:"opportune_cycle,omitempty"`
	MeanCoherence  float64    `json:"mean_coherence"`
}

// Engine runs the convergence loop.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine. An invalid configuration falls back to the
// defaults.
func NewEngine(cfg Config) *Engine {
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid convergence config, using defaults")
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// coherenceStats summarizes the engaged groups of a profile.
type coherenceStats struct {
	engaged  []atoms.GroupID
	coh      [atoms.NumGroups]float64
	mean     float64
	variance float64
	max      float64
}

func (e *Engine) coherence(p *atoms.Profile) coherenceStats {
	s := coherenceStats{coh: p.Coherences()}
	for g, c := range s.coh {
		if c >= e.cfg.EngagementFloor {
			s.engaged = append(s.engaged, atoms.GroupID(g))
		}
	}
	if len(s.engaged) == 0 {
		return s
	}
	for _, g := range s.engaged {
		c := s.coh[g]
		s.mean += c
		if c > s.max {
			s.max = c
		}
	}
	s.mean /= float64(len(s.engaged))
	for _, g := range s.engaged {
		d := s.coh[g] - s.mean
		s.variance += d * d
	}
	s.variance /= float64(len(s.engaged))
	return s
}

// Step runs one cycle from prev and reports whether the loop should stop.
func (e *Engine) Step(p *atoms.Profile, prev State) (State, bool) {
	stats := e.coherence(p)
	next := prev
	next.History = append([]float64(nil), prev.History...)
	next.Cycle = prev.Cycle + 1

	meanSat := 0.0
	for _, g := range stats.engaged {
		target := stats.coh[g]
		sat := prev.groupSat[g]
		if target > sat {
			sat += e.cfg.SatisfactionRate * (target - sat)
		}
		next.groupSat[g] = sat
		meanSat += sat
	}
	if len(stats.engaged) > 0 {
		meanSat /= float64(len(stats.engaged))
	}
	next.Satisfaction = math.Max(prev.Satisfaction, meanSat)

	w := e.cfg.Weights
	candidate := w.Unsatisfied*(1-next.Satisfaction) +
		w.Delta*prev.LastDelta +
		w.Disagreement*math.Min(1, 4*stats.variance) +
		w.LowResonance*(1-stats.mean) +
		w.Intensity*stats.max*math.Pow(e.cfg.IntensityDamping, float64(next.Cycle))
	candidate = clamp01(candidate)

	next.Energy = math.Min(prev.Energy, candidate)
	next.LastDelta = prev.Energy - next.Energy
	next.History = append(next.History, next.Energy)

	stop := next.LastDelta < e.cfg.ConvergeDelta || next.Cycle >= e.cfg.MaxCycles
	return next, stop
}

// Run converges p from a fresh state. It always terminates within MaxCycles.
func (e *Engine) Run(p *atoms.Profile) Result {
	stats := e.coherence(p)
	state := NewState()
	res := Result{MeanCoherence: stats.mean}

	for {
		next, stop := e.Step(p, state)
		if !res.Opportune && e.Moment(state, next, stats.mean).Fires() {
			res.Opportune = true
			res.OpportuneCycle = next.Cycle
			log.Debug().
				Int("cycle", next.Cycle).
				Float64("energy", next.Energy).
				Msg("opportune moment")
		}
		state = next
		if stop {
			break
		}
	}

	res.State = state
	res.Reason = StopStable
	if state.LastDelta >= e.cfg.ConvergeDelta {
		res.Reason = StopCycleLimit
	}
	res.Converged = res.Reason == StopStable

	log.Debug().
		Int("cycles", state.Cycle).
		Float64("energy", state.Energy).
		Float64("satisfaction", state.Satisfaction).
		Str("reason", string(res.Reason)).
		Msg("convergence finished")
	return res
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
