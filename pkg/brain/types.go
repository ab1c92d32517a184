// Package brain runs one conversation session: each turn flows through
// activation, convergence, nexus composition, safety classification, strategy
// selection and associative learning.
package brain

import (
	"errors"
	"fmt"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/convergence"
	"github.com/normanking/resonance/pkg/learning"
	"github.com/normanking/resonance/pkg/nexus"
	"github.com/normanking/resonance/pkg/safety"
	"github.com/normanking/resonance/pkg/synthesis"
)

// Input is one turn of user text.
type Input struct {
	Text string `json:"text"`

	// Prior is the context record of the previous turn, if any. Its zone
	// limits how far the safety zone may relax this turn.
	Prior *TurnContext `json:"prior,omitempty"`

	// Quality is an optional reward in [0,1] learned with this turn. When nil
	// the candidate confidence stands in.
	Quality *float64 `json:"quality,omitempty"`
}

// TurnContext is the compact record carried from one turn to the next.
type TurnContext struct {
	TurnID   string             `json:"turn_id"`
	Zone     safety.Zone        `json:"zone"`
	Strategy synthesis.Strategy `json:"strategy"`
	Energy   float64            `json:"energy"`
}

// Output is the result of a turn.
type Output struct {
	TurnID            string              `json:"turn_id"`
	Candidate         synthesis.Candidate `json:"candidate"`
	NexusCount        int                 `json:"nexus_count"`
	ConvergenceCycles int                 `json:"convergence_cycles"`
	Energy            float64             `json:"energy"`
	Converged         bool                `json:"converged"`
	Opportune         bool                `json:"opportune"`
	Zone              safety.Zone         `json:"zone"`
	CrisisOverride    bool                `json:"crisis_override"`
	ZoneHeld          bool                `json:"zone_held"`
	Degraded          bool                `json:"degraded"`
	ClusterID         string              `json:"cluster_id,omitempty"`
	ClusterCreated    bool                `json:"cluster_created"`
}

// Context returns the record to pass as the next turn's Prior.
func (o *Output) Context() *TurnContext {
	return &TurnContext{
		TurnID:   o.TurnID,
		Zone:     o.Zone,
		Strategy: o.Candidate.Strategy,
		Energy:   o.Energy,
	}
}

// Config aggregates the configuration of every stage.
type Config struct {
	Atoms       atoms.Config       `mapstructure:"atoms" yaml:"atoms"`
	Convergence convergence.Config `mapstructure:"convergence" yaml:"convergence"`
	Nexus       nexus.Config       `mapstructure:"nexus" yaml:"nexus"`
	Safety      safety.Config      `mapstructure:"safety" yaml:"safety"`
	Synthesis   synthesis.Config   `mapstructure:"synthesis" yaml:"synthesis"`
	Learning    learning.Config    `mapstructure:"learning" yaml:"learning"`

	// HistorySize bounds the in-memory outcome log.
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Atoms:       atoms.DefaultConfig(),
		Convergence: convergence.DefaultConfig(),
		Nexus:       nexus.DefaultConfig(),
		Safety:      safety.DefaultConfig(),
		Synthesis:   synthesis.DefaultConfig(),
		Learning:    learning.DefaultConfig(),
		HistorySize: 1000,
	}
}

// Validate checks every stage configuration.
func (c Config) Validate() error {
	if err := c.atomsErr(); err != nil {
		return err
	}
	if err := c.Convergence.Validate(); err != nil {
		return fmt.Errorf("convergence: %w", err)
	}
	if err := c.nexusErr(); err != nil {
		return err
	}
	if err := c.Safety.Validate(); err != nil {
		return fmt.Errorf("safety: %w", err)
	}
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	if err := c.Learning.Validate(); err != nil {
		return fmt.Errorf("learning: %w", err)
	}
	return nil
}

func (c Config) atomsErr() error {
	if c.Atoms.DegradedRatio <= 0 || c.Atoms.DegradedRatio > 1 {
		return fmt.Errorf("atoms: degraded_ratio %v out of (0,1]", c.Atoms.DegradedRatio)
	}
	return nil
}

func (c Config) nexusErr() error {
	if c.Nexus.Threshold < 0 || c.Nexus.Threshold >= 1 || c.Nexus.MaxNexuses < 1 {
		return errors.New("nexus: threshold must be in [0,1) and max_nexuses positive")
	}
	return nil
}
