// Package synthesis selects and renders the response candidate for a turn
// through the direct, fusion and fallback waterfall.
package synthesis

import "github.com/normanking/resonance/pkg/safety"

// Strategy is the waterfall branch that produced a candidate.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyFusion   Strategy = "fusion"
	StrategyFallback Strategy = "fallback"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyDirect, StrategyFusion, StrategyFallback:
		return true
	}
	return false
}

// Candidate is the emission candidate of a turn.
type Candidate struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Strategy   Strategy          `json:"strategy"`
	Zone       safety.Zone       `json:"zone"`
	Behaviors  []safety.Behavior `json:"behaviors"`
	Overridden bool              `json:"overridden"`
	TemplateID string            `json:"template_id,omitempty"`
	Features   []string          `json:"features,omitempty"`

	// GenerationFailed is set when direct or fusion generation failed and the
	// candidate came from the fallback branch instead.
	GenerationFailed bool `json:"generation_failed,omitempty"`
}

func (c Candidate) proposal() safety.Proposal {
	return safety.Proposal{
		Text:       c.Text,
		Behaviors:  c.Behaviors,
		Confidence: c.Confidence,
		TemplateID: c.TemplateID,
	}
}

func (c Candidate) withProposal(p safety.Proposal) Candidate {
	c.Text = p.Text
	c.Behaviors = p.Behaviors
	c.Confidence = p.Confidence
	c.TemplateID = p.TemplateID
	return c
}
