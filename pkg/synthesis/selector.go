package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/normanking/resonance/internal/phrases"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/convergence"
	"github.com/normanking/resonance/pkg/nexus"
	"github.com/normanking/resonance/pkg/safety"
	"github.com/rs/zerolog/log"
)

// Config holds the waterfall thresholds.
type Config struct {
	DirectThreshold    float64       `mapstructure:"direct_threshold" yaml:"direct_threshold"`
	DirectMinGroups    int           `mapstructure:"direct_min_groups" yaml:"direct_min_groups"`
	FusionThreshold    float64       `mapstructure:"fusion_threshold" yaml:"fusion_threshold"`
	FusionMax          int           `mapstructure:"fusion_max" yaml:"fusion_max"`
	FusionDiscount     float64       `mapstructure:"fusion_discount" yaml:"fusion_discount"`
	FusionCap          float64       `mapstructure:"fusion_cap" yaml:"fusion_cap"`
	FallbackConfidence float64       `mapstructure:"fallback_confidence" yaml:"fallback_confidence"`
	OpportuneBonus     float64       `mapstructure:"opportune_bonus" yaml:"opportune_bonus"`
	GenerateTimeout    time.Duration `mapstructure:"generate_timeout" yaml:"generate_timeout"`
	Seed               uint64        `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		DirectThreshold:    0.65,
		DirectMinGroups:    3,
		FusionThreshold:    0.50,
		FusionMax:          3,
		FusionDiscount:     0.85,
		FusionCap:          0.64,
		FallbackConfidence: 0.30,
		OpportuneBonus:     0.05,
		GenerateTimeout:    5 * time.Second,
		Seed:               1,
	}
}

// Validate checks threshold ordering.
func (c Config) Validate() error {
	switch {
	case c.DirectThreshold <= c.FusionThreshold:
		return errors.New("direct_threshold must exceed fusion_threshold")
	case c.DirectMinGroups < 2:
		return errors.New("direct_min_groups must be at least 2")
	case c.FusionMax < 2:
		return errors.New("fusion_max must be at least 2")
	case c.FusionDiscount <= 0 || c.FusionDiscount > 1:
		return fmt.Errorf("fusion_discount %v out of (0,1]", c.FusionDiscount)
	case c.FusionCap >= c.DirectThreshold:
		return errors.New("fusion_cap must stay below direct_threshold")
	case c.FallbackConfidence < 0 || c.FallbackConfidence > c.FusionCap:
		return errors.New("fallback_confidence must be within [0, fusion_cap]")
	}
	return nil
}

// Coupler exposes learned group coupling.
type Coupler interface {
	MeanCoupling(groups []atoms.GroupID) float64
}

// Request carries everything the selector reads for one turn.
type Request struct {
	Text        string
	Profile     *atoms.Profile
	Nexuses     []nexus.Nexus
	Convergence convergence.Result
	Policy      safety.Policy

	// Coupling and Affinity come from associative memory and only shape
	// fallback weights. Both may be nil.
	Coupling Coupler
	Affinity map[string]float64

	Turn int
}

// Selector runs the strategy waterfall and validates the result.
type Selector struct {
	cfg       Config
	table     *phrases.Table
	gen       *Guarded
	validator *safety.Validator
	sampler   *Sampler
}

// NewSelector creates a selector. A nil generator renders from the phrase
// table; a nil table uses the embedded default. An invalid config falls back
// to the default thresholds.
func NewSelector(cfg Config, table *phrases.Table, gen Generator) *Selector {
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid synthesis config, using defaults")
		cfg = DefaultConfig()
	}
	if table == nil {
		table = phrases.MustDefault()
	}
	if gen == nil {
		gen = NewTemplateGenerator(table)
	}
	return &Selector{
		cfg:       cfg,
		table:     table,
		gen:       NewGuarded(gen, cfg.GenerateTimeout, DefaultFallbackText),
		validator: safety.NewValidator(table.Source()),
		sampler:   NewSampler(cfg.Seed),
	}
}

// Config returns the selector thresholds.
func (s *Selector) Config() Config { return s.cfg }

// Select picks the candidate for the turn. Direct and fusion are tried in
// order; anything they cannot deliver falls through to fallback. The result
// has always passed zone validation.
func (s *Selector) Select(ctx context.Context, req Request) Candidate {
	var (
		cand   Candidate
		ok     bool
		failed bool
	)

	degraded := req.Profile == nil || req.Profile.Diag.Degraded
	if !degraded {
		if cand, ok, failed = s.direct(ctx, req); !ok && !failed {
			cand, ok, failed = s.fusion(ctx, req)
		}
	}
	if !ok {
		cand = s.fallback(req)
		cand.GenerationFailed = failed
	}

	cand.Zone = req.Policy.Zone
	seed := s.sampler.Derive(s.signature(req), req.Turn)
	validated, overridden := s.validator.Validate(cand.proposal(), req.Policy, seed)
	if overridden {
		cand = cand.withProposal(validated)
		cand.Overridden = true
	}

	log.Debug().
		Str("strategy", string(cand.Strategy)).
		Float64("confidence", cand.Confidence).
		Int("zone", int(cand.Zone)).
		Bool("overridden", cand.Overridden).
		Bool("degraded", degraded).
		Msg("candidate selected")
	return cand
}

// direct reports ok when the branch produced a candidate and failed when it
// qualified but generation did not deliver.
func (s *Selector) direct(ctx context.Context, req Request) (Candidate, bool, bool) {
	if len(req.Nexuses) == 0 {
		return Candidate{}, false, false
	}
	top := req.Nexuses[0]
	if top.Strength < s.cfg.DirectThreshold || top.Size() < s.cfg.DirectMinGroups {
		return Candidate{}, false, false
	}

	behaviors := []safety.Behavior{safety.BehaviorPatternNaming, safety.BehaviorOpenInquiry}
	prompt := s.prompt(req, StrategyDirect, []nexus.Nexus{top}, behaviors, top.Strength)
	text, ok := s.gen.Generate(ctx, prompt)
	if !ok {
		return Candidate{}, false, true
	}

	conf := top.Strength
	if req.Convergence.Opportune {
		conf += s.cfg.OpportuneBonus
	}
	return Candidate{
		Text:       text,
		Confidence: clamp01(conf),
		Strategy:   StrategyDirect,
		Behaviors:  behaviors,
		Features:   prompt.Features,
	}, true, false
}

func (s *Selector) fusion(ctx context.Context, req Request) (Candidate, bool, bool) {
	var lead []nexus.Nexus
	for _, n := range req.Nexuses {
		if len(lead) == s.cfg.FusionMax || n.Strength < s.cfg.FusionThreshold || n.Size() < 2 {
			break
		}
		lead = append(lead, n)
	}
	if len(lead) < 2 {
		return Candidate{}, false, false
	}

	mean := 0.0
	for _, n := range lead {
		mean += n.Strength
	}
	mean /= float64(len(lead))

	behaviors := []safety.Behavior{safety.BehaviorReflectiveEmpathy, safety.BehaviorInterpretation}
	prompt := s.prompt(req, StrategyFusion, lead, behaviors, mean)
	text, ok := s.gen.Generate(ctx, prompt)
	if !ok {
		return Candidate{}, false, true
	}

	return Candidate{
		Text:       text,
		Confidence: math.Min(mean*s.cfg.FusionDiscount, s.cfg.FusionCap),
		Strategy:   StrategyFusion,
		Behaviors:  behaviors,
		Features:   prompt.Features,
	}, true, false
}

func (s *Selector) prompt(req Request, strategy Strategy, lead []nexus.Nexus, behaviors []safety.Behavior, strength float64) Prompt {
	p := Prompt{
		Strategy:  strategy,
		Zone:      req.Policy.Zone,
		Behaviors: behaviors,
		Permitted: req.Policy.Permitted,
		Intensity: phrases.Band(strength),
		Text:      req.Text,
	}
	seen := map[atoms.GroupID]bool{}
	for _, n := range lead {
		p.Features = append(p.Features, n.Feature.Key())
		for _, g := range n.Groups {
			if !seen[g] {
				seen[g] = true
				p.Groups = append(p.Groups, g.String())
			}
		}
	}
	return p
}

// signature keys fallback lookup and sampling: dominant feature, zone and
// intensity band.
func (s *Selector) signature(req Request) string {
	feature, intensity := s.keys(req)
	return fmt.Sprintf("%s/%d/%s", feature.Key(), req.Policy.Zone, intensity)
}

func (s *Selector) keys(req Request) (atoms.FeatureRef, phrases.Intensity) {
	if req.Profile == nil {
		return atoms.FeatureRef{}, phrases.IntensityAny
	}
	feature, value := req.Profile.Dominant()
	if feature.Kind == atoms.FeatureNone {
		return feature, phrases.IntensityAny
	}
	return feature, phrases.Band(value)
}

func (s *Selector) fallback(req Request) Candidate {
	policy := req.Policy
	feature, intensity := s.keys(req)

	var pool []phrases.Entry
	for _, e := range s.table.Lookup(feature, policy.Zone, intensity) {
		if usable(e, policy) {
			pool = append(pool, e)
		}
	}
	if len(pool) == 0 {
		pool = s.table.Safe(policy.Zone)
	}

	cand := Candidate{
		Strategy:   StrategyFallback,
		Confidence: s.cfg.FallbackConfidence,
	}
	if feature.Kind != atoms.FeatureNone {
		cand.Features = []string{feature.Key()}
	}
	if len(pool) == 0 {
		cand.Text = DefaultFallbackText
		cand.Behaviors = []safety.Behavior{safety.BehaviorMinimalPresence}
		return s.lift(cand, policy)
	}

	weights := make([]float64, len(pool))
	for i, e := range pool {
		weights[i] = s.weight(e, req)
	}
	e := pool[s.sampler.Pick(s.signature(req), req.Turn, weights)]

	cand.Text = e.Text
	cand.TemplateID = e.ID
	cand.Behaviors = []safety.Behavior{e.Behavior}
	return s.lift(cand, policy)
}

// weight scales the phrase weight by learned coupling and cluster affinity.
func (s *Selector) weight(e phrases.Entry, req Request) float64 {
	w := e.Weight
	if req.Coupling != nil && len(e.Groups) >= 2 {
		w *= 1 + req.Coupling.MeanCoupling(e.Groups)
	}
	if req.Affinity != nil {
		w *= 1 + math.Max(0, req.Affinity[e.ID])
	}
	return w
}

// lift raises fallback confidence where presence or grounding is the
// correct move for the zone.
func (s *Selector) lift(c Candidate, policy safety.Policy) Candidate {
	if policy.PresenceConfidence <= 0 || len(c.Behaviors) != 1 {
		return c
	}
	switch c.Behaviors[0] {
	case safety.BehaviorMinimalPresence, safety.BehaviorGrounding:
		if policy.Permits(c.Behaviors[0]) {
			c.Confidence = math.Max(c.Confidence, policy.PresenceConfidence)
		}
	}
	return c
}

func usable(e phrases.Entry, policy safety.Policy) bool {
	if !policy.Permits(e.Behavior) {
		return false
	}
	return !policy.Forbids(safety.BehaviorOpenInquiry) || !strings.ContainsRune(e.Text, '?')
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
