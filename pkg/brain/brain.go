package brain

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/normanking/resonance/internal/phrases"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/convergence"
	"github.com/normanking/resonance/pkg/learning"
	"github.com/normanking/resonance/pkg/nexus"
	"github.com/normanking/resonance/pkg/safety"
	"github.com/normanking/resonance/pkg/synthesis"
	"github.com/rs/zerolog/log"
)

// Option customizes a Brain.
type Option func(*options)

type options struct {
	sim     atoms.Similarity
	gen     synthesis.Generator
	table   *phrases.Table
	outcome *OutcomeLogger
	newID   func() string
}

// WithSimilarity sets the similarity service used for activation.
func WithSimilarity(sim atoms.Similarity) Option {
	return func(o *options) { o.sim = sim }
}

// WithGenerator sets the generation service used by direct and fusion.
func WithGenerator(gen synthesis.Generator) Option {
	return func(o *options) { o.gen = gen }
}

// WithPhrases sets the phrase table.
func WithPhrases(t *phrases.Table) Option {
	return func(o *options) { o.table = t }
}

// WithOutcomeLogger shares an outcome log between brains.
func WithOutcomeLogger(l *OutcomeLogger) Option {
	return func(o *options) { o.outcome = l }
}

func withIDs(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// Brain processes the turns of one session. Turns are serialized.
type Brain struct {
	mu sync.Mutex

	cfg        Config
	layer      *atoms.Layer
	engine     *convergence.Engine
	composer   *nexus.Composer
	classifier *safety.Classifier
	selector   *synthesis.Selector
	learner    *learning.Learner
	store      *learning.Store
	outcomes   *OutcomeLogger
	newID      func() string
}

// New wires a brain. A nil store keeps memory in process only. Stage
// configs that fail validation are replaced by their defaults.
func New(cfg Config, store *learning.Store, opts ...Option) *Brain {
	cfg = withDefaults(cfg)
	o := options{newID: func() string { return uuid.New().String() }}
	for _, opt := range opts {
		opt(&o)
	}
	if store == nil {
		store = learning.NewStore(nil)
	}
	if o.table == nil {
		o.table = phrases.MustDefault()
	}
	if o.outcome == nil {
		o.outcome = NewOutcomeLogger(cfg.HistorySize)
	}

	return &Brain{
		cfg:        cfg,
		layer:      atoms.NewLayer(o.sim, cfg.Atoms),
		engine:     convergence.NewEngine(cfg.Convergence),
		composer:   nexus.NewComposer(cfg.Nexus),
		classifier: safety.NewClassifier(cfg.Safety),
		selector:   synthesis.NewSelector(cfg.Synthesis, o.table, o.gen),
		learner:    learning.NewLearner(cfg.Learning),
		store:      store,
		outcomes:   o.outcome,
		newID:      o.newID,
	}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	invalid := func(stage string, err error) bool {
		if err != nil {
			log.Warn().Err(err).Str("stage", stage).Msg("invalid config, using defaults")
		}
		return err != nil
	}
	if invalid("atoms", cfg.atomsErr()) {
		cfg.Atoms = def.Atoms
	}
	if invalid("convergence", cfg.Convergence.Validate()) {
		cfg.Convergence = def.Convergence
	}
	if invalid("nexus", cfg.nexusErr()) {
		cfg.Nexus = def.Nexus
	}
	if invalid("safety", cfg.Safety.Validate()) {
		cfg.Safety = def.Safety
	}
	if invalid("synthesis", cfg.Synthesis.Validate()) {
		cfg.Synthesis = def.Synthesis
	}
	if invalid("learning", cfg.Learning.Validate()) {
		cfg.Learning = def.Learning
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	return cfg
}

// Store returns the associative memory handle.
func (b *Brain) Store() *learning.Store { return b.store }

// Outcomes returns the outcome log.
func (b *Brain) Outcomes() *OutcomeLogger { return b.outcomes }

// Stats aggregates the outcome log.
func (b *Brain) Stats() Stats { return b.outcomes.Stats() }

// ProcessTurn runs one turn. Collaborator failures degrade the result
// instead of failing it; the only error is a context cancelled before the
// turn starts.
func (b *Brain) ProcessTurn(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	turnID := b.newID()
	snap := b.store.Snapshot()

	profile := b.layer.Activate(ctx, in.Text)
	conv := b.engine.Run(&profile)
	nexuses := b.composer.Compose(&profile)

	signals := safety.DeriveSignals(&profile, b.cfg.Safety)
	var cl safety.Classification
	if in.Prior != nil {
		cl = b.classifier.ClassifyWithPrior(signals, in.Prior.Zone)
	} else {
		cl = b.classifier.Classify(signals)
	}

	req := synthesis.Request{
		Text:        in.Text,
		Profile:     &profile,
		Nexuses:     nexuses,
		Convergence: conv,
		Policy:      safety.PolicyFor(cl.Zone),
		Coupling:    &snap.Matrix,
		Turn:        snap.Turns + 1,
	}
	if c := b.learner.Match(snap, &profile); c != nil {
		req.Affinity = c.Stats.TemplateAffinity
	}
	cand := b.selector.Select(ctx, req)

	var assign learning.Assignment
	b.store.Commit(func(s *learning.State) {
		assign = b.learner.Learn(s, learning.Outcome{
			Candidate:   cand,
			Convergence: conv,
			Profile:     &profile,
			Nexuses:     nexuses,
			Quality:     in.Quality,
		})
	})

	out := &Output{
		TurnID:            turnID,
		Candidate:         cand,
		NexusCount:        len(nexuses),
		ConvergenceCycles: conv.State.Cycle,
		Energy:            conv.State.Energy,
		Converged:         conv.Converged,
		Opportune:         conv.Opportune,
		Zone:              cl.Zone,
		CrisisOverride:    cl.CrisisOverride,
		ZoneHeld:          cl.Held,
		Degraded:          profile.Diag.Degraded,
		ClusterID:         assign.ClusterID,
		ClusterCreated:    assign.Created,
	}

	b.outcomes.Log(TurnRecord{
		TurnID:     turnID,
		Strategy:   cand.Strategy,
		Zone:       cl.Zone,
		Confidence: cand.Confidence,
		Overridden: cand.Overridden,
		Crisis:     cl.CrisisOverride,
		Cycles:     conv.State.Cycle,
		Energy:     conv.State.Energy,
		Opportune:  conv.Opportune,
		Degraded:   profile.Diag.Degraded,
		ClusterID:  assign.ClusterID,
	})

	log.Info().
		Str("turn", turnID).
		Str("strategy", string(cand.Strategy)).
		Float64("confidence", cand.Confidence).
		Int("zone", int(cl.Zone)).
		Bool("crisis", cl.CrisisOverride).
		Bool("overridden", cand.Overridden).
		Int("nexuses", len(nexuses)).
		Int("cycles", conv.State.Cycle).
		Float64("energy", conv.State.Energy).
		Msg("turn processed")
	return out, nil
}
