package atoms

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Group is one statically registered scoring dimension. Activate returns the
// 7 sub-feature activations for the text.
type Group interface {
	ID() GroupID
	Activate(ctx context.Context, text string) Vector
}

// Config tunes the activation layer.
type Config struct {
	// DegradedRatio is the share of failed similarity calls at which the
	// profile is flagged as degraded. Default: 0.5
	DegradedRatio float64 `mapstructure:"degraded_ratio" yaml:"degraded_ratio"`
}

// DefaultConfig returns the default layer configuration.
func DefaultConfig() Config {
	return Config{DegradedRatio: 0.5}
}

// callStats counts similarity calls for one activation pass.
type callStats struct {
	calls    int
	failures int
}

// anchorGroup scores each facet as the best similarity over its anchors.
type anchorGroup struct {
	id      GroupID
	anchors [NumFacets][]string
	sim     Similarity
	stats   *callStats
}

func (g *anchorGroup) ID() GroupID { return g.id }

func (g *anchorGroup) Activate(ctx context.Context, text string) Vector {
	var v Vector
	for f, anchors := range g.anchors {
		best := 0.0
		for _, anchor := range anchors {
			score, err := g.sim.Similarity(ctx, text, anchor)
			if g.stats != nil {
				g.stats.calls++
			}
			if err != nil {
				if g.stats != nil {
					g.stats.failures++
				}
				continue
			}
			if score > best {
				best = score
			}
		}
		v[f] = best
	}
	return v
}

// Layer turns text into activation profiles.
type Layer struct {
	cfg    Config
	groups [NumGroups]Group
	stats  callStats
}

// NewLayer builds the fixed group table over sim. A nil sim uses
// LexicalSimilarity.
func NewLayer(sim Similarity, cfg Config) *Layer {
	if sim == nil {
		sim = LexicalSimilarity{}
	}
	if cfg.DegradedRatio <= 0 || cfg.DegradedRatio > 1 {
		cfg.DegradedRatio = DefaultConfig().DegradedRatio
	}
	l := &Layer{cfg: cfg}
	for g := 0; g < NumGroups; g++ {
		l.groups[g] = &anchorGroup{
			id:      GroupID(g),
			anchors: anchorTable[g],
			sim:     sim,
			stats:   &l.stats,
		}
	}
	return l
}

// NewLayerWithGroups builds a layer over a caller-supplied table. Every slot
// must hold the group whose ID matches its index.
func NewLayerWithGroups(groups [NumGroups]Group, cfg Config) *Layer {
	if cfg.DegradedRatio <= 0 || cfg.DegradedRatio > 1 {
		cfg.DegradedRatio = DefaultConfig().DegradedRatio
	}
	return &Layer{cfg: cfg, groups: groups}
}

// Groups returns the registered group table.
func (l *Layer) Groups() [NumGroups]Group {
	return l.groups
}

// Activate computes the profile for text. Degenerate input yields the
// neutral profile; the result is always sanitized.
func (l *Layer) Activate(ctx context.Context, text string) Profile {
	if strings.TrimSpace(text) == "" || len(Tokenize(text)) == 0 {
		log.Debug().Msg("degenerate input, using neutral activation")
		return NeutralProfile()
	}

	l.stats = callStats{}
	var p Profile
	for g, group := range l.groups {
		if group == nil {
			continue
		}
		p.Primary[g] = group.Activate(ctx, text)
	}

	p = Sanitize(p)
	Recompute(&p)
	p.Diag.SimilarityCalls = l.stats.calls
	p.Diag.SimilarityFailures = l.stats.failures
	if l.stats.calls > 0 && float64(l.stats.failures)/float64(l.stats.calls) >= l.cfg.DegradedRatio {
		p.Diag.Degraded = true
		log.Warn().
			Int("calls", l.stats.calls).
			Int("failures", l.stats.failures).
			Msg("similarity service degraded")
	}

	if len(p.Diag.Sanitized) > 0 {
		log.Warn().Int("dims", len(p.Diag.Sanitized)).Msg("non-finite activations zeroed")
	}
	return p
}
