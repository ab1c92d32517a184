package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/normanking/resonance/internal/phrases"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/safety"
	"github.com/rs/zerolog/log"
)

// Prompt is the structured request handed to the generation service.
type Prompt struct {
	Strategy  Strategy          `json:"strategy"`
	Features  []string          `json:"features"`
	Groups    []string          `json:"groups"`
	Zone      safety.Zone       `json:"zone"`
	Behaviors []safety.Behavior `json:"behaviors"`
	Permitted []safety.Behavior `json:"permitted"`
	Intensity phrases.Intensity `json:"intensity"`
	Text      string            `json:"text"`
}

// Generator renders a prompt into response text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// DefaultFallbackText is returned by a guarded generator that failed.
const DefaultFallbackText = "I'm here with you."

// Guarded bounds a generator with a fixed timeout and a guaranteed fallback
// string.
type Guarded struct {
	gen      Generator
	timeout  time.Duration
	fallback string
}

// NewGuarded wraps gen. A non-positive timeout disables the deadline.
func NewGuarded(gen Generator, timeout time.Duration, fallback string) *Guarded {
	if fallback == "" {
		fallback = DefaultFallbackText
	}
	return &Guarded{gen: gen, timeout: timeout, fallback: fallback}
}

type genResult struct {
	text string
	err  error
}

// Generate returns the generated text and true, or the fallback string and
// false when generation failed, timed out or produced nothing.
func (g *Guarded) Generate(ctx context.Context, p Prompt) (string, bool) {
	if g.gen == nil {
		return g.fallback, false
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan genResult, 1)
	go func() {
		text, err := g.gen.Generate(ctx, p)
		done <- genResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		if errors.Is(res.err, ErrNoTemplate) {
			log.Debug().Str("strategy", string(p.Strategy)).Msg("no template for prompt")
			return g.fallback, false
		}
		if res.err != nil {
			log.Warn().Err(res.err).Str("strategy", string(p.Strategy)).Msg("generation failed")
			return g.fallback, false
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			log.Warn().Str("strategy", string(p.Strategy)).Msg("generation returned empty text")
			return g.fallback, false
		}
		return text, true
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("strategy", string(p.Strategy)).Msg("generation timed out")
		return g.fallback, false
	}
}

// ErrNoTemplate is returned when the phrase table has nothing for a prompt.
var ErrNoTemplate = errors.New("no matching template")

// TemplateGenerator renders prompts offline from the phrase table.
type TemplateGenerator struct {
	table *phrases.Table
}

// NewTemplateGenerator creates a generator over table.
func NewTemplateGenerator(table *phrases.Table) *TemplateGenerator {
	return &TemplateGenerator{table: table}
}

// Generate joins, per feature, the first phrase whose behavior the prompt
// asks for. Phrases of the prompt zone are preferred, then the feature's
// phrases from any zone, then wildcard phrases. Zone policy is left to
// validation.
func (g *TemplateGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.table == nil {
		return "", ErrNoTemplate
	}

	var parts []string
	seen := map[string]bool{}
	for _, key := range p.Features {
		feature, ok := atoms.ParseFeature(key)
		if !ok {
			return "", fmt.Errorf("unknown feature %q", key)
		}
		if e, ok := first(g.table.Lookup(feature, p.Zone, p.Intensity), p.Behaviors, seen); ok {
			parts = append(parts, e.Text)
			continue
		}
		if e, ok := first(g.table.ByFeature(feature), p.Behaviors, seen); ok {
			parts = append(parts, e.Text)
			continue
		}
		if e, ok := first(g.table.ByFeature(atoms.FeatureRef{}), p.Behaviors, seen); ok {
			parts = append(parts, e.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoTemplate
	}
	return strings.Join(parts, " "), nil
}

// first picks the earliest unused entry, trying behaviors in prompt order.
func first(entries []phrases.Entry, behaviors []safety.Behavior, seen map[string]bool) (phrases.Entry, bool) {
	for _, b := range behaviors {
		for _, e := range entries {
			if e.Behavior == b && !seen[e.ID] {
				seen[e.ID] = true
				return e, true
			}
		}
	}
	return phrases.Entry{}, false
}
