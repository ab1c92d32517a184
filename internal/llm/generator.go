package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/normanking/resonance/pkg/safety"
	"github.com/normanking/resonance/pkg/synthesis"
)

// ErrUnavailable is returned when no provider is configured.
var ErrUnavailable = errors.New("llm provider unavailable")

// GeneratorAdapter renders synthesis prompts through a Provider.
type GeneratorAdapter struct {
	provider Provider
	model    string
}

// NewGenerator adapts a provider. An empty model uses the provider default.
func NewGenerator(p Provider, model string) *GeneratorAdapter {
	return &GeneratorAdapter{provider: p, model: model}
}

// Generate implements synthesis.Generator.
func (g *GeneratorAdapter) Generate(ctx context.Context, p synthesis.Prompt) (string, error) {
	if g.provider == nil {
		return "", ErrUnavailable
	}
	resp, err := g.provider.Chat(ctx, &ChatRequest{
		Model:        g.model,
		SystemPrompt: SystemPrompt(p),
		Messages:     []Message{{Role: "user", Content: p.Text}},
	})
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", g.provider.Name(), err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// SystemPrompt renders the structured prompt as model instructions.
func SystemPrompt(p synthesis.Prompt) string {
	var b strings.Builder
	b.WriteString("Reply in one or two short sentences of plain, warm language.\n")
	fmt.Fprintf(&b, "Speak to: %s", strings.Join(p.Features, ", "))
	if len(p.Groups) > 0 {
		fmt.Fprintf(&b, " (as felt in %s)", strings.Join(p.Groups, ", "))
	}
	fmt.Fprintf(&b, ". Intensity: %s.\n", p.Intensity)
	fmt.Fprintf(&b, "Moves to make: %s.\n", behaviors(p.Behaviors))
	fmt.Fprintf(&b, "Only these moves are allowed: %s.\n", behaviors(p.Permitted))
	if !permits(p.Permitted, safety.BehaviorOpenInquiry) {
		b.WriteString("Do not ask any questions.\n")
	}
	return b.String()
}

func behaviors(list []safety.Behavior) string {
	names := make([]string, len(list))
	for i, bh := range list {
		names[i] = strings.ReplaceAll(string(bh), "_", " ")
	}
	return strings.Join(names, ", ")
}

func permits(list []safety.Behavior, b safety.Behavior) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
