package safety

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Proposal is the part of a response candidate the validator inspects.
type Proposal struct {
	Text       string     `json:"text"`
	Behaviors  []Behavior `json:"behaviors"`
	Confidence float64    `json:"confidence"`
	TemplateID string     `json:"template_id,omitempty"`
}

// SafeTemplate is a zone-safe replacement response.
type SafeTemplate struct {
	ID       string
	Text     string
	Behavior Behavior
}

// SafeSource supplies the zone-safe templates, usually from the phrase table.
type SafeSource interface {
	Safe(zone Zone) []SafeTemplate
}

// Violation describes why a proposal was rejected.
type Violation struct {
	Behavior Behavior `json:"behavior,omitempty"`
	Reason   string   `json:"reason"`
}

// built-in replacements used when the source has nothing usable for a zone.
var builtinSafe = map[Zone]SafeTemplate{
	ZoneOpen:       {ID: "builtin.open", Text: "I'm listening.", Behavior: BehaviorMinimalPresence},
	ZoneReflective: {ID: "builtin.reflective", Text: "That sounds like a lot to carry.", Behavior: BehaviorReflectiveEmpathy},
	ZonePattern:    {ID: "builtin.pattern", Text: "I'm here, and I'm following you.", Behavior: BehaviorMinimalPresence},
	ZoneGrounding:  {ID: "builtin.grounding", Text: "Let's slow down together. Feel your feet on the floor. I'm right here.", Behavior: BehaviorGrounding},
	ZonePresence:   {ID: "builtin.presence", Text: "I'm here with you.", Behavior: BehaviorMinimalPresence},
}

// Validator enforces the zone behavior policy on every outgoing proposal.
type Validator struct {
	src SafeSource
}

// NewValidator creates a validator. A nil source uses the built-in templates.
func NewValidator(src SafeSource) *Validator {
	return &Validator{src: src}
}

// Check lists every policy violation in p. An empty result means p is safe.
func (v *Validator) Check(p Proposal, policy Policy) []Violation {
	var out []Violation
	for _, b := range p.Behaviors {
		if policy.Forbids(b) {
			out = append(out, Violation{Behavior: b, Reason: "behavior forbidden in zone " + policy.Zone.String()})
		}
	}
	if policy.Forbids(BehaviorOpenInquiry) && strings.Contains(p.Text, "?") {
		out = append(out, Violation{Behavior: BehaviorOpenInquiry, Reason: "question in zone " + policy.Zone.String()})
	}
	return out
}

// Validate returns p unchanged when it satisfies policy. Otherwise it returns
// a zone-safe replacement chosen deterministically from seed, with confidence
// set to the zone's safe confidence, and reports true.
func (v *Validator) Validate(p Proposal, policy Policy, seed uint64) (Proposal, bool) {
	violations := v.Check(p, policy)
	if len(violations) == 0 {
		return p, false
	}

	tpl := v.pick(policy, seed)
	log.Debug().
		Int("zone", int(policy.Zone)).
		Int("violations", len(violations)).
		Str("reason", violations[0].Reason).
		Str("replacement", tpl.ID).
		Msg("candidate overridden")

	return Proposal{
		Text:       tpl.Text,
		Behaviors:  []Behavior{tpl.Behavior},
		Confidence: policy.SafeConfidence,
		TemplateID: tpl.ID,
	}, true
}

// Usable filters templates down to those policy accepts, ordered by ID.
func Usable(templates []SafeTemplate, policy Policy) []SafeTemplate {
	out := make([]SafeTemplate, 0, len(templates))
	for _, t := range templates {
		if !policy.Permits(t.Behavior) || strings.TrimSpace(t.Text) == "" {
			continue
		}
		if policy.Forbids(BehaviorOpenInquiry) && strings.Contains(t.Text, "?") {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *Validator) pick(policy Policy, seed uint64) SafeTemplate {
	var usable []SafeTemplate
	if v.src != nil {
		usable = Usable(v.src.Safe(policy.Zone), policy)
	}
	if len(usable) == 0 {
		if tpl, ok := builtinSafe[policy.Zone]; ok {
			return tpl
		}
		return builtinSafe[ZonePresence]
	}
	return usable[seed%uint64(len(usable))]
}
