// Package safety classifies each turn into one of five ordinal zones and
// enforces the behavior policy bound to the active zone.
package safety

import "fmt"

// Zone is an ordinal safety classification; higher is more protective.
type Zone int

const (
	ZoneOpen       Zone = 1
	ZoneReflective Zone = 2
	ZonePattern    Zone = 3
	ZoneGrounding  Zone = 4
	ZonePresence   Zone = 5
)

// Valid reports whether z is in 1..5.
func (z Zone) Valid() bool { return z >= ZoneOpen && z <= ZonePresence }

// String returns the zone name.
func (z Zone) String() string {
	switch z {
	case ZoneOpen:
		return "open"
	case ZoneReflective:
		return "reflective"
	case ZonePattern:
		return "pattern"
	case ZoneGrounding:
		return "grounding"
	case ZonePresence:
		return "presence"
	default:
		return fmt.Sprintf("zone(%d)", int(z))
	}
}

// Behavior is a kind of response move a candidate can make.
type Behavior string

const (
	BehaviorOpenInquiry       Behavior = "open_inquiry"
	BehaviorReflectiveEmpathy Behavior = "reflective_empathy"
	BehaviorPatternNaming     Behavior = "pattern_naming"
	BehaviorInterpretation    Behavior = "interpretation"
	BehaviorGrounding         Behavior = "grounding"
	BehaviorMinimalPresence   Behavior = "minimal_presence"
)

// AllBehaviors lists every behavior.
func AllBehaviors() []Behavior {
	return []Behavior{
		BehaviorOpenInquiry, BehaviorReflectiveEmpathy, BehaviorPatternNaming,
		BehaviorInterpretation, BehaviorGrounding, BehaviorMinimalPresence,
	}
}

// Valid reports whether b is a known behavior.
func (b Behavior) Valid() bool {
	for _, known := range AllBehaviors() {
		if b == known {
			return true
		}
	}
	return false
}

// Policy is the fixed behavior policy of a zone.
type Policy struct {
	Zone      Zone       `json:"zone"`
	Primary   Behavior   `json:"primary"`
	Permitted []Behavior `json:"permitted"`
	Forbidden []Behavior `json:"forbidden"`

	// SafeConfidence is assigned to a zone-safe replacement.
	SafeConfidence float64 `json:"safe_confidence"`

	// PresenceConfidence, when non-zero, lifts fallback candidates whose
	// behavior is presence or grounding: in this zone that is the correct move.
	PresenceConfidence float64 `json:"presence_confidence"`
}

// Permits reports whether b is allowed.
func (p Policy) Permits(b Behavior) bool {
	return contains(p.Permitted, b) && !contains(p.Forbidden, b)
}

// Forbids reports whether b is on the forbidden list.
func (p Policy) Forbids(b Behavior) bool {
	return contains(p.Forbidden, b)
}

var policies = map[Zone]Policy{
	ZoneOpen: {
		Zone:           ZoneOpen,
		Primary:        BehaviorOpenInquiry,
		Permitted:      AllBehaviors(),
		SafeConfidence: 0.30,
	},
	ZoneReflective: {
		Zone:           ZoneReflective,
		Primary:        BehaviorReflectiveEmpathy,
		Permitted:      AllBehaviors(),
		SafeConfidence: 0.30,
	},
	ZonePattern: {
		Zone:    ZonePattern,
		Primary: BehaviorPatternNaming,
		Permitted: []Behavior{
			BehaviorReflectiveEmpathy, BehaviorPatternNaming, BehaviorInterpretation,
			BehaviorOpenInquiry, BehaviorGrounding, BehaviorMinimalPresence,
		},
		SafeConfidence: 0.30,
	},
	ZoneGrounding: {
		Zone:      ZoneGrounding,
		Primary:   BehaviorGrounding,
		Permitted: []Behavior{BehaviorGrounding, BehaviorMinimalPresence, BehaviorReflectiveEmpathy},
		Forbidden: []Behavior{
			BehaviorOpenInquiry, BehaviorInterpretation, BehaviorPatternNaming,
		},
		SafeConfidence:     0.50,
		PresenceConfidence: 0.45,
	},
	ZonePresence: {
		Zone:      ZonePresence,
		Primary:   BehaviorMinimalPresence,
		Permitted: []Behavior{BehaviorMinimalPresence},
		Forbidden: []Behavior{
			BehaviorOpenInquiry, BehaviorInterpretation, BehaviorPatternNaming,
			BehaviorReflectiveEmpathy, BehaviorGrounding,
		},
		SafeConfidence:     0.60,
		PresenceConfidence: 0.55,
	},
}

// PolicyFor returns the policy of z. Unknown zones get the most protective
// policy.
func PolicyFor(z Zone) Policy {
	p, ok := policies[z]
	if !ok {
		p = policies[ZonePresence]
	}
	out := p
	out.Permitted = append([]Behavior(nil), p.Permitted...)
	out.Forbidden = append([]Behavior(nil), p.Forbidden...)
	return out
}

func contains(list []Behavior, b Behavior) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
