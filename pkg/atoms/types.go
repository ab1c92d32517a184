// Package atoms converts a span of input text into a fixed-size activation
// profile: 11 scoring groups with 7 sub-features each, plus 10 composite
// features that bridge groups.
package atoms

// GroupID identifies one of the 11 scoring dimensions.
type GroupID int

const (
	GroupAffect GroupID = iota
	GroupSomatic
	GroupRelational
	GroupCognitive
	GroupTemporal
	GroupIdentity
	GroupMeaning
	GroupVolition
	GroupThreat
	GroupRegulation
	GroupExpression

	// NumGroups is the fixed number of groups in every profile.
	NumGroups = 11
)

var groupNames = [NumGroups]string{
	"affect", "somatic", "relational", "cognitive", "temporal",
	"identity", "meaning", "volition", "threat", "regulation", "expression",
}

// String returns the group name.
func (g GroupID) String() string {
	if !g.Valid() {
		return "unknown"
	}
	return groupNames[g]
}

// Valid reports whether g is one of the 11 known groups.
func (g GroupID) Valid() bool {
	return g >= 0 && int(g) < NumGroups
}

// AllGroups returns every group in index order.
func AllGroups() []GroupID {
	out := make([]GroupID, NumGroups)
	for i := range out {
		out[i] = GroupID(i)
	}
	return out
}

// ParseGroup maps a group name back to its ID.
func ParseGroup(name string) (GroupID, bool) {
	for i, n := range groupNames {
		if n == name {
			return GroupID(i), true
		}
	}
	return 0, false
}

// Facet is one of the 7 sub-feature slots. Slots are shared across groups:
// Affect's distress and Somatic's distress are the same feature seen through
// different groups, which is what lets groups co-activate.
type Facet int

const (
	FacetDistress Facet = iota
	FacetWithdrawal
	FacetUncertainty
	FacetConnection
	FacetResolve
	FacetOverwhelm
	FacetSteadiness

	// NumFacets is the number of sub-features per group.
	NumFacets = 7
)

var facetNames = [NumFacets]string{
	"distress", "withdrawal", "uncertainty", "connection",
	"resolve", "overwhelm", "steadiness",
}

// String returns the facet name.
func (f Facet) String() string {
	if !f.Valid() {
		return "unknown"
	}
	return facetNames[f]
}

// Valid reports whether f is a known facet.
func (f Facet) Valid() bool {
	return f >= 0 && int(f) < NumFacets
}

// ParseFacet maps a facet name back to its index.
func ParseFacet(name string) (Facet, bool) {
	for i, n := range facetNames {
		if n == name {
			return Facet(i), true
		}
	}
	return 0, false
}

// CompositeID identifies one of the 10 cross-cutting composite features.
type CompositeID int

const (
	CompositeUrgency CompositeID = iota
	CompositeIsolation
	CompositeSpiral
	CompositeGrief
	CompositeHope
	CompositeBelonging
	CompositeShame
	CompositeSafety
	CompositeAgency
	CompositeExhaustion

	// NumComposites is the number of composite features.
	NumComposites = 10
)

var compositeNames = [NumComposites]string{
	"urgency", "isolation", "spiral", "grief", "hope",
	"belonging", "shame", "safety", "agency", "exhaustion",
}

// String returns the composite name.
func (c CompositeID) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return compositeNames[c]
}

// Valid reports whether c is a known composite.
func (c CompositeID) Valid() bool {
	return c >= 0 && int(c) < NumComposites
}

// ParseComposite maps a composite name back to its ID.
func ParseComposite(name string) (CompositeID, bool) {
	for i, n := range compositeNames {
		if n == name {
			return CompositeID(i), true
		}
	}
	return 0, false
}

// PrimaryDims is the length of the flattened primary score vector.
const PrimaryDims = NumGroups * NumFacets
