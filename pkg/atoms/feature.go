package atoms

// FeatureKind distinguishes sub-feature slots from composite features.
type FeatureKind int

const (
	FeatureNone FeatureKind = iota
	FeatureFacet
	FeatureComposite
)

// FeatureRef names either a facet or a composite feature.
type FeatureRef struct {
	Kind      FeatureKind `json:"kind"`
	Facet     Facet       `json:"facet,omitempty"`
	Composite CompositeID `json:"composite,omitempty"`
}

// FacetRef refers to a shared sub-feature slot.
func FacetRef(f Facet) FeatureRef {
	return FeatureRef{Kind: FeatureFacet, Facet: f}
}

// CompositeRef refers to a composite feature.
func CompositeRef(c CompositeID) FeatureRef {
	return FeatureRef{Kind: FeatureComposite, Composite: c}
}

// Key is the stable string form used by the phrase table and signatures.
// The zero ref is the wildcard "*".
func (r FeatureRef) Key() string {
	switch r.Kind {
	case FeatureFacet:
		return r.Facet.String()
	case FeatureComposite:
		return r.Composite.String()
	default:
		return "*"
	}
}

// String implements fmt.Stringer.
func (r FeatureRef) String() string { return r.Key() }

// ParseFeature resolves a phrase-table feature key. "*" yields the zero ref.
func ParseFeature(key string) (FeatureRef, bool) {
	if key == "*" || key == "" {
		return FeatureRef{}, true
	}
	if f, ok := ParseFacet(key); ok {
		return FacetRef(f), true
	}
	if c, ok := ParseComposite(key); ok {
		return CompositeRef(c), true
	}
	return FeatureRef{}, false
}

// AllFeatures lists every facet followed by every composite.
func AllFeatures() []FeatureRef {
	out := make([]FeatureRef, 0, NumFacets+NumComposites)
	for f := 0; f < NumFacets; f++ {
		out = append(out, FacetRef(Facet(f)))
	}
	for c := 0; c < NumComposites; c++ {
		out = append(out, CompositeRef(CompositeID(c)))
	}
	return out
}
