package atoms

// Cell is one weighted term of a composite feature.
type Cell struct {
	Group  GroupID
	Facet  Facet
	Weight float64
}

// compositeCells defines each composite as a fixed weighted combination of
// sub-features drawn from at least two groups. Weights per composite sum to 1.
var compositeCells = [NumComposites][]Cell{
	CompositeUrgency: {
		{GroupThreat, FacetDistress, 0.4},
		{GroupSomatic, FacetOverwhelm, 0.3},
		{GroupTemporal, FacetOverwhelm, 0.3},
	},
	CompositeIsolation: {
		{GroupRelational, FacetWithdrawal, 0.5},
		{GroupIdentity, FacetWithdrawal, 0.25},
		{GroupAffect, FacetWithdrawal, 0.25},
	},
	CompositeSpiral: {
		{GroupCognitive, FacetUncertainty, 0.4},
		{GroupCognitive, FacetOverwhelm, 0.3},
		{GroupRegulation, FacetOverwhelm, 0.3},
	},
	CompositeGrief: {
		{GroupAffect, FacetDistress, 0.4},
		{GroupMeaning, FacetWithdrawal, 0.3},
		{GroupTemporal, FacetDistress, 0.3},
	},
	CompositeHope: {
		{GroupMeaning, FacetResolve, 0.4},
		{GroupTemporal, FacetResolve, 0.3},
		{GroupVolition, FacetResolve, 0.3},
	},
	CompositeBelonging: {
		{GroupRelational, FacetConnection, 0.5},
		{GroupIdentity, FacetConnection, 0.25},
		{GroupExpression, FacetConnection, 0.25},
	},
	CompositeShame: {
		{GroupIdentity, FacetDistress, 0.5},
		{GroupExpression, FacetWithdrawal, 0.3},
		{GroupAffect, FacetDistress, 0.2},
	},
	CompositeSafety: {
		{GroupRegulation, FacetSteadiness, 0.4},
		{GroupSomatic, FacetSteadiness, 0.3},
		{GroupThreat, FacetSteadiness, 0.3},
	},
	CompositeAgency: {
		{GroupVolition, FacetResolve, 0.5},
		{GroupCognitive, FacetResolve, 0.25},
		{GroupIdentity, FacetResolve, 0.25},
	},
	CompositeExhaustion: {
		{GroupSomatic, FacetWithdrawal, 0.4},
		{GroupVolition, FacetWithdrawal, 0.3},
		{GroupRegulation, FacetWithdrawal, 0.3},
	},
}

// CompositeCells returns a copy of the cells that define composite c.
func CompositeCells(c CompositeID) []Cell {
	if !c.Valid() {
		return nil
	}
	out := make([]Cell, len(compositeCells[c]))
	copy(out, compositeCells[c])
	return out
}

// CompositeGroups returns the distinct groups contributing to composite c.
func CompositeGroups(c CompositeID) []GroupID {
	var out []GroupID
	seen := [NumGroups]bool{}
	for _, cell := range CompositeCells(c) {
		if !seen[cell.Group] {
			seen[cell.Group] = true
			out = append(out, cell.Group)
		}
	}
	return out
}

// CompositeContribution is group g's weighted-average activation over its own
// cells of composite c, or 0 when g does not feed c.
func CompositeContribution(p *Profile, c CompositeID, g GroupID) float64 {
	var sum, weight float64
	for _, cell := range compositeCells[c] {
		if cell.Group != g {
			continue
		}
		sum += cell.Weight * p.Primary[cell.Group][cell.Facet]
		weight += cell.Weight
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func computeComposites(p *Profile) [NumComposites]float64 {
	var out [NumComposites]float64
	for c, cells := range compositeCells {
		var sum, weight float64
		for _, cell := range cells {
			sum += cell.Weight * p.Primary[cell.Group][cell.Facet]
			weight += cell.Weight
		}
		if weight > 0 {
			out[c] = clamp01(sum / weight)
		}
	}
	return out
}

// Recompute refreshes the composite scores of p from its primary scores.
func Recompute(p *Profile) {
	p.Composite = computeComposites(p)
}
