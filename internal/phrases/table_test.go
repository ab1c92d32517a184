package phrases

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestDefault(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Equal(t, Version, table.Version())
	assert.Greater(t, table.Len(), 40)

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, table, again)
}

func TestBand(t *testing.T) {
	assert.Equal(t, IntensityLow, Band(0))
	assert.Equal(t, IntensityLow, Band(0.39))
	assert.Equal(t, IntensityMid, Band(0.4))
	assert.Equal(t, IntensityHigh, Band(0.7))
	assert.Equal(t, IntensityHigh, Band(1))
}

func TestLookup_BackOff(t *testing.T) {
	table := MustDefault()
	isolation := atoms.CompositeRef(atoms.CompositeIsolation)
	hope := atoms.CompositeRef(atoms.CompositeHope)

	tests := []struct {
		name      string
		feature   atoms.FeatureRef
		zone      safety.Zone
		intensity Intensity
		want      []string
	}{
		{"exact", isolation, safety.ZoneReflective, IntensityHigh, []string{"isolation.reflect.high"}},
		{"feature and zone", isolation, safety.ZonePattern, IntensityMid, []string{"isolation.pattern"}},
		{"zone only", isolation, safety.ZoneReflective, IntensityLow, []string{"any.reflect.2"}},
		{"zone only presence", hope, safety.ZonePresence, IntensityHigh, []string{"any.presence.5", "any.presence.5b"}},
		{"wildcard feature", atoms.FeatureRef{}, safety.ZonePattern, IntensityAny, []string{"any.pattern.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(table.Lookup(tt.feature, tt.zone, tt.intensity))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookup_AnyZone(t *testing.T) {
	table, err := Parse([]byte(`
version: 1
entries:
  - {id: a, feature: "*", zone: 0, intensity: "*", behavior: minimal_presence, weight: 1, safe: true, text: here}
  - {id: b, feature: grief, zone: 2, intensity: high, behavior: reflective_empathy, weight: 1, text: loss}
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, ids(table.Lookup(atoms.CompositeRef(atoms.CompositeGrief), safety.ZoneReflective, IntensityHigh)))
	assert.Equal(t, []string{"a"}, ids(table.Lookup(atoms.CompositeRef(atoms.CompositeGrief), safety.ZoneGrounding, IntensityHigh)))
}

func TestByFeature(t *testing.T) {
	table := MustDefault()
	got := ids(table.ByFeature(atoms.FacetRef(atoms.FacetDistress)))
	want := []string{"distress.ground", "distress.inquiry", "distress.pattern", "distress.reflect", "distress.reflect.low"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ByFeature() mismatch (-want +got):\n%s", diff)
	}
}

func TestSafe(t *testing.T) {
	table := MustDefault()

	want := map[safety.Zone][]string{
		safety.ZoneOpen:      {"any.presence.1", "any.presence.2"},
		safety.ZoneGrounding: {"any.ground.1", "any.ground.2", "any.presence.1", "any.presence.2"},
		safety.ZonePresence: {
			"any.presence.1", "any.presence.2", "any.presence.5", "any.presence.5b",
			"isolation.presence.5", "urgency.presence",
		},
	}
	for zone, w := range want {
		if diff := cmp.Diff(w, ids(table.Safe(zone))); diff != "" {
			t.Errorf("Safe(%d) mismatch (-want +got):\n%s", zone, diff)
		}
	}

	for z := safety.ZoneOpen; z <= safety.ZonePresence; z++ {
		policy := safety.PolicyFor(z)
		for _, tpl := range table.Source().Safe(z) {
			assert.True(t, policy.Permits(tpl.Behavior), "%s in zone %d", tpl.ID, z)
		}
	}
}

func TestDefault_EveryEntryPermittedInItsZone(t *testing.T) {
	for _, e := range MustDefault().Entries() {
		if e.Zone == 0 {
			continue
		}
		policy := safety.PolicyFor(e.Zone)
		assert.True(t, policy.Permits(e.Behavior), "%s: %s in zone %d", e.ID, e.Behavior, e.Zone)
		if policy.Forbids(safety.BehaviorOpenInquiry) {
			assert.NotContains(t, e.Text, "?", e.ID)
		}
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	safeAll := `  - {id: s, feature: "*", zone: 0, intensity: "*", behavior: minimal_presence, weight: 1, safe: true, text: here}
`
	tests := []struct {
		name string
		doc  string
	}{
		{"version", "version: 2\nentries:\n" + safeAll},
		{"empty", "version: 1\nentries: []\n"},
		{"duplicate id", "version: 1\nentries:\n" + safeAll + safeAll},
		{"feature", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: joy, zone: 1, behavior: grounding, weight: 1, text: t}` + "\n"},
		{"zone", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: grief, zone: 6, behavior: grounding, weight: 1, text: t}` + "\n"},
		{"intensity", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: grief, zone: 1, intensity: extreme, behavior: grounding, weight: 1, text: t}` + "\n"},
		{"behavior", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: grief, zone: 1, behavior: advice, weight: 1, text: t}` + "\n"},
		{"weight", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: grief, zone: 1, behavior: grounding, weight: 0, text: t}` + "\n"},
		{"text", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: grief, zone: 1, behavior: grounding, weight: 1, text: ""}` + "\n"},
		{"group", "version: 1\nentries:\n" + safeAll + `  - {id: x, feature: grief, zone: 1, behavior: grounding, weight: 1, groups: [spleen], text: t}` + "\n"},
		{"no safe for presence", "version: 1\nentries:\n" + `  - {id: x, feature: "*", zone: 0, behavior: grounding, weight: 1, safe: true, text: t}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrSchema)
		})
	}

	_, err := Parse([]byte("version: [1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchema)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	require.NoError(t, os.WriteFile(path, defaultYAML, 0o644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MustDefault().Len(), table.Len())

	e, ok := table.Get("urgency.presence")
	require.True(t, ok)
	assert.Equal(t, []atoms.GroupID{atoms.GroupThreat, atoms.GroupSomatic, atoms.GroupTemporal}, e.Groups)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
