package learning

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/convergence"
	"github.com/normanking/resonance/pkg/nexus"
	"github.com/normanking/resonance/pkg/synthesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(cells map[[2]int]float64) *atoms.Profile {
	var p atoms.Profile
	for k, v := range cells {
		p.Primary[k[0]][k[1]] = v
	}
	atoms.Recompute(&p)
	return &p
}

func at(g atoms.GroupID, f atoms.Facet) [2]int { return [2]int{int(g), int(f)} }

func outcome(p *atoms.Profile, cycles int) Outcome {
	return Outcome{
		Candidate: synthesis.Candidate{
			Strategy:   synthesis.StrategyFallback,
			Confidence: 0.3,
			TemplateID: "distress.pattern",
		},
		Convergence: convergence.Result{State: convergence.State{Cycle: cycles, Energy: 0.3}},
		Profile:     p,
	}
}

func testLearner(cfg Config) *Learner {
	l := NewLearner(cfg)
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("c%d", n)
	}
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l
}

func TestMatrix_Update(t *testing.T) {
	m := IdentityMatrix()
	require.True(t, m.Valid())

	p := profile(map[[2]int]float64{
		at(atoms.GroupAffect, atoms.FacetDistress):     0.8,
		at(atoms.GroupSomatic, atoms.FacetDistress):    0.8,
		at(atoms.GroupCognitive, atoms.FacetOverwhelm): 0.5,
	})
	top := nexus.Nexus{Groups: []atoms.GroupID{atoms.GroupAffect, atoms.GroupSomatic}}

	m.Update(p, []nexus.Nexus{top}, 1, 0.1)

	assert.InDelta(t, 0.064, m.Coupling(atoms.GroupAffect, atoms.GroupSomatic), 1e-12)
	assert.InDelta(t, 0.02, m.Coupling(atoms.GroupAffect, atoms.GroupCognitive), 1e-12)
	assert.Equal(t, 0.0, m.Coupling(atoms.GroupRelational, atoms.GroupThreat))
	assert.Equal(t, 1.0, m.Coupling(atoms.GroupAffect, atoms.GroupAffect))
	assert.True(t, m.Valid())

	assert.InDelta(t, (0.064+0.02+0.02)/3,
		m.MeanCoupling([]atoms.GroupID{atoms.GroupAffect, atoms.GroupSomatic, atoms.GroupCognitive}), 1e-12)
	assert.Equal(t, 0.0, m.MeanCoupling([]atoms.GroupID{atoms.GroupAffect}))
	assert.Equal(t, 0.0, m.Coupling(atoms.GroupID(-1), atoms.GroupAffect))
}

func TestMatrix_SymmetricUnderRandomUpdates(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	m := IdentityMatrix()
	composer := nexus.NewComposer(nexus.DefaultConfig())

	for i := 0; i < 200; i++ {
		flat := make([]float64, atoms.PrimaryDims)
		for j := range flat {
			flat[j] = r.Float64()
		}
		p, err := atoms.FromFlat(flat)
		require.NoError(t, err)

		m.Update(&p, composer.Compose(&p), r.Float64(), 0.1)
		require.True(t, m.Symmetric(), "update %d", i)
		require.True(t, m.Valid(), "update %d", i)
	}
}

func TestThreshold(t *testing.T) {
	tiers := DefaultTiers()
	tests := []struct {
		count int
		want  float64
	}{
		{0, 0.92}, {7, 0.92}, {8, 0.85}, {23, 0.85}, {24, 0.75}, {500, 0.75},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold(tt.count, tiers), "count %d", tt.count)
	}
	assert.Equal(t, 1.0, Threshold(3, nil))
}

func TestNearest(t *testing.T) {
	idx, sim := Nearest(nil, Centroid{1})
	assert.Equal(t, -1, idx)
	assert.Equal(t, 0.0, sim)

	clusters := []FamilyCluster{{Centroid: Centroid{0, 1}}, {Centroid: Centroid{1, 0.1}}}
	idx, sim = Nearest(clusters, Centroid{1})
	assert.Equal(t, 1, idx)
	assert.Greater(t, sim, 0.99)
}

func TestLearn_IdenticalSignatureSameCluster(t *testing.T) {
	l := testLearner(DefaultConfig())
	state := NewState()
	p := profile(map[[2]int]float64{
		at(atoms.GroupAffect, atoms.FacetDistress):  0.7,
		at(atoms.GroupSomatic, atoms.FacetDistress): 0.7,
	})

	first := l.Learn(state, outcome(p, 3))
	require.True(t, first.Created)
	assert.Equal(t, "c1", first.ClusterID)

	for i := 0; i < 5; i++ {
		a := l.Learn(state, outcome(p, 3))
		assert.True(t, a.Merged)
		assert.Equal(t, "c1", a.ClusterID)
		assert.InDelta(t, 1.0, a.Similarity, 1e-9)
	}

	require.Len(t, state.Clusters, 1)
	c := state.Clusters[0]
	assert.Equal(t, 6, c.MemberCount)
	want := CentroidOf(p)
	for i := range want {
		assert.InDelta(t, want[i], c.Centroid[i], 1e-12)
	}
	assert.Equal(t, 6, c.Stats.Strategies["fallback"])
	assert.InDelta(t, 0.3, c.Stats.MeanEnergy, 1e-12)
	assert.Greater(t, c.Stats.TemplateAffinity["distress.pattern"], 0.0)
	assert.Equal(t, 6, state.Turns)
	assert.True(t, state.Matrix.Symmetric())
}

func TestLearn_Skips(t *testing.T) {
	l := testLearner(DefaultConfig())
	state := NewState()

	neutral := atoms.NeutralProfile()
	assert.Equal(t, "neutral", l.Learn(state, outcome(&neutral, 3)).Skipped)

	degraded := profile(map[[2]int]float64{at(atoms.GroupAffect, atoms.FacetDistress): 0.9})
	degraded.Diag.Degraded = true
	assert.Equal(t, "degraded", l.Learn(state, outcome(degraded, 3)).Skipped)

	p := profile(map[[2]int]float64{at(atoms.GroupAffect, atoms.FacetDistress): 0.9})
	assert.Equal(t, "immature", l.Learn(state, outcome(p, 1)).Skipped)

	faint := profile(map[[2]int]float64{at(atoms.GroupAffect, atoms.FacetDistress): 0.2})
	assert.Equal(t, "immature", l.Learn(state, outcome(faint, 4)).Skipped)

	assert.Empty(t, state.Clusters)
	assert.Equal(t, 4, state.Turns)
}

// filler returns a profile orthogonal to every other filler index.
func filler(i int) *atoms.Profile {
	g := atoms.GroupID(1 + i/atoms.NumFacets)
	f := atoms.Facet(i % atoms.NumFacets)
	return profile(map[[2]int]float64{at(g, f): 1})
}

func TestLearn_TierCrossingLowersCreation(t *testing.T) {
	l := testLearner(DefaultConfig())
	state := NewState()

	base := profile(map[[2]int]float64{at(atoms.GroupAffect, atoms.FacetDistress): 1})
	// cosine similarity to base of about 0.88
	near := profile(map[[2]int]float64{
		at(atoms.GroupAffect, atoms.FacetDistress):   1,
		at(atoms.GroupAffect, atoms.FacetWithdrawal): 0.54,
	})
	sim := CosineSimilarity(CentroidOf(base), CentroidOf(near))
	require.Greater(t, sim, 0.85)
	require.Less(t, sim, 0.92)

	require.True(t, l.Learn(state, outcome(base, 3)).Created)

	// first tier: too far to merge
	a := l.Learn(state, outcome(near, 3))
	assert.True(t, a.Created)
	assert.Equal(t, 0.92, a.Threshold)

	for i := len(state.Clusters); i < 8; i++ {
		require.True(t, l.Learn(state, outcome(filler(i), 3)).Created)
	}
	require.Len(t, state.Clusters, 8)

	// second tier: the same distance now merges
	probe := profile(map[[2]int]float64{
		at(atoms.GroupAffect, atoms.FacetDistress): 1,
		at(atoms.GroupAffect, atoms.FacetResolve):  0.54,
	})
	a = l.Learn(state, outcome(probe, 3))
	assert.True(t, a.Merged)
	assert.Equal(t, 0.85, a.Threshold)
	assert.Len(t, state.Clusters, 8)
}

func TestLearn_MaxClustersMergesIntoNearest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClusters = 3
	l := testLearner(cfg)
	state := NewState()

	for i := 0; i < 3; i++ {
		require.True(t, l.Learn(state, outcome(filler(i), 3)).Created)
	}
	a := l.Learn(state, outcome(filler(10), 3))
	assert.True(t, a.Merged)
	assert.False(t, a.Created)
	assert.Len(t, state.Clusters, 3)
}

func TestLearn_OverridePenalty(t *testing.T) {
	l := testLearner(DefaultConfig())
	q := 0.8
	o := outcome(nil, 3)
	o.Quality = &q
	assert.InDelta(t, 0.8, l.Quality(o), 1e-12)

	o.Candidate.Overridden = true
	assert.InDelta(t, 0.4, l.Quality(o), 1e-12)

	o.Quality = nil
	assert.InDelta(t, 0.15, l.Quality(o), 1e-12)
}

func TestLearner_Match(t *testing.T) {
	l := testLearner(DefaultConfig())
	state := NewState()
	p := profile(map[[2]int]float64{at(atoms.GroupThreat, atoms.FacetDistress): 0.9})

	assert.Nil(t, l.Match(state, p))
	l.Learn(state, outcome(p, 3))

	c := l.Match(state, p)
	require.NotNil(t, c)
	assert.Equal(t, "c1", c.ID)
	assert.Nil(t, l.Match(state, filler(3)))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Tiers = []Tier{{Below: 8, Threshold: 0.8}, {Threshold: 0.9}}
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Alpha = 0
	assert.Error(t, bad.Validate())
}

type failingBackend struct{ err error }

func (f failingBackend) LoadState(context.Context) (*State, error) { return nil, f.err }
func (f failingBackend) SaveState(context.Context, *State) error   { return f.err }

type fixedBackend struct{ s *State }

func (f fixedBackend) LoadState(context.Context) (*State, error) { return f.s, nil }
func (f fixedBackend) SaveState(context.Context, *State) error   { return nil }

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	backend := &MemoryBackend{}

	s := NewStore(backend)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 0, s.Snapshot().Turns)

	s.Commit(func(st *State) { st.Turns = 5 })
	assert.True(t, s.Dirty())
	require.NoError(t, s.Persist(ctx))
	assert.False(t, s.Dirty())
	assert.Equal(t, 1, backend.Saves)

	reopened := NewStore(backend)
	require.NoError(t, reopened.Load(ctx))
	assert.Equal(t, 5, reopened.Snapshot().Turns)

	reopened.Reset()
	assert.Equal(t, 0, reopened.Snapshot().Turns)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore(nil)
	s.Commit(func(st *State) {
		st.Clusters = append(st.Clusters, FamilyCluster{ID: "a", Stats: ClusterStats{Strategies: map[string]int{"direct": 1}}})
	})

	snap := s.Snapshot()
	snap.Clusters[0].Stats.Strategies["direct"] = 99
	snap.Matrix[0][1] = 0.5

	again := s.Snapshot()
	assert.Equal(t, 1, again.Clusters[0].Stats.Strategies["direct"])
	assert.Equal(t, 0.0, again.Matrix[0][1])
}

func TestStore_LoadRecovers(t *testing.T) {
	ctx := context.Background()

	asym := NewState()
	asym.Matrix[0][1] = 0.4
	wrongVersion := NewState()
	wrongVersion.Version = 9

	backends := map[string]Backend{
		"error":         failingBackend{err: errors.New("disk on fire")},
		"asymmetric":    fixedBackend{s: asym},
		"wrong version": fixedBackend{s: wrongVersion},
		"nil state":     fixedBackend{},
	}
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			s := NewStore(b)
			require.NoError(t, s.Load(ctx))
			assert.Equal(t, IdentityMatrix(), s.Snapshot().Matrix)
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, NewStore(&MemoryBackend{}).Load(cancelled), context.Canceled)
}

func TestStore_PersistError(t *testing.T) {
	s := NewStore(failingBackend{err: errors.New("read-only")})
	s.Commit(func(st *State) { st.Turns++ })
	assert.Error(t, s.Persist(context.Background()))
	assert.True(t, s.Dirty())
}
