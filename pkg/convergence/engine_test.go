package convergence

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sharedFeatureProfile activates facet f at value v in each listed group.
func sharedFeatureProfile(f atoms.Facet, v float64, groups ...atoms.GroupID) atoms.Profile {
	var p atoms.Profile
	for _, g := range groups {
		p.Primary[g][f] = v
	}
	atoms.Recompute(&p)
	return p
}

func randomProfile(r *rand.Rand) atoms.Profile {
	var p atoms.Profile
	for g := range p.Primary {
		for f := range p.Primary[g] {
			if r.Float64() < 0.3 {
				p.Primary[g][f] = r.Float64()
			}
		}
	}
	atoms.Recompute(&p)
	return p
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.0, cfg.Weights.Sum(), 1e-9)
}

func TestConfig_ValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Delta = 0.5
	assert.Error(t, cfg.Validate())

	engine := NewEngine(cfg)
	assert.Equal(t, DefaultConfig(), engine.Config())
}

func TestRun_SharedFeatureDescends(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	p := sharedFeatureProfile(atoms.FacetDistress, 0.7,
		atoms.GroupAffect, atoms.GroupSomatic, atoms.GroupRelational)

	res := engine.Run(&p)

	require.GreaterOrEqual(t, len(res.State.History), 4)
	assert.LessOrEqual(t, res.State.History[3], 0.3, "energy should reach 0.3 within 3 cycles")
	assert.InDelta(t, 0.3455, res.State.History[1], 1e-4)
	assert.InDelta(t, 0.2932, res.State.History[2], 1e-4)
	assert.InDelta(t, 0.7, res.MeanCoherence, 1e-9)
	assert.LessOrEqual(t, res.State.Cycle, engine.Config().MaxCycles)
}

func TestRun_NeutralProfileStalls(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	p := atoms.NeutralProfile()

	res := engine.Run(&p)

	assert.True(t, res.Converged)
	assert.Equal(t, StopStable, res.Reason)
	assert.Equal(t, 2, res.State.Cycle)
	assert.InDelta(t, 0.65, res.State.Energy, 1e-9)
	assert.Equal(t, 0.0, res.State.Satisfaction)
	assert.False(t, res.Opportune)
}

func TestRun_EnergyNonIncreasingAndBounded(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	r := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 200; i++ {
		p := randomProfile(r)
		res := engine.Run(&p)

		require.LessOrEqual(t, res.State.Cycle, engine.Config().MaxCycles)
		require.Equal(t, res.State.Cycle+1, len(res.State.History))
		assert.Equal(t, 1.0, res.State.History[0])
		for c := 1; c < len(res.State.History); c++ {
			e := res.State.History[c]
			require.LessOrEqual(t, e, res.State.History[c-1], "profile %d cycle %d", i, c)
			require.GreaterOrEqual(t, e, 0.0)
		}
	}
}

func TestStep_SatisfactionMonotonic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	r := rand.New(rand.NewPCG(3, 5))
	p := randomProfile(r)

	state := NewState()
	last := state.Satisfaction
	for i := 0; i < 10; i++ {
		state, _ = engine.Step(&p, state)
		assert.GreaterOrEqual(t, state.Satisfaction, last)
		last = state.Satisfaction
	}
}

func TestStep_CycleLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCycles = 1
	engine := NewEngine(cfg)
	p := sharedFeatureProfile(atoms.FacetResolve, 0.9, atoms.GroupMeaning, atoms.GroupVolition)

	res := engine.Run(&p)
	assert.Equal(t, 1, res.State.Cycle)
	assert.Equal(t, StopCycleLimit, res.Reason)
	assert.False(t, res.Converged)
}

func TestMomentCheck_RequiresAllFour(t *testing.T) {
	for mask := 0; mask < 16; mask++ {
		m := MomentCheck{
			InWindow:           mask&1 != 0,
			SatisfactionRising: mask&2 != 0,
			SmallDelta:         mask&4 != 0,
			Coherent:           mask&8 != 0,
		}
		t.Run(fmt.Sprintf("mask_%04b", mask), func(t *testing.T) {
			assert.Equal(t, mask == 15, m.Fires())
		})
	}
}

func TestEngineMoment_ExactlyThreeNeverFires(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	prev := State{Energy: 0.32, Satisfaction: 0.5}
	good := State{Energy: 0.30, Satisfaction: 0.6}

	tests := []struct {
		name     string
		prev     State
		next     State
		coherent float64
	}{
		{"energy outside window", State{Energy: 0.42, Satisfaction: 0.5}, State{Energy: 0.40, Satisfaction: 0.6}, 0.7},
		{"satisfaction flat", prev, State{Energy: 0.30, Satisfaction: 0.5}, 0.7},
		{"delta too large", State{Energy: 0.40, Satisfaction: 0.5}, good, 0.7},
		{"coherence too low", prev, good, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := engine.Moment(tt.prev, tt.next, tt.coherent)
			trues := 0
			for _, b := range []bool{m.InWindow, m.SatisfactionRising, m.SmallDelta, m.Coherent} {
				if b {
					trues++
				}
			}
			require.Equal(t, 3, trues)
			assert.False(t, m.Fires())
		})
	}

	assert.True(t, engine.Moment(prev, good, 0.7).Fires())
}

func TestRun_SharedFeatureMissesWindow(t *testing.T) {
	// Cycle 2 lands inside the window but the drop is still too steep.
	engine := NewEngine(DefaultConfig())
	p := sharedFeatureProfile(atoms.FacetDistress, 0.7,
		atoms.GroupAffect, atoms.GroupSomatic, atoms.GroupRelational)

	res := engine.Run(&p)
	assert.False(t, res.Opportune)
}
