package convergence

import "math"

// MomentCheck holds the four sub-conditions of the opportune moment.
type MomentCheck struct {
	InWindow           bool `json:"in_window"`
	SatisfactionRising bool `json:"satisfaction_rising"`
	SmallDelta         bool `json:"small_delta"`
	Coherent           bool `json:"coherent"`
}

// Fires is true only when all four conditions hold at once.
func (m MomentCheck) Fires() bool {
	return m.InWindow && m.SatisfactionRising && m.SmallDelta && m.Coherent
}

// Moment evaluates the transition prev -> next.
//
// The window is narrow compared to typical early-cycle drops; energy often
// jumps across it between cycles.
func (e *Engine) Moment(prev, next State, meanCoherence float64) MomentCheck {
	m := e.cfg.Moment
	return MomentCheck{
		InWindow:           next.Energy >= m.EnergyLow && next.Energy <= m.EnergyHigh,
		SatisfactionRising: next.Satisfaction > prev.Satisfaction,
		SmallDelta:         math.Abs(prev.Energy-next.Energy) < m.MaxDelta,
		Coherent:           meanCoherence > m.CoherenceFloor,
	}
}
