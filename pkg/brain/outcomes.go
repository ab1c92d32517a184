package brain

import (
	"sync"
	"time"

	"github.com/normanking/resonance/pkg/safety"
	"github.com/normanking/resonance/pkg/synthesis"
)

// TurnRecord captures a finished turn for aggregate analysis.
type TurnRecord struct {
	TurnID     string             `json:"turn_id"`
	Strategy   synthesis.Strategy `json:"strategy"`
	Zone       safety.Zone        `json:"zone"`
	Confidence float64            `json:"confidence"`
	Overridden bool               `json:"overridden"`
	Crisis     bool               `json:"crisis"`
	Cycles     int                `json:"cycles"`
	Energy     float64            `json:"energy"`
	Opportune  bool               `json:"opportune"`
	Degraded   bool               `json:"degraded"`
	ClusterID  string             `json:"cluster_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// OutcomeLogger keeps a bounded history of turn records.
type OutcomeLogger struct {
	mu      sync.RWMutex
	records []TurnRecord
	maxSize int
}

// NewOutcomeLogger creates a logger holding at most maxInMemory records.
func NewOutcomeLogger(maxInMemory int) *OutcomeLogger {
	if maxInMemory <= 0 {
		maxInMemory = 1000
	}
	return &OutcomeLogger{
		records: make([]TurnRecord, 0, maxInMemory),
		maxSize: maxInMemory,
	}
}

// Log records a turn, evicting the oldest record when full.
func (l *OutcomeLogger) Log(record TurnRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if len(l.records) >= l.maxSize {
		l.records = l.records[1:]
	}
	l.records = append(l.records, record)
}

// Recent returns up to n of the newest records, oldest first.
func (l *OutcomeLogger) Recent(n int) []TurnRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]TurnRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Stats aggregates the logged turns.
type Stats struct {
	Turns          int                        `json:"turns"`
	StrategyUsage  map[synthesis.Strategy]int `json:"strategy_usage"`
	ZoneUsage      map[safety.Zone]int        `json:"zone_usage"`
	OverrideRate   float64                    `json:"override_rate"`
	CrisisCount    int                        `json:"crisis_count"`
	OpportuneCount int                        `json:"opportune_count"`
	DegradedCount  int                        `json:"degraded_count"`
	MeanCycles     float64                    `json:"mean_cycles"`
	MeanConfidence float64                    `json:"mean_confidence"`
}

// Stats returns aggregate statistics over the history.
func (l *OutcomeLogger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		Turns:         len(l.records),
		StrategyUsage: make(map[synthesis.Strategy]int),
		ZoneUsage:     make(map[safety.Zone]int),
	}

	var overridden, cycles int
	var confidence float64
	for _, r := range l.records {
		stats.StrategyUsage[r.Strategy]++
		stats.ZoneUsage[r.Zone]++
		cycles += r.Cycles
		confidence += r.Confidence
		if r.Overridden {
			overridden++
		}
		if r.Crisis {
			stats.CrisisCount++
		}
		if r.Opportune {
			stats.OpportuneCount++
		}
		if r.Degraded {
			stats.DegradedCount++
		}
	}

	if n := float64(len(l.records)); n > 0 {
		stats.OverrideRate = float64(overridden) / n
		stats.MeanCycles = float64(cycles) / n
		stats.MeanConfidence = confidence / n
	}
	return stats
}
