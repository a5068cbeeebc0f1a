package domain

import "time"

// Resilience score bounds and the neutral starting point.
const (
	ResilienceMin     = 0.0
	ResilienceMax     = 100.0
	ResilienceInitial = 75.0
)

// ResilienceBand is the qualitative display band for a score.
// Bands are derived for presentation and never persisted.
type ResilienceBand string

const (
	BandExcellent ResilienceBand = "excellent"
	BandGood      ResilienceBand = "good"
	BandFair      ResilienceBand = "fair"
	BandPoor      ResilienceBand = "poor"
)

// MemorySnapshot is a read-only copy of the full immune memory state,
// served to dashboards and the debug endpoint without holding the
// store's write lock.
type MemorySnapshot struct {
	Patterns        []*EconomicPattern           `json:"patterns"`
	Profiles        map[string]*RecipientProfile `json:"profiles"`
	Signals         []*RiskSignal                `json:"signals"`
	Adaptations     []*AdaptationEvent           `json:"adaptations"`
	ResilienceScore int                          `json:"resilienceScore"`
	Band            ResilienceBand               `json:"band"`
	LastUpdated     time.Time                    `json:"lastUpdated"`
}
