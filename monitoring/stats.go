package monitoring

import (
	"sync"
	"time"
)

// Stats tracks process-wide request outcomes. Counters only; history
// and aggregation belong to whatever scrapes /api/stats.
type Stats struct {
	mu sync.RWMutex

	predictRequests    int64
	predictions        int64
	validationFailures int64
	duplicates         int64
	updates            int64
	updateMisses       int64

	startTime time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PredictRequests    int64  `json:"predict_requests"`
	Predictions        int64  `json:"predictions"`
	ValidationFailures int64  `json:"validation_failures"`
	Duplicates         int64  `json:"duplicates"`
	Updates            int64  `json:"updates"`
	UpdateMisses       int64  `json:"update_misses"`
	Uptime             string `json:"uptime"`
}

// NewStats creates a stats collector.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncPredictRequests() { s.inc(&s.predictRequests) }
func (s *Stats) IncPredictions()     { s.inc(&s.predictions) }
func (s *Stats) IncValidationFailures() {
	s.inc(&s.validationFailures)
}
func (s *Stats) IncDuplicates()   { s.inc(&s.duplicates) }
func (s *Stats) IncUpdates()      { s.inc(&s.updates) }
func (s *Stats) IncUpdateMisses() { s.inc(&s.updateMisses) }

func (s *Stats) inc(counter *int64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		PredictRequests:    s.predictRequests,
		Predictions:        s.predictions,
		ValidationFailures: s.validationFailures,
		Duplicates:         s.duplicates,
		Updates:            s.updates,
		UpdateMisses:       s.updateMisses,
		Uptime:             time.Since(s.startTime).Round(time.Second).String(),
	}
}
