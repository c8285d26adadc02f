package core

import (
	"sync"
	"time"

	"github.com/truxe-io/admission/service/breaker"
	"github.com/truxe-io/admission/service/detector"
)

// Stats accumulates engine-level counters. Low frequency, single structure,
// a plain mutex is enough.
type Stats struct {
	mu        sync.Mutex
	allowed   uint64
	checks    uint64
	degraded  uint64
	deniedBy  map[string]uint64
	startedAt time.Time
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{
		deniedBy:  map[string]uint64{},
		startedAt: time.Now().UTC(),
	}
}

// StatsSnapshot is the read-only view returned to administrative callers.
type StatsSnapshot struct {
	Allowed   uint64            `json:"allowed"`
	Checks    uint64            `json:"checks"`
	Degraded  uint64            `json:"degraded"`
	Denied    uint64            `json:"denied"`
	DeniedBy  map[string]uint64 `json:"deniedBy"`
	StartedAt time.Time         `json:"startedAt"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn := StatsSnapshot{
		Allowed:   s.allowed,
		Checks:    s.checks,
		Degraded:  s.degraded,
		DeniedBy:  make(map[string]uint64, len(s.deniedBy)),
		StartedAt: s.startedAt,
	}

	for reason, count := range s.deniedBy {
		sn.DeniedBy[reason] = count
		sn.Denied += count
	}

	return sn
}

func (s *Stats) allow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowed++
}

func (s *Stats) check() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks++
}

func (s *Stats) degrade() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.degraded++
}

func (s *Stats) denied(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deniedBy[reason]++
}

// Statistics is the full administrative view of the engine.
type Statistics struct {
	Breakers   []breaker.Snapshot  `json:"breakers"`
	Emergency  bool                `json:"emergency"`
	Engine     StatsSnapshot       `json:"engine"`
	Thresholds detector.Thresholds `json:"thresholds"`
}

// StatisticsFunc returns the current engine statistics.
type StatisticsFunc func() Statistics

// StatisticsGet composes the administrative statistics view.
func StatisticsGet(
	stats *Stats,
	breakers breaker.Service,
	d *detector.Detector,
) StatisticsFunc {
	return func() Statistics {
		st := Statistics{
			Breakers: breakers.Snapshots(),
			Engine:   stats.Snapshot(),
		}

		if d != nil {
			st.Emergency = d.EmergencyActive()
			st.Thresholds = d.Thresholds()
		}

		return st
	}
}
