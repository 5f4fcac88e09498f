package stream

import (
	"sync/atomic"
	"time"
)

// Stats holds the bus counters. Created once at bus startup and never reset.
type Stats struct {
	produced     atomic.Int64
	consumed     atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Int64
	connected    atomic.Bool
	simulation   atomic.Bool
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	MessagesProduced int64     `json:"messages_produced"`
	MessagesConsumed int64     `json:"messages_consumed"`
	Errors           int64     `json:"errors"`
	LastActivity     time.Time `json:"last_activity"`
	Connected        bool      `json:"connected"`
	SimulationMode   bool      `json:"simulation_mode"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordProduced(at time.Time) {
	s.produced.Add(1)
	s.touch(at)
}

func (s *Stats) RecordConsumed(at time.Time) {
	s.consumed.Add(1)
	s.touch(at)
}

func (s *Stats) RecordError(at time.Time) {
	s.errors.Add(1)
	s.touch(at)
}

func (s *Stats) SetConnected(v bool) {
	s.connected.Store(v)
}

func (s *Stats) SetSimulation(v bool) {
	s.simulation.Store(v)
}

func (s *Stats) touch(at time.Time) {
	s.lastActivity.Store(at.UnixNano())
}

// Snapshot returns the current counter values
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		MessagesProduced: s.produced.Load(),
		MessagesConsumed: s.consumed.Load(),
		Errors:           s.errors.Load(),
		Connected:        s.connected.Load(),
		SimulationMode:   s.simulation.Load(),
	}
	if ns := s.lastActivity.Load(); ns != 0 {
		snap.LastActivity = time.Unix(0, ns).UTC()
	}
	return snap
}
