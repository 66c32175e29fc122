// Package health aggregates subsystem status and fix/latency history into a
// single snapshot suitable for logging, telemetry downlink, or a console
// dashboard.
package health

import (
	"fmt"
	"time"
)

const (
	staleAfter      = 5 * time.Second
	fixWindowSize   = 50
	lowFixRateWarn  = 0.3
	highLatencyWarn = 200 * time.Millisecond
	maxConsecMisses = 5
)

// SubsystemStatus is the last reported health of one named subsystem
// (camera, matcher, uart, ...).
type SubsystemStatus struct {
	Name        string
	OK          bool
	Message     string
	LastUpdate  time.Time
	hasLastSeen bool
}

// Age reports how long ago the subsystem last reported, or -1 if it never
// has.
func (s SubsystemStatus) Age(now time.Time) time.Duration {
	if !s.hasLastSeen {
		return -1
	}
	return now.Sub(s.LastUpdate)
}

// Stale reports whether the subsystem hasn't reported in over staleAfter.
func (s SubsystemStatus) Stale(now time.Time) bool {
	if !s.hasLastSeen {
		return false
	}
	return s.Age(now) > staleAfter
}

// Snapshot is a point-in-time view of overall system health.
type Snapshot struct {
	Timestamp       time.Time
	SessionID       string
	UptimeS         float64
	Subsystems      map[string]SubsystemStatus
	PositionSource  string
	FixRate         float64
	FPS             float64
	ConsecutiveMiss int
	AvgLatency      time.Duration

	fixSamples int // number of recorded fix outcomes behind FixRate
}

// AllOK reports whether every subsystem last reported healthy.
func (s Snapshot) AllOK() bool {
	for _, sub := range s.Subsystems {
		if !sub.OK {
			return false
		}
	}
	return true
}

// Warnings lists one line per unhealthy or stale subsystem, plus any
// pipeline-level degradations (low fix rate, high latency, missed fixes).
func (s Snapshot) Warnings() []string {
	var w []string
	for _, sub := range s.Subsystems {
		switch {
		case !sub.OK:
			w = append(w, fmt.Sprintf("%s: %s", sub.Name, sub.Message))
		case sub.Stale(s.Timestamp):
			w = append(w, fmt.Sprintf("%s: stale (%.1fs)", sub.Name, sub.Age(s.Timestamp).Seconds()))
		}
	}
	if s.fixSamples > 0 && s.FixRate < lowFixRateWarn {
		w = append(w, fmt.Sprintf("fix rate low: %.0f%%", s.FixRate*100))
	}
	if s.AvgLatency > highLatencyWarn {
		w = append(w, fmt.Sprintf("latency high: %s", s.AvgLatency))
	}
	if s.ConsecutiveMiss >= maxConsecMisses {
		w = append(w, fmt.Sprintf("consecutive misses: %d", s.ConsecutiveMiss))
	}
	return w
}

// Summary renders a short human-readable status block.
func (s Snapshot) Summary() string {
	status := "OK"
	if !s.AllOK() {
		status = "DEGRADED"
	}
	out := fmt.Sprintf("System: %s [%s] | up %.0fs\n  Position: %s | fix rate: %.0f%%\n  FPS: %.1f | latency: %s",
		status, s.SessionID, s.UptimeS, s.PositionSource, s.FixRate*100, s.FPS, s.AvgLatency)
	for _, w := range s.Warnings() {
		out += "\n  WARN: " + w
	}
	return out
}

// Monitor aggregates subsystem reports and fix/latency samples over the
// locator's run and produces Snapshots on demand.
type Monitor struct {
	start     time.Time
	sessionID string

	subsystems map[string]SubsystemStatus

	positionSource string

	fixResults      []bool
	latencies       []time.Duration
	frameTimes      []time.Time
	consecutiveMiss int
}

// New creates a Monitor whose uptime is measured from now. sessionID
// identifies this run in logs, the flight record, and the telemetry sink
// (see internal/recorder, internal/telemetry), so the three can be
// correlated after the fact.
func New(now time.Time, sessionID string) *Monitor {
	return &Monitor{start: now, sessionID: sessionID, subsystems: make(map[string]SubsystemStatus)}
}

// ReportSubsystem records the health of a named subsystem at t.
func (m *Monitor) ReportSubsystem(name string, ok bool, message string, t time.Time) {
	m.subsystems[name] = SubsystemStatus{Name: name, OK: ok, Message: message, LastUpdate: t, hasLastSeen: true}
}

// RecordFix records the outcome and processing latency of one pipeline
// iteration. A run of maxConsecMisses or more failures without a success
// is surfaced as a warning in the next Snapshot.
func (m *Monitor) RecordFix(t time.Time, success bool, latency time.Duration) {
	m.frameTimes = append(m.frameTimes, t)
	if len(m.frameTimes) > 2*fixWindowSize {
		m.frameTimes = m.frameTimes[len(m.frameTimes)-fixWindowSize:]
	}

	m.fixResults = append(m.fixResults, success)
	if len(m.fixResults) > 2*fixWindowSize {
		m.fixResults = m.fixResults[len(m.fixResults)-fixWindowSize:]
	}

	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > 2*fixWindowSize {
		m.latencies = m.latencies[len(m.latencies)-fixWindowSize:]
	}

	if success {
		m.consecutiveMiss = 0
	} else {
		m.consecutiveMiss++
	}
}

// SetPositionSource records which fusion source most recently produced a
// fix ("visual", "ekf_predict", "dead_reckoning", or "none").
func (m *Monitor) SetPositionSource(source string) {
	m.positionSource = source
}

// Snapshot computes the current aggregate health at t.
func (m *Monitor) Snapshot(t time.Time) Snapshot {
	subs := make(map[string]SubsystemStatus, len(m.subsystems))
	for k, v := range m.subsystems {
		subs[k] = v
	}

	return Snapshot{
		Timestamp:       t,
		SessionID:       m.sessionID,
		UptimeS:         t.Sub(m.start).Seconds(),
		Subsystems:      subs,
		PositionSource:  m.positionSource,
		FixRate:         m.fixRate(),
		FPS:             m.fps(),
		ConsecutiveMiss: m.consecutiveMiss,
		AvgLatency:      m.avgLatency(),
		fixSamples:      len(m.fixResults),
	}
}

func (m *Monitor) fixRate() float64 {
	if len(m.fixResults) == 0 {
		return 0
	}
	n := 0
	for _, ok := range m.fixResults {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(m.fixResults))
}

func (m *Monitor) fps() float64 {
	if len(m.frameTimes) < 2 {
		return 0
	}
	dt := m.frameTimes[len(m.frameTimes)-1].Sub(m.frameTimes[0]).Seconds()
	if dt <= 0 {
		return 0
	}
	return float64(len(m.frameTimes)-1) / dt
}

func (m *Monitor) avgLatency() time.Duration {
	if len(m.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range m.latencies {
		total += l
	}
	return total / time.Duration(len(m.latencies))
}
