package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func base() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestNewSnapshotAllOKWithNoSubsystems(t *testing.T) {
	m := New(base(), "test-session")
	snap := m.Snapshot(base())
	require.True(t, snap.AllOK())
	require.Empty(t, snap.Warnings())
}

func TestReportSubsystemUnhealthyProducesWarning(t *testing.T) {
	m := New(base(), "test-session")
	m.ReportSubsystem("uart", false, "disconnected", base())
	snap := m.Snapshot(base())
	require.False(t, snap.AllOK())
	require.Contains(t, snap.Warnings(), "uart: disconnected")
}

func TestStaleSubsystemProducesWarning(t *testing.T) {
	m := New(base(), "test-session")
	m.ReportSubsystem("camera", true, "30fps", base())
	snap := m.Snapshot(base().Add(10 * time.Second))
	require.True(t, snap.AllOK())
	require.Len(t, snap.Warnings(), 1)
}

func TestFixRateComputedFromWindow(t *testing.T) {
	m := New(base(), "test-session")
	t0 := base()
	for i := 0; i < 10; i++ {
		m.RecordFix(t0.Add(time.Duration(i)*100*time.Millisecond), i%2 == 0, 10*time.Millisecond)
	}
	snap := m.Snapshot(t0)
	require.InDelta(t, 0.5, snap.FixRate, 1e-9)
}

func TestLowFixRateWarns(t *testing.T) {
	m := New(base(), "test-session")
	t0 := base()
	for i := 0; i < 5; i++ {
		m.RecordFix(t0.Add(time.Duration(i)*100*time.Millisecond), false, 1*time.Millisecond)
	}
	snap := m.Snapshot(t0)
	found := false
	for _, w := range snap.Warnings() {
		if w == "fix rate low: 0%" {
			found = true
		}
	}
	require.True(t, found)
}

func TestConsecutiveMissResetsOnSuccess(t *testing.T) {
	m := New(base(), "test-session")
	t0 := base()
	for i := 0; i < 6; i++ {
		m.RecordFix(t0, false, time.Millisecond)
	}
	snap := m.Snapshot(t0)
	require.GreaterOrEqual(t, snap.ConsecutiveMiss, maxConsecMisses)

	m.RecordFix(t0, true, time.Millisecond)
	snap = m.Snapshot(t0)
	require.Equal(t, 0, snap.ConsecutiveMiss)
}

func TestHighLatencyWarns(t *testing.T) {
	m := New(base(), "test-session")
	m.RecordFix(base(), true, 500*time.Millisecond)
	snap := m.Snapshot(base())
	found := false
	for _, w := range snap.Warnings() {
		if w == "latency high: 500ms" {
			found = true
		}
	}
	require.True(t, found)
}

func TestFPSFromFrameTimes(t *testing.T) {
	m := New(base(), "test-session")
	t0 := base()
	for i := 0; i < 11; i++ {
		m.RecordFix(t0.Add(time.Duration(i)*100*time.Millisecond), true, time.Millisecond)
	}
	snap := m.Snapshot(t0)
	require.InDelta(t, 10.0, snap.FPS, 0.01)
}

func TestSummaryIncludesPositionSource(t *testing.T) {
	m := New(base(), "test-session")
	m.SetPositionSource("visual")
	snap := m.Snapshot(base())
	require.Contains(t, snap.Summary(), "Position: visual")
}

func TestSnapshotCarriesSessionID(t *testing.T) {
	m := New(base(), "sess-42")
	snap := m.Snapshot(base())
	require.Equal(t, "sess-42", snap.SessionID)
	require.Contains(t, snap.Summary(), "sess-42")
}
