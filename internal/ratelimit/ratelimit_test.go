package ratelimit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowFirstCallWithFullBucket(t *testing.T) {
	l := New(5, 2)
	require.True(t, l.Allow(time.Now()))
}

// TestThroughput exercises spec property 5: with max_hz=H and a uniform
// 10*H input rate over T seconds, admitted events equal floor(H*T+burst)+-1.
func TestThroughput(t *testing.T) {
	const hz = 10.0
	const burst = 2
	const seconds = 5.0

	l := New(hz, burst)
	t0 := time.Now()
	step := time.Duration(float64(time.Second) / (10 * hz))

	admitted := 0
	n := int(seconds * 10 * hz)
	for i := 0; i < n; i++ {
		if l.Allow(t0.Add(time.Duration(i) * step)) {
			admitted++
		}
	}

	want := int(math.Floor(hz*seconds + burst))
	require.InDelta(t, want, admitted, 1)
}

// TestScenarioS5 matches spec scenario S5: max_hz=5, burst=1, allow(t) at
// t=0,0.05,...,1.00 (21 calls); total admits in {5,6}.
func TestScenarioS5(t *testing.T) {
	l := New(5, 1)
	t0 := time.Now()
	admitted := 0
	for i := 0; i <= 20; i++ {
		ts := t0.Add(time.Duration(float64(i)*0.05*float64(time.Second)))
		if l.Allow(ts) {
			admitted++
		}
	}
	require.Contains(t, []int{5, 6}, admitted)
}

func TestTimeUntilNextZeroWhenTokenAvailable(t *testing.T) {
	l := New(5, 2)
	t0 := time.Now()
	require.Equal(t, time.Duration(0), l.TimeUntilNext(t0))
}

func TestTimeUntilNextPositiveWhenDepleted(t *testing.T) {
	l := New(5, 1)
	t0 := time.Now()
	require.True(t, l.Allow(t0))
	require.False(t, l.Allow(t0)) // bucket empty immediately after

	d := l.TimeUntilNext(t0)
	require.Greater(t, d, time.Duration(0))
}

func TestStatsCounting(t *testing.T) {
	l := New(1, 1)
	t0 := time.Now()
	require.True(t, l.Allow(t0))
	require.False(t, l.Allow(t0))
	require.False(t, l.Allow(t0))

	stats := l.Stats()
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.Accepted)
	require.Equal(t, 2, stats.Throttled)
}
