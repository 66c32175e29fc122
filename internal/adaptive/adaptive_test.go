package adaptive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRelaxesWhenFixRateLow(t *testing.T) {
	// Start below the 1000-feature cap so the relax step can raise it.
	start := DefaultMatchParams()
	start.MaxFeatures = 500
	c := New(start)
	for i := 0; i < 20; i++ {
		c.Record(false, 0.1, 100)
	}
	p := c.Params()
	require.Less(t, p.MinMatches, DefaultMatchParams().MinMatches)
	require.Less(t, p.MinInlierRatio, DefaultMatchParams().MinInlierRatio)
	require.Greater(t, p.MaxFeatures, start.MaxFeatures)
}

func TestTightensWhenFixRateHigh(t *testing.T) {
	c := New(DefaultMatchParams())
	for i := 0; i < 20; i++ {
		c.Record(true, 0.8, 100)
	}
	p := c.Params()
	require.GreaterOrEqual(t, p.MinMatches, DefaultMatchParams().MinMatches)
}

func TestMinMatchesFloor(t *testing.T) {
	c := New(DefaultMatchParams())
	for i := 0; i < 200; i++ {
		c.Record(false, 0.05, 100)
	}
	require.GreaterOrEqual(t, c.Params().MinMatches, 8)
}

func TestMaxFeaturesCeiling(t *testing.T) {
	c := New(DefaultMatchParams())
	for i := 0; i < 200; i++ {
		c.Record(false, 0.05, 100)
	}
	require.LessOrEqual(t, c.Params().MaxFeatures, 1000)
}

func TestBlurFlagsNextFrameSkip(t *testing.T) {
	c := New(DefaultMatchParams())
	c.Record(true, 0.6, 10) // below default reject threshold of 50
	require.True(t, c.ShouldSkipFrame())
	require.False(t, c.ShouldSkipFrame(), "flag should clear after read")
}

func TestResetRestoresDefaults(t *testing.T) {
	c := New(DefaultMatchParams())
	for i := 0; i < 20; i++ {
		c.Record(false, 0.1, 100)
	}
	require.NotEqual(t, DefaultMatchParams(), c.Params())
	c.Reset()
	require.Equal(t, DefaultMatchParams(), c.Params())
}

func TestWindowTrimsToDoubleSize(t *testing.T) {
	c := New(DefaultMatchParams())
	for i := 0; i < 500; i++ {
		c.Record(i%2 == 0, 0.4, 100)
	}
	require.LessOrEqual(t, len(c.successes), 2*windowSize)
}
