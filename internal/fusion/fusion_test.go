package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dabubi/drone-visual-positioning/internal/deadreckon"
	"github.com/dabubi/drone-visual-positioning/internal/ekf"
	"github.com/dabubi/drone-visual-positioning/internal/geo"
	"github.com/dabubi/drone-visual-positioning/internal/geofence"
)

func newEngine() *Engine {
	return New(ekf.New(ekf.DefaultParams()), deadreckon.New(deadreckon.DefaultParams()), nil)
}

func TestFirstVisualFixProducesVisualQuality(t *testing.T) {
	e := newEngine()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := geo.GeoPoint{Lat: 52.52, Lon: 13.405}

	out := e.Update(&pos, 1.0, base)
	require.NotNil(t, out.Position)
	require.Equal(t, QualityVisual, out.FixQuality)
	require.Equal(t, "visual", out.Source)
	require.True(t, out.EKFAccepted)
	require.True(t, out.GeofenceOK)
}

func TestMissingVisualFixAfterInitFallsBackToPredict(t *testing.T) {
	e := newEngine()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := geo.GeoPoint{Lat: 52.52, Lon: 13.405}
	e.Update(&pos, 1.0, base)

	out := e.Update(nil, 1.0, base.Add(500*time.Millisecond))
	require.Equal(t, QualityEKFPredict, out.FixQuality)
	require.Equal(t, "ekf_predict", out.Source)
	require.False(t, out.EKFAccepted)
}

func TestNoStateFallsBackToDeadReckoningOnlyAfterReference(t *testing.T) {
	e := newEngine()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// No visual fix, no EKF state, no dead-reckoning reference yet: no fix.
	out := e.Update(nil, 1.0, base)
	require.Nil(t, out.Position)
	require.Equal(t, QualityNone, out.FixQuality)
	require.Equal(t, "none", out.Source)
}

func TestGeofenceViolationSuppressesPosition(t *testing.T) {
	fence := geofence.NewChecker(geofence.Circle{
		Center:   geo.GeoPoint{Lat: 52.52, Lon: 13.405},
		RadiusKm: 1.0,
	})
	e := New(ekf.New(ekf.DefaultParams()), deadreckon.New(deadreckon.DefaultParams()), fence)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	farAway := geo.GeoPoint{Lat: 53.0, Lon: 13.405}

	out := e.Update(&farAway, 1.0, base)
	require.Nil(t, out.Position)
	require.Equal(t, "none", out.Source)
	require.False(t, out.GeofenceOK)
	require.Equal(t, QualityNone, out.FixQuality)
}

func TestHeadingZeroBelowSpeedFloor(t *testing.T) {
	e := newEngine()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := geo.GeoPoint{Lat: 52.52, Lon: 13.405}
	out := e.Update(&pos, 1.0, base)
	require.Zero(t, out.HeadingDeg)
	require.Zero(t, out.SpeedMps)
}

func TestDeadReckoningTakesOverAfterEKFReset(t *testing.T) {
	e := newEngine()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := geo.GeoPoint{Lat: 52.52, Lon: 13.405}

	e.Update(&pos, 1.0, base)
	e.Reset()

	// With the EKF reset but a dead-reckoning reference still set from the
	// earlier visual fix, a frame with no visual input should fall through
	// to extrapolation.
	out := e.Update(nil, 1.0, base.Add(2*time.Second))
	require.Equal(t, QualityDeadReckoned, out.FixQuality)
	require.Equal(t, "dead_reckoning", out.Source)
}
