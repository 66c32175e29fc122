package geofence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dabubi/drone-visual-positioning/internal/geo"
)

func TestCircleInside(t *testing.T) {
	c := Circle{Center: geo.GeoPoint{Lat: 52.52, Lon: 13.405}, RadiusKm: 1, MarginKm: 0}
	require.True(t, c.Inside(geo.GeoPoint{Lat: 52.52, Lon: 13.405}))
	require.False(t, c.Inside(geo.GeoPoint{Lat: 52.60, Lon: 13.405}))
}

func TestRectangleInside(t *testing.T) {
	r := Rectangle{
		NW: geo.GeoPoint{Lat: 53, Lon: 13},
		SE: geo.GeoPoint{Lat: 52, Lon: 14},
	}
	require.True(t, r.Inside(geo.GeoPoint{Lat: 52.5, Lon: 13.5}))
	require.False(t, r.Inside(geo.GeoPoint{Lat: 54, Lon: 13.5}))
	require.False(t, r.Inside(geo.GeoPoint{Lat: 52.5, Lon: 20}))
}

func TestCheckerConsecutiveTracking(t *testing.T) {
	c := NewChecker(Circle{Center: geo.GeoPoint{Lat: 0, Lon: 0}, RadiusKm: 1})

	require.True(t, c.Check(geo.GeoPoint{Lat: 0, Lon: 0}))
	require.Equal(t, 0, c.ConsecutiveViolations())

	for i := 0; i < 3; i++ {
		require.False(t, c.Check(geo.GeoPoint{Lat: 10, Lon: 10}))
	}
	require.Equal(t, 3, c.ConsecutiveViolations())
	require.False(t, c.IsBreached())

	require.True(t, c.Check(geo.GeoPoint{Lat: 0, Lon: 0}))
	require.Equal(t, 0, c.ConsecutiveViolations())
	require.Equal(t, 5, c.TotalChecks())
	require.Equal(t, 3, c.TotalViolations())
}

func TestCheckerBreachAfterMaxViolations(t *testing.T) {
	c := NewChecker(Circle{Center: geo.GeoPoint{Lat: 0, Lon: 0}, RadiusKm: 1})
	c.MaxViolations = 2

	c.Check(geo.GeoPoint{Lat: 10, Lon: 10})
	require.False(t, c.IsBreached())
	c.Check(geo.GeoPoint{Lat: 10, Lon: 10})
	require.True(t, c.IsBreached())
}
