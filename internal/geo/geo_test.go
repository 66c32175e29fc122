package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTilePixelRoundTrip(t *testing.T) {
	points := []GeoPoint{
		{Lat: 52.5200, Lon: 13.4050},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0, Lon: 0},
		{Lat: 84.9, Lon: 179.9},
		{Lat: -84.9, Lon: -179.9},
	}

	for _, p := range points {
		for z := 0; z <= 20; z++ {
			tp := GPSToTilePixel(p, z)
			got := TilePixelToGPS(tp)
			distM := HaversineKm(p, got) * 1000
			require.Less(t, distM, 1.0, "zoom %d point %+v round trip off by %fm", z, p, distM)
		}
	}
}

func TestMetersPerPixel(t *testing.T) {
	tc := TileCoord{Z: 0}
	require.InDelta(t, 156543.03392, tc.MetersPerPixel(), 1e-6)

	tc = TileCoord{Z: 10}
	require.InDelta(t, 156543.03392/1024, tc.MetersPerPixel(), 1e-9)
}

func TestHomographyToGPSDegenerateSentinel(t *testing.T) {
	h := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 0}
	got := HomographyToGPS(h, TileCoord{Z: 10, X: 5, Y: 5}, 128, 128)
	require.Equal(t, GeoPoint{0, 0}, got)
}

func TestHomographyToGPSIdentity(t *testing.T) {
	h := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	tile := TileCoord{Z: 12, X: 2200, Y: 1340}
	got := HomographyToGPS(h, tile, 128, 128)
	want := TilePixelToGPS(TilePixel{Tile: tile, PX: 128, PY: 128})
	require.InDelta(t, want.Lat, got.Lat, 1e-9)
	require.InDelta(t, want.Lon, got.Lon, 1e-9)
}

func TestHaversineKnownDistance(t *testing.T) {
	berlin := GeoPoint{Lat: 52.5200, Lon: 13.4050}
	paris := GeoPoint{Lat: 48.8566, Lon: 2.3522}
	d := HaversineKm(berlin, paris)
	require.InDelta(t, 878, d, 15)
}

func TestTilesInRadiusContainsCenterTile(t *testing.T) {
	center := GeoPoint{Lat: 52.5200, Lon: 13.4050}
	tiles, err := TilesInRadius(center, 1.0, 15)
	require.NoError(t, err)
	require.NotEmpty(t, tiles)

	centerTilePix := GPSToTilePixel(center, 15)
	found := false
	for _, tc := range tiles {
		if tc == centerTilePix.Tile {
			found = true
		}
	}
	require.True(t, found, "center tile must be included in radius query")
}

func TestTilesInRadiusRejectsNonPositiveRadius(t *testing.T) {
	_, err := TilesInRadius(GeoPoint{}, 0, 10)
	require.Error(t, err)
}

func TestGPSToTilePixelClampsIndices(t *testing.T) {
	tp := GPSToTilePixel(GeoPoint{Lat: -84.99, Lon: 179.999}, 3)
	maxIdx := int(math.Pow(2, 3)) - 1
	require.LessOrEqual(t, tp.Tile.X, maxIdx)
	require.LessOrEqual(t, tp.Tile.Y, maxIdx)
	require.GreaterOrEqual(t, tp.Tile.X, 0)
	require.GreaterOrEqual(t, tp.Tile.Y, 0)
}
