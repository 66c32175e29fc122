// Package geo implements the Web Mercator projection math used to convert
// between tile-pixel coordinates and geodetic positions, plus the
// great-circle helpers used for radius queries and distance checks.
package geo

import (
	"fmt"
	"math"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// EarthRadiusKm is the mean Earth radius used for haversine distance.
const EarthRadiusKm = 6371.0

// metersPerPixelAtEquator is the Web Mercator ground resolution constant at
// zoom 0, one tile wide.
const metersPerPixelAtEquator = 156543.03392

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Valid reports whether p lies within the legal latitude/longitude range.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// TileCoord addresses a single 256x256 Web Mercator tile.
type TileCoord struct {
	Z, X, Y int
}

// MetersPerPixel returns the ground resolution at the equator for z.
func (t TileCoord) MetersPerPixel() float64 {
	return metersPerPixelAtEquator / math.Pow(2, float64(t.Z))
}

// TilePixel is a pixel address within a tile, px/py in [0, 256).
type TilePixel struct {
	Tile   TileCoord
	PX, PY float64
}

// TilePixelToGPS converts a tile-pixel address to a geodetic position using
// the standard Web Mercator inverse projection.
func TilePixelToGPS(tp TilePixel) GeoPoint {
	n := math.Pow(2, float64(tp.Tile.Z))
	lon := (float64(tp.Tile.X)+tp.PX/256.0)/n*360.0 - 180.0
	yFrac := (float64(tp.Tile.Y) + tp.PY/256.0) / n
	lat := math.Atan(math.Sinh(math.Pi*(1-2*yFrac))) * 180.0 / math.Pi
	return GeoPoint{Lat: lat, Lon: lon}
}

// GPSToTilePixel converts a geodetic position to a tile-pixel address at
// zoom z. Tile indices are clamped to [0, 2^z).
func GPSToTilePixel(p GeoPoint, z int) TilePixel {
	n := math.Pow(2, float64(z))
	latRad := p.Lat * math.Pi / 180.0

	xTileF := (p.Lon + 180.0) / 360.0 * n
	yTileF := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n

	maxIdx := n - 1
	xTile := clamp(math.Floor(xTileF), 0, maxIdx)
	yTile := clamp(math.Floor(yTileF), 0, maxIdx)

	px := (xTileF - math.Floor(xTileF)) * 256.0
	py := (yTileF - math.Floor(yTileF)) * 256.0

	return TilePixel{
		Tile: TileCoord{Z: z, X: int(xTile), Y: int(yTile)},
		PX:   px,
		PY:   py,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HomographyToGPS projects a drone-frame pixel center through a 3x3
// homography H (row-major, A->B) into tile-plane pixel coordinates, then
// converts the result to a geodetic position via tile. If the homogeneous
// component is smaller than 1e-10 in magnitude, it returns the sentinel
// GeoPoint{0,0} per the degeneracy guard.
func HomographyToGPS(h [9]float64, tile TileCoord, cx, cy float64) GeoPoint {
	x := h[0]*cx + h[1]*cy + h[2]
	y := h[3]*cx + h[4]*cy + h[5]
	w := h[6]*cx + h[7]*cy + h[8]

	if math.Abs(w) < 1e-10 {
		return GeoPoint{Lat: 0, Lon: 0}
	}

	px := x / w
	py := y / w
	return TilePixelToGPS(TilePixel{Tile: tile, PX: px, PY: py})
}

// HaversineKm returns the great-circle distance between a and b in
// kilometers using EarthRadiusKm.
func HaversineKm(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// TilesInRadius returns every tile at zoom whose center lies within
// 1.2*radiusKm of center (a 20% overlap margin), first narrowing with a
// latitude-corrected bounding box and then filtering by great-circle
// distance.
func TilesInRadius(center GeoPoint, radiusKm float64, zoom int) ([]TileCoord, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("tiles in radius: non-positive radius %v: %w", radiusKm, perr.ErrInvalidInput)
	}
	margin := radiusKm * 1.2

	latRad := center.Lat * math.Pi / 180.0
	lonCorrection := math.Cos(latRad)
	if lonCorrection < 1e-6 {
		lonCorrection = 1e-6
	}

	dLat := margin / EarthRadiusKm * 180.0 / math.Pi
	dLon := margin / (EarthRadiusKm * lonCorrection) * 180.0 / math.Pi

	nw := GeoPoint{Lat: clampLat(center.Lat + dLat), Lon: center.Lon - dLon}
	se := GeoPoint{Lat: clampLat(center.Lat - dLat), Lon: center.Lon + dLon}

	nwPix := GPSToTilePixel(nw, zoom)
	sePix := GPSToTilePixel(se, zoom)

	var out []TileCoord
	for x := nwPix.Tile.X; x <= sePix.Tile.X; x++ {
		for y := nwPix.Tile.Y; y <= sePix.Tile.Y; y++ {
			tc := TileCoord{Z: zoom, X: x, Y: y}
			tileCenter := TilePixelToGPS(TilePixel{Tile: tc, PX: 128, PY: 128})
			if HaversineKm(center, tileCenter) <= margin {
				out = append(out, tc)
			}
		}
	}
	return out, nil
}

func clampLat(lat float64) float64 {
	if lat > 85 {
		return 85
	}
	if lat < -85 {
		return -85
	}
	return lat
}
