// Package deadreckon implements constant-velocity position extrapolation
// used when the fusion engine has no EKF state to fall back on.
package deadreckon

import (
	"math"
	"time"

	"github.com/dabubi/drone-visual-positioning/internal/geo"
)

// Params configures extrapolation limits and HDOP inflation.
type Params struct {
	MaxExtrapS     float64 // maximum extrapolation horizon, seconds
	HDOPGrowthRate float64 // HDOP growth per second of extrapolation
}

// DefaultParams returns the defaults named in the dead-reckoning spec.
func DefaultParams() Params {
	return Params{
		MaxExtrapS:     10.0,
		HDOPGrowthRate: 1.0,
	}
}

// State holds the single reference used for extrapolation: the last fixed
// position, its velocity in meters/second, the base HDOP at fix time, and
// the fix's timestamp.
type State struct {
	params Params

	referenced bool
	lastFix    geo.GeoPoint
	vn, ve     float64
	baseHDOP   float64
	refTime    time.Time
}

// New creates a DeadReckoner with the given parameters.
func New(params Params) *State {
	return &State{params: params}
}

// Reference replaces the dead-reckoning reference atomically. Called
// whenever the FusionEngine accepts a visual fix.
func (s *State) Reference(fix geo.GeoPoint, vn, ve, baseHDOP float64, t time.Time) {
	s.referenced = true
	s.lastFix = fix
	s.vn = vn
	s.ve = ve
	s.baseHDOP = baseHDOP
	s.refTime = t
}

// Referenced reports whether at least one visual fix has ever been recorded.
func (s *State) Referenced() bool { return s.referenced }

// Extrapolate returns an extrapolated position and inflated HDOP at time t,
// or ok=false if the reckoner is unreferenced, dt is negative, or dt exceeds
// MaxExtrapS.
func (s *State) Extrapolate(t time.Time) (pos geo.GeoPoint, hdop float64, ok bool) {
	if !s.referenced {
		return geo.GeoPoint{}, 0, false
	}

	dt := t.Sub(s.refTime).Seconds()
	if dt < 0 || dt > s.params.MaxExtrapS {
		return geo.GeoPoint{}, 0, false
	}

	dlat := s.vn * dt / 111320.0
	latRad := s.lastFix.Lat * math.Pi / 180.0
	cosLat := math.Cos(latRad)
	if math.Abs(cosLat) < 1e-9 {
		cosLat = 1e-9
	}
	dlon := s.ve * dt / (111320.0 * cosLat)

	pos = geo.GeoPoint{Lat: s.lastFix.Lat + dlat, Lon: s.lastFix.Lon + dlon}
	hdop = s.baseHDOP + s.params.HDOPGrowthRate*dt
	return pos, hdop, true
}
