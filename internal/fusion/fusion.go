// Package fusion orchestrates the EKF, dead reckoner, and geofence into
// the single per-frame FusionEngine.Update call the frame loop drives.
package fusion

import (
	"math"
	"time"

	"github.com/dabubi/drone-visual-positioning/internal/deadreckon"
	"github.com/dabubi/drone-visual-positioning/internal/ekf"
	"github.com/dabubi/drone-visual-positioning/internal/geo"
	"github.com/dabubi/drone-visual-positioning/internal/geofence"
	"github.com/dabubi/drone-visual-positioning/internal/monitoring"
)

// Fix quality tags, per the data model.
const (
	QualityNone         = 0
	QualityVisual       = 1
	QualityEKFPredict   = 2
	QualityDeadReckoned = 3
)

// predictedHDOP is the degraded confidence value published alongside a
// pure EKF prediction (no fresh visual fix this tick).
const predictedHDOP = 3.0

// noFixHDOP is reported when there is no position to publish.
const noFixHDOP = 99.0

// minHeadingSpeedMps is the speed floor below which heading is reported as
// zero rather than a noisy atan2 of near-zero velocity components.
const minHeadingSpeedMps = 0.5

// Output is the result of one FusionEngine.Update call.
type Output struct {
	Position    *geo.GeoPoint
	HDOP        float64
	SpeedMps    float64
	HeadingDeg  float64
	FixQuality  int
	Source      string
	GeofenceOK  bool
	EKFAccepted bool
}

// Engine owns the EKF, dead reckoner, and optional geofence exclusively;
// it is not safe for concurrent use.
type Engine struct {
	filter *ekf.Filter
	dr     *deadreckon.State
	fence  *geofence.Checker
}

// New creates an Engine. fence may be nil to disable geofencing.
func New(filter *ekf.Filter, dr *deadreckon.State, fence *geofence.Checker) *Engine {
	return &Engine{filter: filter, dr: dr, fence: fence}
}

// Update processes one frame's positioning result. visual is nil when no
// visual fix was produced this tick.
func (e *Engine) Update(visual *geo.GeoPoint, hdop float64, t time.Time) Output {
	var (
		ekfAccepted bool
		pos         *geo.GeoPoint
		outHDOP     = noFixHDOP
		source      = "none"
		quality     = QualityNone
	)

	switch {
	case visual != nil:
		ekfAccepted = e.filter.Update(*visual, hdop, t)
		if e.filter.Initialized() {
			p := e.filter.Position()
			pos = &p
			outHDOP = hdop
			source = "visual"
			quality = QualityVisual

			vn, ve := e.filter.VelocityMps()
			e.dr.Reference(p, vn, ve, hdop, t)
		}
	case e.filter.Initialized():
		predicted := e.filter.Predict(t)
		if predicted.Lat != 0 || predicted.Lon != 0 {
			pos = &predicted
			outHDOP = predictedHDOP
			source = "ekf_predict"
			quality = QualityEKFPredict
		}
	}

	if pos == nil {
		if drPos, drHDOP, ok := e.dr.Extrapolate(t); ok {
			pos = &drPos
			outHDOP = drHDOP
			source = "dead_reckoning"
			quality = QualityDeadReckoned
		}
	}

	geofenceOK := true
	if pos != nil && e.fence != nil {
		geofenceOK = e.fence.Check(*pos)
		if !geofenceOK {
			monitoring.Logf("fusion: geofence violation at %.6f,%.6f (source=%s)", pos.Lat, pos.Lon, source)
			pos = nil
			quality = QualityNone
			source = "none"
		}
	}

	var speed, heading float64
	if e.filter.Initialized() {
		speed = e.filter.SpeedMps()
		if speed > minHeadingSpeedMps {
			vn, ve := e.filter.VelocityMps()
			heading = math.Mod(math.Atan2(ve, vn)*180.0/math.Pi+360.0, 360.0)
		}
	}

	return Output{
		Position:    pos,
		HDOP:        outHDOP,
		SpeedMps:    speed,
		HeadingDeg:  heading,
		FixQuality:  quality,
		Source:      source,
		GeofenceOK:  geofenceOK,
		EKFAccepted: ekfAccepted,
	}
}

// Reset discards EKF state. The dead-reckoning reference and the geofence
// checker's violation counters are kept.
func (e *Engine) Reset() {
	e.filter.Reset()
}
