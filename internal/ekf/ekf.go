// Package ekf implements the constant-velocity extended Kalman filter that
// fuses visual position fixes into a smoothed state with Mahalanobis outlier
// gating. The state is small (4x4 covariance) so gonum/mat's dense solver is
// used directly rather than hand-unrolling the linear algebra.
package ekf

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/dabubi/drone-visual-positioning/internal/geo"
)

// Params holds the tunable noise and gating parameters for the filter.
type Params struct {
	QPos    float64 // process noise, position, deg^2/s
	QVel    float64 // process noise, velocity, (deg/s)^2/s
	R       float64 // measurement noise, deg^2
	Gate    float64 // Mahalanobis^2 gate threshold
	MaxGapS float64 // max time gap before forced reset, seconds
}

// DefaultParams returns the defaults named in the filter specification.
func DefaultParams() Params {
	return Params{
		QPos:    1e-9,
		QVel:    1e-7,
		R:       1e-8,
		Gate:    9.0,
		MaxGapS: 5.0,
	}
}

// Filter is a 4-state (lat, lon, vlat, vlon) constant-velocity EKF.
// It is not safe for concurrent use; the FusionEngine owns it exclusively.
type Filter struct {
	params Params

	initialized bool
	x           *mat.VecDense // [lat, lon, vlat, vlon]
	p           *mat.Dense    // 4x4

	lastTime         time.Time
	lastInnovationKm float64
}

// New creates a Filter with the given parameters.
func New(params Params) *Filter {
	return &Filter{params: params}
}

// Initialized reports whether at least one measurement has been accepted
// since the last reset.
func (f *Filter) Initialized() bool { return f.initialized }

// LastInnovation returns the most recent Mahalanobis innovation distance
// (non-negative, units of sqrt(Mahalanobis^2)).
func (f *Filter) LastInnovation() float64 { return f.lastInnovationKm }

func (f *Filter) reset(z geo.GeoPoint, hdop float64, t time.Time) {
	f.x = mat.NewVecDense(4, []float64{z.Lat, z.Lon, 0, 0})
	f.p = mat.NewDense(4, 4, nil)
	hd := hdop
	if hd < 1 {
		hd = 1
	}
	f.p.Set(0, 0, f.params.R*hd)
	f.p.Set(1, 1, f.params.R*hd)
	f.p.Set(2, 2, 10*f.params.QVel)
	f.p.Set(3, 3, 10*f.params.QVel)
	f.lastTime = t
	f.initialized = true
	f.lastInnovationKm = 0
}

// dt computes the clamped elapsed time in seconds since the filter's last
// timestamp. A non-positive delta is clamped to 1ms to keep F well-defined.
func (f *Filter) dt(t time.Time) float64 {
	delta := t.Sub(f.lastTime).Seconds()
	if delta <= 0 {
		delta = 0.001
	}
	return delta
}

// predictState returns x_pred, P_pred for elapsed dt without mutating f.
func (f *Filter) predictState(dt float64) (*mat.VecDense, *mat.Dense) {
	fMat := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	xPred := mat.NewVecDense(4, nil)
	xPred.MulVec(fMat, f.x)

	var fp mat.Dense
	fp.Mul(fMat, f.p)
	var pPred mat.Dense
	pPred.Mul(&fp, fMat.T())

	q := mat.NewDense(4, 4, nil)
	q.Set(0, 0, f.params.QPos*dt)
	q.Set(1, 1, f.params.QPos*dt)
	q.Set(2, 2, f.params.QVel*dt)
	q.Set(3, 3, f.params.QVel*dt)
	pPred.Add(&pPred, q)

	return xPred, &pPred
}

// Predict is a pure read: it returns the position the filter would report at
// t without mutating any state. Returns GeoPoint(0,0) when uninitialized.
func (f *Filter) Predict(t time.Time) geo.GeoPoint {
	if !f.initialized {
		return geo.GeoPoint{}
	}
	xPred, _ := f.predictState(f.dt(t))
	return geo.GeoPoint{Lat: xPred.AtVec(0), Lon: xPred.AtVec(1)}
}

// Update advances the filter to t and folds in measurement z with the given
// hdop. It returns true if the measurement was accepted (passed gating or
// this was the initializing measurement), false if it was gated out.
func (f *Filter) Update(z geo.GeoPoint, hdop float64, t time.Time) bool {
	if !f.initialized {
		f.reset(z, hdop, t)
		return true
	}

	if t.Sub(f.lastTime).Seconds() > f.params.MaxGapS {
		f.reset(z, hdop, t)
		return true
	}

	dt := f.dt(t)
	xPred, pPred := f.predictState(dt)

	h := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	hd := hdop
	if hd < 1 {
		hd = 1
	}
	r := mat.NewDense(2, 2, []float64{
		f.params.R * hd, 0,
		0, f.params.R * hd,
	})

	meas := mat.NewVecDense(2, []float64{z.Lat, z.Lon})
	hx := mat.NewVecDense(2, nil)
	hx.MulVec(h, xPred)
	y := mat.NewVecDense(2, nil)
	y.SubVec(meas, hx)

	var hp mat.Dense
	hp.Mul(h, pPred)
	var s mat.Dense
	s.Mul(&hp, h.T())
	s.Add(&s, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		// Singular innovation covariance: treat as a gate rejection and
		// advance with the predicted state only.
		f.x = xPred
		f.p = pPred
		f.lastTime = t
		return false
	}

	var sInvY mat.VecDense
	sInvY.MulVec(&sInv, y)
	m := mat.Dot(y, &sInvY)
	f.lastInnovationKm = math.Sqrt(math.Max(m, 0))

	if m > f.params.Gate {
		f.x = xPred
		f.p = pPred
		f.lastTime = t
		return false
	}

	var pht mat.Dense
	pht.Mul(pPred, h.T())
	var k mat.Dense
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, y)
	xNew := mat.NewVecDense(4, nil)
	xNew.AddVec(xPred, &ky)

	ident := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		ident.Set(i, i, 1)
	}
	var kh mat.Dense
	kh.Mul(&k, h)
	var imKh mat.Dense
	imKh.Sub(ident, &kh)
	var pNew mat.Dense
	pNew.Mul(&imKh, pPred)

	f.x = xNew
	f.p = &pNew
	f.lastTime = t
	return true
}

// Position returns the filter's current (post-update) position.
func (f *Filter) Position() geo.GeoPoint {
	if !f.initialized {
		return geo.GeoPoint{}
	}
	return geo.GeoPoint{Lat: f.x.AtVec(0), Lon: f.x.AtVec(1)}
}

// VelocityDegPerSec returns the raw [vlat, vlon] state in degrees/second.
func (f *Filter) VelocityDegPerSec() (float64, float64) {
	if !f.initialized {
		return 0, 0
	}
	return f.x.AtVec(2), f.x.AtVec(3)
}

// VelocityMps converts the filter's velocity state to meters/second in the
// local (north, east) frame: vn = vlat*111320, ve = vlon*111320*cos(lat).
func (f *Filter) VelocityMps() (vn, ve float64) {
	if !f.initialized {
		return 0, 0
	}
	vlat, vlon := f.VelocityDegPerSec()
	lat := f.x.AtVec(0)
	vn = vlat * 111320
	ve = vlon * 111320 * math.Cos(lat*math.Pi/180.0)
	return vn, ve
}

// SpeedMps returns the Euclidean norm of VelocityMps.
func (f *Filter) SpeedMps() float64 {
	vn, ve := f.VelocityMps()
	return math.Hypot(vn, ve)
}

// Reset discards all filter state, requiring the next Update to
// re-initialize.
func (f *Filter) Reset() {
	f.initialized = false
	f.x = nil
	f.p = nil
	f.lastInnovationKm = 0
}
