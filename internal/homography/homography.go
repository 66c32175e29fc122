// Package homography estimates a 3x3 projective transform between two
// point sets using a RANSAC-robustified direct linear transform, reporting
// an inlier ratio the caller uses as an acceptance gate.
package homography

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/dabubi/drone-visual-positioning/internal/feature"
	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// Params configures the RANSAC homography estimator.
type Params struct {
	ReprojThresholdPx float64 // inlier reprojection threshold, pixels
	Confidence        float64 // desired RANSAC confidence
	MinInlierRatio    float64 // acceptance gate
	MaxIterations     int     // hard cap on RANSAC iterations
}

// DefaultParams returns the spec's default RANSAC configuration.
func DefaultParams() Params {
	return Params{
		ReprojThresholdPx: 5.0,
		Confidence:        0.999,
		MinInlierRatio:    0.3,
		MaxIterations:     2000,
	}
}

// Result is a successful homography estimate.
type Result struct {
	H           [9]float64 // row-major 3x3, maps A -> B
	InlierMask  []bool
	InlierRatio float64
}

// Estimate computes a homography mapping ptsA -> ptsB via RANSAC, using rng
// for sample selection. Fewer than four correspondences, a degenerate best
// model (det(H) <= 0), or an inlier ratio below params.MinInlierRatio all
// fail with perr.ErrDegenerate.
func Estimate(ptsA, ptsB []feature.Point, params Params, rng *rand.Rand) (Result, error) {
	if len(ptsA) != len(ptsB) {
		return Result{}, fmt.Errorf("%w: homography: mismatched point counts %d vs %d", perr.ErrInvalidInput, len(ptsA), len(ptsB))
	}
	n := len(ptsA)
	if n < 4 {
		return Result{}, fmt.Errorf("%w: homography: need >= 4 correspondences, got %d", perr.ErrDegenerate, n)
	}

	iterations := ransacIterations(params.Confidence, params.MaxIterations)

	var bestH [9]float64
	var bestMask []bool
	bestInliers := -1

	for iter := 0; iter < iterations; iter++ {
		sampleIdx := sampleFour(n, rng)
		h, ok := dlt(gather(ptsA, sampleIdx), gather(ptsB, sampleIdx))
		if !ok {
			continue
		}

		mask, count := inliers(ptsA, ptsB, h, params.ReprojThresholdPx)
		if count > bestInliers {
			bestInliers = count
			bestH = h
			bestMask = mask
		}
	}

	if bestInliers < 4 {
		return Result{}, fmt.Errorf("%w: homography: RANSAC found no consistent model", perr.ErrDegenerate)
	}

	// Refit on the full inlier set for a less noisy final estimate.
	if refined, ok := dlt(maskedPoints(ptsA, bestMask), maskedPoints(ptsB, bestMask)); ok {
		if det3(refined) > 0 {
			mask, count := inliers(ptsA, ptsB, refined, params.ReprojThresholdPx)
			if count >= bestInliers {
				bestH, bestMask, bestInliers = refined, mask, count
			}
		}
	}

	if det3(bestH) <= 0 {
		return Result{}, fmt.Errorf("%w: homography: degenerate determinant", perr.ErrDegenerate)
	}

	ratio := float64(bestInliers) / float64(n)
	if ratio < params.MinInlierRatio {
		return Result{}, fmt.Errorf("%w: homography: inlier ratio %.3f below gate %.3f", perr.ErrDegenerate, ratio, params.MinInlierRatio)
	}

	return Result{H: bestH, InlierMask: bestMask, InlierRatio: ratio}, nil
}

// ransacIterations computes the adaptive sample count for a 4-point model
// at the given confidence, assuming a conservative 50% inlier fraction,
// capped at maxIterations.
func ransacIterations(confidence float64, maxIterations int) int {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.999
	}
	const assumedInlierFrac = 0.5
	const sampleSize = 4
	denom := math.Log(1 - math.Pow(assumedInlierFrac, sampleSize))
	if denom == 0 {
		return maxIterations
	}
	n := int(math.Ceil(math.Log(1-confidence) / denom))
	if n < 1 {
		n = 1
	}
	if n > maxIterations {
		n = maxIterations
	}
	return n
}

func sampleFour(n int, rng *rand.Rand) [4]int {
	var out [4]int
	chosen := make(map[int]bool, 4)
	for i := 0; i < 4; i++ {
		for {
			v := rng.Intn(n)
			if !chosen[v] {
				chosen[v] = true
				out[i] = v
				break
			}
		}
	}
	return out
}

func gather(pts []feature.Point, idx [4]int) []feature.Point {
	out := make([]feature.Point, 4)
	for i, j := range idx {
		out[i] = pts[j]
	}
	return out
}

func maskedPoints(pts []feature.Point, mask []bool) []feature.Point {
	out := make([]feature.Point, 0, len(pts))
	for i, p := range pts {
		if mask[i] {
			out = append(out, p)
		}
	}
	return out
}

// dlt solves the direct linear transform for a homography mapping a -> b
// via the smallest right-singular-vector of the constraint matrix. Returns
// ok=false if fewer than 4 points are given or the SVD fails to converge.
func dlt(a, b []feature.Point) ([9]float64, bool) {
	n := len(a)
	if n < 4 || n != len(b) {
		return [9]float64{}, false
	}

	rows := make([]float64, 0, 2*n*9)
	for i := 0; i < n; i++ {
		x, y := a[i].X, a[i].Y
		u, v := b[i].X, b[i].Y
		rows = append(rows,
			-x, -y, -1, 0, 0, 0, x*u, y*u, u,
			0, 0, 0, -x, -y, -1, x*v, y*v, v,
		)
	}

	m := mat.NewDense(2*n, 9, rows)
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return [9]float64{}, false
	}

	var vMat mat.Dense
	svd.VTo(&vMat)
	lastCol := 8 // smallest singular value is the last column of V

	var h [9]float64
	for i := 0; i < 9; i++ {
		h[i] = vMat.At(i, lastCol)
	}
	if math.Abs(h[8]) > 1e-12 {
		for i := range h {
			h[i] /= h[8]
		}
	}
	return h, true
}

func inliers(a, b []feature.Point, h [9]float64, threshPx float64) ([]bool, int) {
	mask := make([]bool, len(a))
	count := 0
	for i := range a {
		px, py, ok := applyHomography(h, a[i])
		if !ok {
			continue
		}
		dx := px - b[i].X
		dy := py - b[i].Y
		if math.Hypot(dx, dy) <= threshPx {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

// applyHomography maps p through h, returning ok=false when the
// homogeneous component's magnitude is below 1e-10 (the degeneracy guard).
func applyHomography(h [9]float64, p feature.Point) (x, y float64, ok bool) {
	wx := h[0]*p.X + h[1]*p.Y + h[2]
	wy := h[3]*p.X + h[4]*p.Y + h[5]
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-10 {
		return 0, 0, false
	}
	return wx / w, wy / w, true
}

func det3(h [9]float64) float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}
