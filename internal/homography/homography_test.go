package homography

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dabubi/drone-visual-positioning/internal/feature"
	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// syntheticPairs generates correspondences under a known affine transform
// (scale + translation, a restriction of a full homography but sufficient
// to exercise DLT + RANSAC), optionally injecting outliers.
func syntheticPairs(n, outliers int, scale, tx, ty float64, rng *rand.Rand) ([]feature.Point, []feature.Point) {
	a := make([]feature.Point, n)
	b := make([]feature.Point, n)
	for i := 0; i < n; i++ {
		x := rng.Float64() * 400
		y := rng.Float64() * 400
		a[i] = feature.Point{X: x, Y: y}
		b[i] = feature.Point{X: x*scale + tx, Y: y*scale + ty}
	}
	for i := 0; i < outliers && i < n; i++ {
		b[i] = feature.Point{X: rng.Float64() * 1000, Y: rng.Float64() * 1000}
	}
	return a, b
}

func TestEstimateRejectsFewerThanFourPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := []feature.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}
	b := []feature.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}
	_, err := Estimate(a, b, DefaultParams(), rng)
	require.ErrorIs(t, err, perr.ErrDegenerate)
}

func TestEstimateRecoversCleanTransform(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a, b := syntheticPairs(30, 0, 1.5, 100, 50, rng)

	result, err := Estimate(a, b, DefaultParams(), rng)
	require.NoError(t, err)
	require.Greater(t, result.InlierRatio, 0.9)

	// Verify the recovered H maps the origin near tx, ty.
	px := result.H[0]*0 + result.H[1]*0 + result.H[2]
	py := result.H[3]*0 + result.H[4]*0 + result.H[5]
	w := result.H[6]*0 + result.H[7]*0 + result.H[8]
	require.InDelta(t, 100, px/w, 5.0)
	require.InDelta(t, 50, py/w, 5.0)
}

func TestEstimateRejectsMostlyOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a, b := syntheticPairs(20, 16, 1.0, 0, 0, rng)

	params := DefaultParams()
	_, err := Estimate(a, b, params, rng)
	require.ErrorIs(t, err, perr.ErrDegenerate)
}

func TestEstimateToleratesMinorityOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a, b := syntheticPairs(40, 6, 1.2, 20, -15, rng)

	result, err := Estimate(a, b, DefaultParams(), rng)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.InlierRatio, 0.3)
}

func TestEstimateMismatchedLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := []feature.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	b := []feature.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}
	_, err := Estimate(a, b, DefaultParams(), rng)
	require.ErrorIs(t, err, perr.ErrInvalidInput)
}
