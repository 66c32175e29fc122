// Package feature implements the classical feature-extraction and matching
// back-end: a FAST-style corner detector feeding a BRIEF-style binary
// descriptor, matched by brute-force Hamming distance with Lowe's ratio
// test. A Matcher capability interface is exposed so a learned back-end
// (a frozen neural extractor behind an inference runtime) can be swapped in
// at start-up without touching the frame loop.
package feature

import (
	"image"
	"math"
	"math/bits"
	"sort"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// Point is a 2D pixel coordinate.
type Point struct {
	X, Y float64
}

// Params configures the classical extractor and matcher.
type Params struct {
	MaxFeatures int     // cap on detected keypoints, default 1000
	RatioTest   float64 // Lowe's ratio test threshold, default 0.75
	FASTThresh  int     // FAST corner intensity threshold, default 20
}

// DefaultParams returns the classical back-end's spec defaults.
func DefaultParams() Params {
	return Params{
		MaxFeatures: 1000,
		RatioTest:   0.75,
		FASTThresh:  20,
	}
}

// descriptorBytes is the width of the binary descriptor (32 bytes = 256
// bits), matching the ORB fallback's descriptor width.
const descriptorBytes = 32

// GlobalDescriptorDim is the dimensionality of the global descriptor
// produced by MeanDescriptor, used for coarse tile retrieval.
const GlobalDescriptorDim = descriptorBytes

type keypoint struct {
	Point
	response float64
}

// descriptor is a fixed-width binary feature descriptor.
type descriptor [descriptorBytes]byte

// briefPattern is a fixed, precomputed set of pixel-pair offsets sampled
// within an 11x11 patch around each keypoint; comparing intensities at
// each pair yields one bit of the descriptor. The pattern is deterministic
// so descriptors are reproducible across runs.
var briefPattern = generateBriefPattern(descriptorBytes * 8)

type pointPair struct{ ax, ay, bx, by int }

func generateBriefPattern(nBits int) []pointPair {
	// A simple low-discrepancy (non-random) sequence over an 11x11 patch,
	// avoiding a dependency on math/rand for determinism.
	pairs := make([]pointPair, nBits)
	const half = 5
	golden := 0.6180339887498949
	acc := 0.0
	for i := 0; i < nBits; i++ {
		acc += golden
		acc -= math.Floor(acc)
		ax := int(acc*float64(2*half+1)) - half
		acc += golden * 0.5
		acc -= math.Floor(acc)
		ay := int(acc*float64(2*half+1)) - half
		acc += golden * 0.25
		acc -= math.Floor(acc)
		bx := int(acc*float64(2*half+1)) - half
		acc += golden * 0.125
		acc -= math.Floor(acc)
		by := int(acc*float64(2*half+1)) - half
		pairs[i] = pointPair{ax, ay, bx, by}
	}
	return pairs
}

// Extractor detects keypoints in a grayscale image and computes a binary
// descriptor for each.
type Extractor struct {
	params Params
}

// New creates an Extractor with the given parameters.
func New(params Params) *Extractor {
	return &Extractor{params: params}
}

// SetParams replaces the extractor's tunable thresholds, letting the
// frame loop push the adaptive controller's latest MaxFeatures and ratio
// test value in before each match.
func (e *Extractor) SetParams(maxFeatures int, ratioTest float64) {
	e.params.MaxFeatures = maxFeatures
	e.params.RatioTest = ratioTest
}

// Params returns the extractor's current thresholds.
func (e *Extractor) Params() Params { return e.params }

// detect runs a FAST-style corner detector over img, keeping up to
// MaxFeatures keypoints ranked by response strength.
func (e *Extractor) detect(img *image.Gray) []keypoint {
	b := img.Bounds()
	const margin = 6 // covers the larger of circle radius (3) and patch half-width (5)
	var candidates []keypoint

	for y := b.Min.Y + margin; y < b.Max.Y-margin; y++ {
		for x := b.Min.X + margin; x < b.Max.X-margin; x++ {
			if resp, ok := fastResponse(img, x, y, e.params.FASTThresh); ok {
				candidates = append(candidates, keypoint{Point: Point{X: float64(x), Y: float64(y)}, response: resp})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].response > candidates[j].response })
	if len(candidates) > e.params.MaxFeatures {
		candidates = candidates[:e.params.MaxFeatures]
	}
	return candidates
}

// fastCircle holds the 16 Bresenham-circle offsets (radius 3) used by the
// FAST corner test.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastResponse reports whether (x,y) is a FAST corner (at least 9 of 16
// contiguous circle pixels all brighter or all darker than the center by
// more than thresh) and, if so, its response strength (sum of absolute
// deviations from the center over all 16 circle pixels).
func fastResponse(img *image.Gray, x, y, thresh int) (float64, bool) {
	center := int(img.GrayAt(x, y).Y)
	var ring [16]int
	for i, off := range fastCircle {
		ring[i] = int(img.GrayAt(x+off[0], y+off[1]).Y)
	}

	brighter := make([]bool, 16)
	darker := make([]bool, 16)
	for i, v := range ring {
		brighter[i] = v-center > thresh
		darker[i] = center-v > thresh
	}

	if !hasContiguousRun(brighter, 9) && !hasContiguousRun(darker, 9) {
		return 0, false
	}

	var resp float64
	for _, v := range ring {
		resp += math.Abs(float64(v - center))
	}
	return resp, true
}

func hasContiguousRun(flags []bool, run int) bool {
	n := len(flags)
	count := 0
	for i := 0; i < 2*n; i++ {
		if flags[i%n] {
			count++
			if count >= run {
				return true
			}
		} else {
			count = 0
		}
	}
	return false
}

// describe computes a BRIEF-style binary descriptor for the keypoint at
// (x,y) by thresholding intensity comparisons at briefPattern's offsets.
func describe(img *image.Gray, x, y int) descriptor {
	var d descriptor
	for i, pair := range briefPattern {
		a := img.GrayAt(x+pair.ax, y+pair.ay).Y
		b := img.GrayAt(x+pair.bx, y+pair.by).Y
		if a < b {
			d[i/8] |= 1 << uint(i%8)
		}
	}
	return d
}

// Extract returns up to MaxFeatures keypoints and their descriptors from
// img, ranked by corner-response strength.
func (e *Extractor) Extract(img *image.Gray) ([]Point, []descriptor) {
	kps := e.detect(img)
	pts := make([]Point, len(kps))
	descs := make([]descriptor, len(kps))
	for i, kp := range kps {
		pts[i] = kp.Point
		descs[i] = describe(img, int(kp.X), int(kp.Y))
	}
	return pts, descs
}

// MeanDescriptor returns the mean of img's per-keypoint descriptors, one
// float32 component per descriptor byte, used as the global descriptor for
// coarse tile retrieval. Returns a zero vector for an image with no
// detected keypoints.
func (e *Extractor) MeanDescriptor(img *image.Gray) []float32 {
	_, descs := e.Extract(img)
	out := make([]float32, GlobalDescriptorDim)
	if len(descs) == 0 {
		return out
	}
	sums := make([]float64, GlobalDescriptorDim)
	for _, d := range descs {
		for i, b := range d {
			sums[i] += float64(b)
		}
	}
	for i, s := range sums {
		out[i] = float32(s / float64(len(descs)))
	}
	return out
}

func hammingDistance(a, b descriptor) int {
	dist := 0
	for i := range a {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

const maxHammingDistance = descriptorBytes * 8

// MatchResult holds the correspondences produced by Match.
type MatchResult struct {
	PtsA   []Point
	PtsB   []Point
	Scores []float64 // normalized to [0,1], higher is better
}

// Match finds correspondences between imgA (the drone frame) and imgB (a
// tile image) using brute-force Hamming-distance matching with Lowe's
// ratio test. When fewer than four correspondences are found, it returns
// perr.ErrNoMatch.
func (e *Extractor) Match(imgA, imgB *image.Gray) (MatchResult, error) {
	ptsA, descA := e.Extract(imgA)
	ptsB, descB := e.Extract(imgB)

	if len(descA) == 0 || len(descB) == 0 {
		return MatchResult{}, perr.ErrNoMatch
	}

	var result MatchResult
	for i, da := range descA {
		best, second := maxHammingDistance+1, maxHammingDistance+1
		bestJ := -1
		for j, db := range descB {
			d := hammingDistance(da, db)
			if d < best {
				second = best
				best = d
				bestJ = j
			} else if d < second {
				second = d
			}
		}
		if bestJ < 0 {
			continue
		}
		if second > 0 && float64(best) > e.params.RatioTest*float64(second) {
			continue
		}
		result.PtsA = append(result.PtsA, ptsA[i])
		result.PtsB = append(result.PtsB, ptsB[bestJ])
		result.Scores = append(result.Scores, 1.0-float64(best)/float64(maxHammingDistance))
	}

	if len(result.PtsA) < 4 {
		return MatchResult{}, perr.ErrNoMatch
	}
	return result, nil
}
