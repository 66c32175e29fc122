// Package adaptive implements the controller that relaxes or tightens the
// matcher's thresholds based on recent fix-rate, inlier-ratio, and blur
// outcomes, so the pipeline self-tunes across changing terrain and light.
package adaptive

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MatchParams holds the matcher thresholds the controller tunes. It is
// process-lifetime state, mutated only by Controller.Record.
type MatchParams struct {
	MinMatches          int
	RansacPx            float64
	MinInlierRatio      float64
	MaxFeatures         int
	MatchRatioThreshold float64
	BlurRejectThreshold float64
}

// DefaultMatchParams returns the spec's starting thresholds.
func DefaultMatchParams() MatchParams {
	return MatchParams{
		MinMatches:          15,
		RansacPx:            5.0,
		MinInlierRatio:      0.3,
		MaxFeatures:         1000,
		MatchRatioThreshold: 0.75,
		BlurRejectThreshold: 50.0,
	}
}

// windowSize is the default sliding-window length for success/inlier/blur
// history.
const windowSize = 20

// TargetFixRate is the fix rate the controller tries to hold the pipeline
// near: below half of it, thresholds relax; above 1.5x, they tighten.
const TargetFixRate = 0.5

// Controller maintains sliding windows of recent outcomes and adjusts
// MatchParams to steer the observed fix rate toward TargetFixRate. It is
// not safe for concurrent use; the frame loop owns it exclusively.
type Controller struct {
	defaults MatchParams
	params   MatchParams

	successes  []bool
	inliers    []float64
	blurs      []float64

	skipNextFrame bool
}

// New creates a Controller starting from the given MatchParams.
func New(defaults MatchParams) *Controller {
	return &Controller{defaults: defaults, params: defaults}
}

// Params returns the controller's current thresholds.
func (c *Controller) Params() MatchParams { return c.params }

// ShouldSkipFrame reports whether the most recent Record flagged the next
// frame for a blur skip, and clears the flag.
func (c *Controller) ShouldSkipFrame() bool {
	skip := c.skipNextFrame
	c.skipNextFrame = false
	return skip
}

// Record logs one frame's outcome and re-tunes thresholds from the
// resulting sliding-window statistics.
func (c *Controller) Record(success bool, inlierRatio, blur float64) {
	c.successes = appendTrimmed(c.successes, success)
	c.inliers = appendTrimmedF(c.inliers, inlierRatio)
	c.blurs = appendTrimmedF(c.blurs, blur)

	fixRate := recentFixRate(c.successes)
	c.retune(fixRate)

	if blur < c.params.BlurRejectThreshold {
		c.skipNextFrame = true
	}
}

func appendTrimmed(s []bool, v bool) []bool {
	s = append(s, v)
	if len(s) > 2*windowSize {
		s = s[len(s)-windowSize:]
	}
	return s
}

func appendTrimmedF(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > 2*windowSize {
		s = s[len(s)-windowSize:]
	}
	return s
}

// recentFixRate computes the fraction of recent successes over the
// trailing window using gonum/stat.Mean on a 0/1-coded slice, the same
// statistics package internal/tileindex uses for descriptor-distance
// summaries.
func recentFixRate(successes []bool) float64 {
	n := len(successes)
	if n == 0 {
		return 0
	}
	start := 0
	if n > windowSize {
		start = n - windowSize
	}
	window := successes[start:]
	coded := make([]float64, len(window))
	for i, ok := range window {
		if ok {
			coded[i] = 1
		}
	}
	return stat.Mean(coded, nil)
}

// trimmedMean returns the mean of the trailing window of samples after
// dropping the lowest and highest decile, so a single wild inlier-ratio
// or blur outlier doesn't swing the controller's retune decision. Falls
// back to the untrimmed mean when the window is too small to trim.
func trimmedMean(samples []float64, window int) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	start := 0
	if n > window {
		start = n - window
	}
	sorted := append([]float64(nil), samples[start:]...)
	sort.Float64s(sorted)

	trim := len(sorted) / 10
	trimmed := sorted[trim : len(sorted)-trim]
	if len(trimmed) == 0 {
		return stat.Mean(sorted, nil)
	}
	return stat.Mean(trimmed, nil)
}

// retune takes the fix rate computed by Record, derives a trimmed-mean
// smoothed inlier ratio from the sliding window, and adjusts thresholds per
// spec §4.9. The smoothed inlier ratio modulates how aggressively a fix
// rate below half the target is relaxed: if recent matches are passing but
// consistently scraping by on a thin inlier ratio, the controller relaxes
// by a double step.
func (c *Controller) retune(fixRate float64) {
	p := &c.params
	inlierMean := trimmedMean(c.inliers, windowSize)
	thinInliers := inlierMean > 0 && inlierMean < 0.5*p.MinInlierRatio

	switch {
	case fixRate < 0.5*TargetFixRate:
		step := 1
		if thinInliers {
			step = 2
		}
		c.relax(p, step)
	case fixRate > 1.5*TargetFixRate:
		c.tighten(p, 1)
	}
}

// relax loosens thresholds to recover more fixes at the cost of precision.
// step scales the magnitude of the adjustment (2 when recent inlier ratios
// are thin, 1 otherwise).
func (c *Controller) relax(p *MatchParams, step int) {
	p.MinMatches = maxInt(8, p.MinMatches-step)
	p.MinInlierRatio = maxFloat(0.15, p.MinInlierRatio-0.02*float64(step))
	p.MatchRatioThreshold = minFloat(0.85, p.MatchRatioThreshold+0.02*float64(step))
	p.MaxFeatures = minInt(1000, p.MaxFeatures+50*step)
}

// tighten raises thresholds when fixes are coming in faster than needed,
// trading recall for precision.
func (c *Controller) tighten(p *MatchParams, step int) {
	p.MinMatches = minInt(25, p.MinMatches+step)
	p.MinInlierRatio = minFloat(0.50, p.MinInlierRatio+0.02*float64(step))
	p.MatchRatioThreshold = maxFloat(0.65, p.MatchRatioThreshold-0.02*float64(step))
	p.MaxFeatures = maxInt(300, p.MaxFeatures-50*step)
}

// Reset restores the controller's original defaults and clears all
// sliding-window history.
func (c *Controller) Reset() {
	c.params = c.defaults
	c.successes = nil
	c.inliers = nil
	c.blurs = nil
	c.skipNextFrame = false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
