// Package frameloop implements the main per-tick scheduler that ties
// together every other component: grab a frame, match it against the map
// pack, fuse the resulting position, and publish it.
package frameloop

import (
	"context"
	"image"
	"time"

	"github.com/dabubi/drone-visual-positioning/internal/adaptive"
	"github.com/dabubi/drone-visual-positioning/internal/camera"
	"github.com/dabubi/drone-visual-positioning/internal/feature"
	"github.com/dabubi/drone-visual-positioning/internal/fusion"
	"github.com/dabubi/drone-visual-positioning/internal/geo"
	"github.com/dabubi/drone-visual-positioning/internal/health"
	"github.com/dabubi/drone-visual-positioning/internal/homography"
	"github.com/dabubi/drone-visual-positioning/internal/monitoring"
	"github.com/dabubi/drone-visual-positioning/internal/preprocess"
	"github.com/dabubi/drone-visual-positioning/internal/ratelimit"
	"github.com/dabubi/drone-visual-positioning/internal/recorder"
	"github.com/dabubi/drone-visual-positioning/internal/telemetry"
	"github.com/dabubi/drone-visual-positioning/internal/tilecache"
	"github.com/dabubi/drone-visual-positioning/internal/tileindex"
	"github.com/dabubi/drone-visual-positioning/internal/tilestore"
	"github.com/dabubi/drone-visual-positioning/internal/timeutil"
	"github.com/dabubi/drone-visual-positioning/internal/transport"

	"golang.org/x/sync/errgroup"
)

const (
	grabFailureSleep = 100 * time.Millisecond
	candidateCount   = 8
)

// Deps bundles every component the loop orchestrates. Construction is the
// caller's responsibility (typically cmd/locator); the loop only calls
// the narrow interfaces it needs.
type Deps struct {
	Pack      *tilestore.MapPack
	Index     *tileindex.Index
	Cache     *tilecache.TileCache
	Camera    camera.Source
	Extractor *feature.Extractor
	Adaptive  *adaptive.Controller
	Fusion    *fusion.Engine
	Limiter   *ratelimit.Limiter
	Transport *transport.Transport
	Health    *health.Monitor
	Recorder  *recorder.Writer
	Telemetry *telemetry.Sink
	Clock     timeutil.Clock
	TargetHz  float64
}

// Loop owns one tick's worth of shared, single-threaded state.
type Loop struct {
	d      Deps
	period time.Duration
}

// New builds a Loop from d, defaulting TargetHz to 3.0 when unset.
func New(d Deps) *Loop {
	hz := d.TargetHz
	if hz <= 0 {
		hz = 3.0
	}
	return &Loop{d: d, period: time.Duration(float64(time.Second) / hz)}
}

// Run executes ticks until ctx is canceled, draining owned resources
// before returning.
func (l *Loop) Run(ctx context.Context) error {
	defer l.drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := l.d.Clock.Now()
		l.tick(start)

		elapsed := l.d.Clock.Since(start)
		remaining := l.period - elapsed
		if remaining <= 0 {
			monitoring.Logf("frameloop: tick overran period by %s", -remaining)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.d.Clock.After(remaining):
		}
	}
}

// tick runs exactly one iteration of the §4.14 pipeline, never returning
// an error: every stage failure degrades to a "no fix" outcome recorded
// in health/telemetry rather than aborting the loop.
func (l *Loop) tick(t time.Time) {
	frame, err := l.d.Camera.Grab()
	if err != nil {
		l.d.Clock.Sleep(grabFailureSleep)
		l.d.Health.RecordFix(t, false, 0)
		return
	}

	pre, err := preprocess.Process(frame, preprocess.DefaultParams())
	if err != nil {
		l.d.Health.RecordFix(t, false, l.d.Clock.Since(t))
		return
	}

	params := l.d.Adaptive.Params()
	blurSkip := pre.Sharpness < params.BlurRejectThreshold
	if l.d.Adaptive.ShouldSkipFrame() || blurSkip {
		out := l.d.Fusion.Update(nil, 0, t)
		l.publish(t, out, 0, 0, blurSkip)
		l.d.Adaptive.Record(false, 0, pre.Sharpness)
		return
	}

	matchCount, inlierRatio, gps, ok := l.matchAgainstCandidates(pre.Gray, params, pre.Sharpness)
	l.d.Adaptive.Record(ok, inlierRatio, pre.Sharpness)

	var visual *geo.GeoPoint
	if ok {
		visual = &gps
	}

	hdop := 1.0
	if !ok {
		hdop = 0
	}
	out := l.d.Fusion.Update(visual, hdop, t)
	l.publish(t, out, matchCount, inlierRatio, blurSkip)
}

// matchAgainstCandidates retrieves top-k tile candidates by global
// descriptor similarity, reorders them by a composite confidence score
// (internal/feature.CandidateScore), and stops at the first candidate
// whose match and homography clear the adaptive controller's current
// thresholds.
func (l *Loop) matchAgainstCandidates(query *image.Gray, params adaptive.MatchParams, blurScore float64) (matchCount int, inlierRatio float64, pos geo.GeoPoint, ok bool) {
	l.d.Extractor.SetParams(params.MaxFeatures, params.MatchRatioThreshold)

	globalDesc := l.d.Extractor.MeanDescriptor(query)
	candidates := l.d.Index.Search(globalDesc, candidateCount)
	if len(candidates) == 0 {
		return 0, 0, geo.GeoPoint{}, false
	}

	rankCandidatesByConfidence(candidates, blurScore)

	for _, cand := range candidates {
		tileBytes, cached := l.d.Cache.Get(cand.Entry.Coord())
		if !cached {
			data, err := l.d.Pack.Image(cand.Entry)
			if err != nil {
				continue
			}
			l.d.Cache.Put(cand.Entry.Coord(), data)
			tileBytes = data
		}

		tileImg, err := decodeTile(tileBytes)
		if err != nil {
			continue
		}
		tileGray := grayOf(tileImg)

		result, err := l.d.Extractor.Match(query, tileGray)
		if err != nil || len(result.PtsA) < params.MinMatches {
			continue
		}

		homParams := homography.DefaultParams()
		homParams.ReprojThresholdPx = params.RansacPx
		homParams.MinInlierRatio = params.MinInlierRatio
		hr, err := homography.Estimate(result.PtsA, result.PtsB, homParams, matchRNG())
		if err != nil {
			continue
		}

		cx, cy := float64(query.Bounds().Dx())/2, float64(query.Bounds().Dy())/2
		projected := geo.HomographyToGPS(hr.H, cand.Entry.Coord(), cx, cy)
		if projected.Lat == 0 && projected.Lon == 0 {
			continue
		}

		return len(result.PtsA), hr.InlierRatio, projected, true
	}
	return 0, 0, geo.GeoPoint{}, false
}

func (l *Loop) publish(t time.Time, out fusion.Output, matchCount int, inlierRatio float64, blurSkip bool) {
	l.d.Health.SetPositionSource(out.Source)

	admitted := out.Position != nil && l.d.Limiter.Allow(t)
	if admitted {
		fix := transport.Fix{
			HasPosition: true,
			Lat:         out.Position.Lat,
			Lon:         out.Position.Lon,
			HDOP:        out.HDOP,
			SpeedMps:    out.SpeedMps,
			HeadingDeg:  out.HeadingDeg,
			FixQuality:  out.FixQuality,
			Time:        t,
		}
		if err := l.d.Transport.Send(fix); err != nil {
			monitoring.Logf("frameloop: transport send failed: %v", err)
		}
	}

	l.d.Health.RecordFix(t, out.Position != nil, 0)

	if l.d.Recorder != nil {
		_ = l.d.Recorder.Write(toRecord(t, out, matchCount, inlierRatio, blurSkip))
	}
	if l.d.Telemetry != nil {
		_ = l.d.Telemetry.Write(toRow(t, out, matchCount, inlierRatio, blurSkip, l.d.Transport.Reconnects()))
	}
}

// drain releases every owned resource. It runs once, after the tick loop
// in Run has already returned, so closing the independent sinks
// concurrently does not violate the single-threaded tick model in §5 —
// nothing here runs alongside a tick.
func (l *Loop) drain() {
	var g errgroup.Group

	g.Go(func() error { return l.d.Camera.Close() })
	g.Go(func() error { return l.d.Transport.Close() })
	if l.d.Recorder != nil {
		g.Go(l.d.Recorder.Close)
	}
	if l.d.Telemetry != nil {
		g.Go(l.d.Telemetry.Close)
	}

	if err := g.Wait(); err != nil {
		monitoring.Logf("frameloop: drain: %v", err)
	}
}
