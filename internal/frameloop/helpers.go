package frameloop

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"sort"
	"time"

	"github.com/dabubi/drone-visual-positioning/internal/feature"
	"github.com/dabubi/drone-visual-positioning/internal/fusion"
	"github.com/dabubi/drone-visual-positioning/internal/preprocess"
	"github.com/dabubi/drone-visual-positioning/internal/recorder"
	"github.com/dabubi/drone-visual-positioning/internal/telemetry"
	"github.com/dabubi/drone-visual-positioning/internal/tileindex"
)

// rankCandidatesByConfidence reorders candidates in place, highest
// feature.CandidateScore first, so the sequential homography walk in
// matchAgainstCandidates tries the best-looking tile before falling back
// to strict index-search order. Ties keep their original (distance)
// order since sort.SliceStable is used.
func rankCandidatesByConfidence(candidates []tileindex.Match, blurScore float64) {
	if len(candidates) < 2 {
		return
	}

	minDist, maxDist := candidates[0].Distance, candidates[0].Distance
	for _, c := range candidates[1:] {
		if c.Distance < minDist {
			minDist = c.Distance
		}
		if c.Distance > maxDist {
			maxDist = c.Distance
		}
	}

	type scored struct {
		match tileindex.Match
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scored{
			match: c,
			score: feature.CandidateScore(feature.CandidateSignals{
				Distance:  c.Distance,
				MinDist:   minDist,
				MaxDist:   maxDist,
				BlurScore: blurScore,
			}),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	for i, r := range ranked {
		candidates[i] = r.match
	}
}

func decodeTile(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// grayOf converts any decoded tile image to grayscale via the same
// pipeline a live frame goes through, so descriptors on both sides of a
// match are computed consistently.
func grayOf(img image.Image) *image.Gray {
	result, err := preprocess.Process(img, preprocess.DefaultParams())
	if err != nil {
		return image.NewGray(img.Bounds())
	}
	return result.Gray
}

// matchRNG returns a fresh RANSAC sampler seeded from the runtime clock.
// Determinism within a single tick isn't required; only cross-run
// reproducibility in tests is, and those call homography.Estimate
// directly with their own seeded source.
func matchRNG() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func toRecord(t time.Time, out fusion.Output, matchCount int, inlierRatio float64, blurSkip bool) recorder.Record {
	var lat, lon, hdop float64
	if out.Position != nil {
		lat, lon = out.Position.Lat, out.Position.Lon
		hdop = out.HDOP
	}

	vn, ve := 0.0, 0.0
	speed, heading := out.SpeedMps, out.HeadingDeg

	var flags uint16
	if out.GeofenceOK {
		flags |= recorder.FlagGeofenceOK
	}
	if out.EKFAccepted {
		flags |= recorder.FlagEKFAccepted
	}
	if blurSkip {
		flags |= recorder.FlagBlurSkip
	}

	return recorder.Record{
		TimestampS:  float64(t.UnixNano()) / 1e9,
		Lat:         lat,
		Lon:         lon,
		VnMps:       float32(vn),
		VeMps:       float32(ve),
		HDOP:        float32(hdop),
		SpeedMps:    float32(speed),
		HeadingDeg:  float32(heading),
		FixQuality:  uint8(out.FixQuality),
		Source:      sourceCode(out.Source),
		MatchCount:  uint16(matchCount),
		InlierRatio: float32(inlierRatio),
		Flags:       flags,
	}
}

func toRow(t time.Time, out fusion.Output, matchCount int, inlierRatio float64, blurSkip bool, reconnects int) telemetry.Row {
	var lat, lon, hdop float64
	if out.Position != nil {
		lat, lon = out.Position.Lat, out.Position.Lon
		hdop = out.HDOP
	}

	return telemetry.Row{
		Timestamp:   t,
		Lat:         lat,
		Lon:         lon,
		HDOP:        hdop,
		SpeedMps:    out.SpeedMps,
		HeadingDeg:  out.HeadingDeg,
		FixQuality:  out.FixQuality,
		Source:      out.Source,
		MatchCount:  matchCount,
		InlierRatio: inlierRatio,
		GeofenceOK:  out.GeofenceOK,
		EKFAccepted: out.EKFAccepted,
		BlurSkip:    blurSkip,
		Reconnects:  reconnects,
	}
}

func sourceCode(source string) uint8 {
	switch source {
	case "visual":
		return 1
	case "ekf_predict":
		return 2
	case "dead_reckoning":
		return 3
	default:
		return 0
	}
}
