// Package telemetry writes per-tick fix diagnostics to a CSV file for
// offline analysis, alongside the binary flight recorder.
package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

const flushInterval = 100

var columns = []string{
	"timestamp", "lat", "lon", "vn_mps", "ve_mps", "hdop", "speed_mps",
	"heading_deg", "fix_quality", "source", "match_count", "inlier_ratio",
	"latency_ms", "geofence_ok", "ekf_accepted", "blur_skip", "fix_rate",
	"fps", "consecutive_miss", "reconnects", "cpu_temp_c",
}

// Row is one tick's worth of telemetry columns.
type Row struct {
	Timestamp       time.Time
	Lat, Lon        float64
	VnMps, VeMps    float64
	HDOP            float64
	SpeedMps        float64
	HeadingDeg      float64
	FixQuality      int
	Source          string
	MatchCount      int
	InlierRatio     float64
	LatencyMs       int
	GeofenceOK      bool
	EKFAccepted     bool
	BlurSkip        bool
	FixRate         float64
	FPS             float64
	ConsecutiveMiss int
	Reconnects      int
	CPUTempC        float64
}

func (r Row) fields() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(r.Lat, 'f', 7, 64),
		strconv.FormatFloat(r.Lon, 'f', 7, 64),
		strconv.FormatFloat(r.VnMps, 'f', 4, 64),
		strconv.FormatFloat(r.VeMps, 'f', 4, 64),
		strconv.FormatFloat(r.HDOP, 'f', 3, 64),
		strconv.FormatFloat(r.SpeedMps, 'f', 3, 64),
		strconv.FormatFloat(r.HeadingDeg, 'f', 2, 64),
		strconv.Itoa(r.FixQuality),
		r.Source,
		strconv.Itoa(r.MatchCount),
		strconv.FormatFloat(r.InlierRatio, 'f', 4, 64),
		strconv.Itoa(r.LatencyMs),
		strconv.FormatBool(r.GeofenceOK),
		strconv.FormatBool(r.EKFAccepted),
		strconv.FormatBool(r.BlurSkip),
		strconv.FormatFloat(r.FixRate, 'f', 4, 64),
		strconv.FormatFloat(r.FPS, 'f', 2, 64),
		strconv.Itoa(r.ConsecutiveMiss),
		strconv.Itoa(r.Reconnects),
		strconv.FormatFloat(r.CPUTempC, 'f', 1, 64),
	}
}

// Sink appends Rows to a CSV file, flushing every flushInterval rows.
type Sink struct {
	f         *os.File
	w         *csv.Writer
	pending   int
	sessionID string
}

// Create opens path for writing, truncating any existing file, and writes
// the column header row. sessionID identifies the run this sink belongs to
// (see internal/health) so a CSV left on disk can be matched back to the
// flight record and log lines from the same session; it is not written
// into the fixed column layout itself.
func Create(path, sessionID string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating telemetry sink %q: %v", perr.ErrResourceUnavailable, path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: writing telemetry header: %v", perr.ErrTransient, err)
	}
	return &Sink{f: f, w: w, sessionID: sessionID}, nil
}

// SessionID returns the run identifier this sink was created with.
func (s *Sink) SessionID() string { return s.sessionID }

// Write appends one row, flushing to disk every flushInterval writes.
func (s *Sink) Write(r Row) error {
	if err := s.w.Write(r.fields()); err != nil {
		return fmt.Errorf("%w: writing telemetry row: %v", perr.ErrTransient, err)
	}
	s.pending++
	if s.pending >= flushInterval {
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			return fmt.Errorf("%w: flushing telemetry sink: %v", perr.ErrTransient, err)
		}
		s.pending = 0
	}
	return nil
}

// Close flushes any buffered rows and closes the underlying file.
func (s *Sink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

// Columns returns the ordered list of CSV column names this sink writes.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}
