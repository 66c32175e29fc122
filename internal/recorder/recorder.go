// Package recorder persists fused position fixes to a compact append-only
// binary flight-record file for offline replay and analysis.
package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

const (
	magic         = "VPSF"
	version       = uint16(2)
	recordSize    = 58
	headerSize    = 4 + 2 + 2
	flushInterval = 100

	// Flag bits packed into Record.Flags.
	FlagGeofenceOK  = 0x01
	FlagEKFAccepted = 0x02
	FlagBlurSkip    = 0x04
)

// Record is one fixed-size flight-record entry.
type Record struct {
	TimestampS  float64
	Lat         float64
	Lon         float64
	VnMps       float32
	VeMps       float32
	HDOP        float32
	SpeedMps    float32
	HeadingDeg  float32
	FixQuality  uint8
	Source      uint8
	MatchCount  uint16
	InlierRatio float32
	LatencyMs   uint16
	Flags       uint16
}

// marshal renders r as the wire-format 58 byte record.
func (r Record) marshal() []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(r.TimestampS))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.Lat))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(r.Lon))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(r.VnMps))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(r.VeMps))
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(r.HDOP))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(r.SpeedMps))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(r.HeadingDeg))
	buf[44] = r.FixQuality
	buf[45] = r.Source
	binary.LittleEndian.PutUint16(buf[46:48], r.MatchCount)
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(r.InlierRatio))
	binary.LittleEndian.PutUint16(buf[52:54], r.LatencyMs)
	binary.LittleEndian.PutUint16(buf[54:56], r.Flags)
	// Two trailing pad bytes bring the record to the documented 58 bytes.
	return buf
}

func unmarshalRecord(buf []byte) Record {
	return Record{
		TimestampS:  math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
		Lat:         math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
		Lon:         math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
		VnMps:       math.Float32frombits(binary.LittleEndian.Uint32(buf[24:28])),
		VeMps:       math.Float32frombits(binary.LittleEndian.Uint32(buf[28:32])),
		HDOP:        math.Float32frombits(binary.LittleEndian.Uint32(buf[32:36])),
		SpeedMps:    math.Float32frombits(binary.LittleEndian.Uint32(buf[36:40])),
		HeadingDeg:  math.Float32frombits(binary.LittleEndian.Uint32(buf[40:44])),
		FixQuality:  buf[44],
		Source:      buf[45],
		MatchCount:  binary.LittleEndian.Uint16(buf[46:48]),
		InlierRatio: math.Float32frombits(binary.LittleEndian.Uint32(buf[48:52])),
		LatencyMs:   binary.LittleEndian.Uint16(buf[52:54]),
		Flags:       binary.LittleEndian.Uint16(buf[54:56]),
	}
}

// Writer appends Records to a flight-record file, buffering writes and
// flushing every flushInterval records.
type Writer struct {
	f         *os.File
	w         *bufio.Writer
	pending   int
	sessionID string
}

// Create opens path for writing, truncating any existing file, and writes
// the VPSF header. sessionID identifies the run this record belongs to
// (see internal/health); it travels alongside the file via the caller's
// logs rather than inside the fixed 8-byte header, which spec's wire
// format does not reserve room for.
func Create(path, sessionID string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating flight record %q: %v", perr.ErrResourceUnavailable, path, err)
	}
	w := &Writer{f: f, w: bufio.NewWriter(f), sessionID: sessionID}
	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// SessionID returns the run identifier this writer was created with.
func (w *Writer) SessionID() string { return w.sessionID }

func (w *Writer) writeHeader() error {
	header := make([]byte, headerSize)
	copy(header[0:4], magic)
	binary.LittleEndian.PutUint16(header[4:6], version)
	binary.LittleEndian.PutUint16(header[6:8], recordSize)
	_, err := w.w.Write(header)
	return err
}

// Write appends one record, flushing to disk every flushInterval writes.
func (w *Writer) Write(r Record) error {
	if _, err := w.w.Write(r.marshal()); err != nil {
		return fmt.Errorf("%w: writing flight record: %v", perr.ErrTransient, err)
	}
	w.pending++
	if w.pending >= flushInterval {
		if err := w.w.Flush(); err != nil {
			return fmt.Errorf("%w: flushing flight record: %v", perr.ErrTransient, err)
		}
		w.pending = 0
	}
	return nil
}

// Close flushes any buffered records and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Reader streams Records back out of a flight-record file written by
// Writer, validating the header on Open.
type Reader struct {
	f       *os.File
	r       *bufio.Reader
	Version uint16
}

// Open reads and validates the VPSF header, rejecting unknown magic and
// versions newer than this reader understands.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening flight record %q: %v", perr.ErrResourceUnavailable, path, err)
	}
	r := bufio.NewReader(f)
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: reading flight record header: %v", perr.ErrInvalidInput, err)
	}
	if string(header[0:4]) != magic {
		_ = f.Close()
		return nil, fmt.Errorf("%w: flight record %q has foreign magic %q", perr.ErrInvalidInput, path, header[0:4])
	}
	fileVersion := binary.LittleEndian.Uint16(header[4:6])
	if fileVersion > version {
		_ = f.Close()
		return nil, fmt.Errorf("%w: flight record %q version %d newer than supported %d", perr.ErrInvalidInput, path, fileVersion, version)
	}
	return &Reader{f: f, r: r, Version: fileVersion}, nil
}

// Next reads the next Record, returning io.EOF once the file is exhausted.
func (r *Reader) Next() (Record, error) {
	buf := make([]byte, recordSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: reading flight record: %v", perr.ErrInvalidInput, err)
	}
	return unmarshalRecord(buf), nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
