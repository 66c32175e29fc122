// Package transport encodes fused position fixes onto a serial wire in one
// of two formats (NMEA 0183 or MSP binary) and publishes them through a
// reconnecting serial sink.
package transport

import "time"

// Fix is the subset of a fusion output the wire encoders need. It
// decouples transport from the fusion package so either can evolve
// independently.
type Fix struct {
	HasPosition bool
	Lat, Lon    float64
	HDOP        float64
	SpeedMps    float64
	HeadingDeg  float64
	FixQuality  int
	Time        time.Time
}
