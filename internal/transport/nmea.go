package transport

import (
	"fmt"
	"math"
)

// EncodeNMEA renders fix as the two ASCII sentences ($GPGGA, $GPRMC)
// the NMEA 0183 protocol uses to convey a position fix.
func EncodeNMEA(fix Fix) string {
	return encodeGGA(fix) + encodeRMC(fix)
}

func encodeGGA(fix Fix) string {
	hhmmss := fix.Time.UTC().Format("150405.00")

	quality := 0
	numSats := 0
	if fix.HasPosition && fix.FixQuality > 0 {
		quality = 1
		numSats = 8
	}

	latStr, latHemi := formatLat(fix.Lat)
	lonStr, lonHemi := formatLon(fix.Lon)

	body := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,%d,%02d,%.1f,0.0,M,0.0,M,,",
		hhmmss, latStr, latHemi, lonStr, lonHemi, quality, numSats, fix.HDOP)
	return "$" + body + "*" + checksumHex(body) + "\r\n"
}

func encodeRMC(fix Fix) string {
	hhmmss := fix.Time.UTC().Format("150405.00")
	ddmmyy := fix.Time.UTC().Format("020106")

	status := "V"
	if fix.HasPosition && fix.FixQuality > 0 {
		status = "A"
	}

	latStr, latHemi := formatLat(fix.Lat)
	lonStr, lonHemi := formatLon(fix.Lon)

	speedKnots := fix.SpeedMps * 1.9438444924574

	body := fmt.Sprintf("GPRMC,%s,%s,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		hhmmss, status, latStr, latHemi, lonStr, lonHemi, speedKnots, fix.HeadingDeg, ddmmyy)
	return "$" + body + "*" + checksumHex(body) + "\r\n"
}

// formatLat renders |lat| as ddmm.mmmmm with its hemisphere letter.
func formatLat(lat float64) (string, string) {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	abs := math.Abs(lat)
	deg := math.Floor(abs)
	min := (abs - deg) * 60
	return fmt.Sprintf("%02d%08.5f", int(deg), min), hemi
}

// formatLon renders |lon| as dddmm.mmmmm with its hemisphere letter.
func formatLon(lon float64) (string, string) {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	abs := math.Abs(lon)
	deg := math.Floor(abs)
	min := (abs - deg) * 60
	return fmt.Sprintf("%03d%08.5f", int(deg), min), hemi
}

// checksumHex computes the NMEA checksum (XOR of every byte in body, which
// is everything between '$' and '*') as two uppercase hex digits.
func checksumHex(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("%02X", cs)
}
