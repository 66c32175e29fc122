// Package geofence implements the safety-boundary check consulted by the
// fusion engine before a position is published.
package geofence

import "github.com/dabubi/drone-visual-positioning/internal/geo"

// Fence is a spatial boundary that a candidate position can be tested
// against.
type Fence interface {
	Inside(p geo.GeoPoint) bool
}

// Circle is a circular fence defined by a center, radius, and margin (both
// in kilometers). A point is inside iff haversine(center, p) <= radius +
// margin.
type Circle struct {
	Center   geo.GeoPoint
	RadiusKm float64
	MarginKm float64
}

// Inside implements Fence.
func (c Circle) Inside(p geo.GeoPoint) bool {
	return geo.HaversineKm(c.Center, p) <= c.RadiusKm+c.MarginKm
}

// Rectangle is an axis-aligned lat/lon bounding box defined by its
// northwest and southeast corners.
type Rectangle struct {
	NW geo.GeoPoint
	SE geo.GeoPoint
}

// Inside implements Fence.
func (r Rectangle) Inside(p geo.GeoPoint) bool {
	latOK := p.Lat <= r.NW.Lat && p.Lat >= r.SE.Lat
	lonOK := p.Lon >= r.NW.Lon && p.Lon <= r.SE.Lon
	return latOK && lonOK
}

// Checker wraps a Fence with violation bookkeeping: total checks, total
// violations, and a running count of consecutive violations. It declares a
// breach once the consecutive count reaches MaxViolations.
type Checker struct {
	Fence         Fence
	MaxViolations int

	totalChecks     int
	totalViolations int
	consecutive     int
}

// DefaultMaxViolations is the spec's default consecutive-violation
// threshold.
const DefaultMaxViolations = 5

// NewChecker wraps fence with the default consecutive-violation threshold.
func NewChecker(fence Fence) *Checker {
	return &Checker{Fence: fence, MaxViolations: DefaultMaxViolations}
}

// Check tests p against the wrapped fence, updating counters, and reports
// whether p is inside the boundary.
func (c *Checker) Check(p geo.GeoPoint) bool {
	c.totalChecks++
	inside := c.Fence.Inside(p)
	if inside {
		c.consecutive = 0
	} else {
		c.totalViolations++
		c.consecutive++
	}
	return inside
}

// IsBreached reports whether the consecutive violation count has reached
// MaxViolations.
func (c *Checker) IsBreached() bool {
	return c.consecutive >= c.MaxViolations
}

// TotalChecks returns the number of checks performed so far.
func (c *Checker) TotalChecks() int { return c.totalChecks }

// TotalViolations returns the cumulative number of violations observed.
func (c *Checker) TotalViolations() int { return c.totalViolations }

// ConsecutiveViolations returns the current streak of violations.
func (c *Checker) ConsecutiveViolations() int { return c.consecutive }
