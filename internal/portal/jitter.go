package portal

import (
	"math"
	"strconv"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// JitterRadius is the maximum per-axis offset in degrees (about 15 m).
const JitterRadius = 0.00015

// gridSlack absorbs float error when a bound falls exactly on the grid.
const gridSlack = 1e-6

// Coord is a submitted position formatted the way the portal's form sends it.
type Coord struct {
	Lat string
	Lng string
}

// Jitter perturbs each axis of loc independently by a uniform offset in
// [-JitterRadius, +JitterRadius]. Unparseable axes count as 0.
func Jitter(loc domain.Location, random func() float64) Coord {
	return Coord{
		Lat: jitterAxis(domain.ParseCoord(loc.Lat), random()),
		Lng: jitterAxis(domain.ParseCoord(loc.Lng), random()),
	}
}

// jitterAxis offsets base and formats it to 6 decimals. The rounded result
// is clamped to the micro-degree grid inside the radius, so a base with
// more precision than the form carries never lands outside it.
func jitterAxis(base, r float64) string {
	q := math.Round((base + (r*2-1)*JitterRadius) * 1e6)
	lo := math.Ceil((base-JitterRadius)*1e6 - gridSlack)
	hi := math.Floor((base+JitterRadius)*1e6 + gridSlack)
	q = math.Max(lo, math.Min(hi, q))
	return strconv.FormatFloat(q/1e6, 'f', 6, 64)
}

// Jitter draws a fresh coordinate from the client's random source. Call it
// once per submission.
func (c *Client) Jitter(loc domain.Location) Coord {
	return Jitter(loc, c.random)
}
